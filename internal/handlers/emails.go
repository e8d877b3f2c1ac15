package handlers

import (
	"context"
	"fmt"
	"net/http"

	"clientreports/internal/auth"
	"clientreports/internal/emails"
	"clientreports/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ClientEmailFetcher retrieves client-relevant messages
type ClientEmailFetcher interface {
	Validate(p emails.FetchParams) error
	GetClientEmails(ctx context.Context, p emails.FetchParams) emails.FetchResult
}

// FetchEmailsHandler returns merged local and mailbox messages for a client.
// Provider failures still answer 200 with the error field set.
// @Summary Fetch client emails
// @Description Similarity, keyword and live mailbox retrieval merged by message id
// @Tags emails
// @Accept json
// @Produce json
// @Param request body models.FetchEmailsRequest true "Fetch parameters"
// @Success 200 {object} models.FetchEmailsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/emails/fetch [post]
func FetchEmailsHandler(fetcher ClientEmailFetcher, clients *ClientLookup, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "fetch_emails").Logger()

	return func(c echo.Context) error {
		var req models.FetchEmailsRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		ctx := c.Request().Context()
		params := emails.FetchParams{
			DateRange:           models.DateRange{Start: req.Start, End: req.End},
			ClientDomains:       req.Domains,
			ClientEmails:        req.Emails,
			MaxResults:          req.MaxResults,
			SearchQuery:         req.SearchQuery,
			UseSimilaritySearch: req.UseSimilaritySearch,
			SkipProvider:        req.SkipProvider,
		}

		if req.ClientID != nil {
			if clients == nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Saved clients are not available"})
			}
			client, err := clients.Get(ctx, *req.ClientID, auth.UserEmail(c))
			if err != nil {
				logger.Warn().Err(err).Int64("client_id", *req.ClientID).Msg("Client lookup failed")
				return errorJSON(c, err)
			}
			params.ClientDomains = append(append([]string{}, client.Domains...), req.Domains...)
			params.ClientEmails = append(append([]string{}, client.Emails...), req.Emails...)
		}

		if err := fetcher.Validate(params); err != nil {
			return errorJSON(c, err)
		}

		result := fetcher.GetClientEmails(ctx, params)
		if result.Emails == nil {
			result.Emails = []models.Message{}
		}

		return c.JSON(http.StatusOK, models.FetchEmailsResponse{
			Emails:               result.Emails,
			FromExternalProvider: result.FromExternalProvider,
			Error:                result.Error,
		})
	}
}
