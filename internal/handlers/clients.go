package handlers

import (
	"context"
	"fmt"
	"net/http"

	"clientreports/internal/apperrors"
	"clientreports/internal/auth"
	"clientreports/internal/cache"
	"clientreports/internal/models"

	"github.com/labstack/echo/v4"
)

// ClientStore is the client persistence the HTTP layer needs
type ClientStore interface {
	CreateClient(ctx context.Context, client models.Client) (*models.Client, error)
	GetClient(ctx context.Context, id int64, userID string) (*models.Client, error)
	ListClients(ctx context.Context, userID string) ([]models.Client, error)
}

// FeedbackStore records report feedback
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb models.ReportFeedback) (*models.ReportFeedback, error)
}

// ClientLookup resolves saved clients, caching hits per caller
type ClientLookup struct {
	store ClientStore
	cache *cache.Cache[models.Client]
}

// NewClientLookup wraps store with a cache. A nil cache disables caching.
func NewClientLookup(store ClientStore, clientCache *cache.Cache[models.Client]) *ClientLookup {
	return &ClientLookup{store: store, cache: clientCache}
}

// Get returns the client with id if userID may see it
func (l *ClientLookup) Get(ctx context.Context, id int64, userID string) (models.Client, error) {
	key := fmt.Sprintf("%d|%s", id, userID)
	if l.cache != nil {
		if client, ok := l.cache.Get(key); ok {
			return client, nil
		}
	}
	if l.store == nil {
		return models.Client{}, apperrors.Storage("get client", apperrors.ErrNotFound)
	}

	client, err := l.store.GetClient(ctx, id, userID)
	if err != nil {
		return models.Client{}, err
	}
	if l.cache != nil {
		l.cache.Set(key, *client)
	}
	return *client, nil
}

// ListClientsHandler lists the caller's clients plus shared ones
// @Summary List clients
// @Tags clients
// @Produce json
// @Param X-User-Email header string false "Caller address"
// @Success 200 {array} models.Client
// @Failure 500 {object} models.ErrorResponse
// @Router /api/clients [get]
func ListClientsHandler(store ClientStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		clients, err := store.ListClients(c.Request().Context(), auth.UserEmail(c))
		if err != nil {
			return errorJSON(c, err)
		}
		if clients == nil {
			clients = []models.Client{}
		}
		return c.JSON(http.StatusOK, clients)
	}
}

// CreateClientHandler saves a client owned by the caller
// @Summary Create client
// @Tags clients
// @Accept json
// @Produce json
// @Param request body models.Client true "Client name, domains and addresses"
// @Success 201 {object} models.Client
// @Failure 400 {object} models.ErrorResponse
// @Router /api/clients [post]
func CreateClientHandler(store ClientStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.Client
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		req.ID = 0
		req.UserID = nil
		if user := auth.UserEmail(c); user != "" {
			req.UserID = &user
		}

		created, err := store.CreateClient(c.Request().Context(), req)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

// FeedbackHandler records a rating for a generated report
// @Summary Submit report feedback
// @Tags clients
// @Accept json
// @Produce json
// @Param request body models.ReportFeedback true "Feedback"
// @Success 201 {object} models.ReportFeedback
// @Failure 400 {object} models.ErrorResponse
// @Router /api/feedback [post]
func FeedbackHandler(store FeedbackStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.ReportFeedback
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		req.UserID = nil
		if user := auth.UserEmail(c); user != "" {
			req.UserID = &user
		}

		saved, err := store.SaveFeedback(c.Request().Context(), req)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusCreated, saved)
	}
}
