package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"clientreports/internal/apperrors"
	"clientreports/internal/emails"
	"clientreports/internal/models"
	"clientreports/internal/sanitizer"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// MessageInserter stores a message unless it already exists
type MessageInserter interface {
	InsertIfAbsent(ctx context.Context, msg models.Message) (bool, error)
}

// TaskEnqueuer schedules background work
type TaskEnqueuer interface {
	Enqueue(taskType models.TaskType, params models.TaskParams) (string, error)
}

// maxRawMessageBytes bounds message/rfc822 webhook bodies
const maxRawMessageBytes = 25 << 20

// MessageWebhookHandler ingests one inbound message, either canonical JSON or a raw
// message/rfc822 body. New messages are queued for summary and embedding.
// @Summary Ingest inbound message
// @Tags webhooks
// @Accept json
// @Accept message/rfc822
// @Produce json
// @Param request body models.Message true "Canonical message"
// @Success 200 {object} models.WebhookMessageResponse
// @Failure 400 {object} models.WebhookMessageResponse
// @Failure 500 {object} models.WebhookMessageResponse
// @Router /api/webhooks/messages [post]
func MessageWebhookHandler(store MessageInserter, tasks TaskEnqueuer, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "message_webhook").Logger()

	return func(c echo.Context) error {
		msg, err := readWebhookMessage(c)
		if err != nil {
			return c.JSON(statusFor(err), models.WebhookMessageResponse{Error: err.Error()})
		}

		inserted, err := store.InsertIfAbsent(c.Request().Context(), msg)
		if err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to store inbound message")
			return c.JSON(statusFor(err), models.WebhookMessageResponse{Error: err.Error()})
		}

		response := models.WebhookMessageResponse{Success: true, Inserted: inserted}
		if !inserted {
			logger.Debug().Str("message_id", msg.ID).Msg("Inbound message already stored")
			return c.JSON(http.StatusOK, response)
		}

		if tasks != nil {
			taskID, err := tasks.Enqueue(models.TaskProcessNewEmails, models.TaskParams{MessageIDs: []string{msg.ID}})
			if err != nil {
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to enqueue processing of inbound message")
			} else {
				response.TaskID = taskID
			}
		}

		logger.Info().Str("message_id", msg.ID).Str("task_id", response.TaskID).Msg("Inbound message stored")
		return c.JSON(http.StatusOK, response)
	}
}

func readWebhookMessage(c echo.Context) (models.Message, error) {
	req := c.Request()
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))

	if mediaType == "message/rfc822" {
		return emails.ParseRawMessage(http.MaxBytesReader(c.Response(), req.Body, maxRawMessageBytes))
	}

	var msg models.Message
	if err := c.Bind(&msg); err != nil {
		return models.Message{}, apperrors.Validation("read webhook", fmt.Sprintf("invalid request body: %v", err))
	}
	msg.ID = strings.Trim(strings.TrimSpace(msg.ID), "<>")
	if msg.ID == "" {
		return models.Message{}, apperrors.Validation("read webhook", "message id is required")
	}
	if msg.Date != "" {
		if _, ok := models.ParseDate(msg.Date); !ok {
			return models.Message{}, apperrors.Validation("read webhook", fmt.Sprintf("invalid date %q", msg.Date))
		}
	}
	msg.Body = sanitizer.StripHTML(msg.Body)
	msg.Summary = ""
	msg.Embedding = nil
	msg.ProcessedForVector = false
	return msg, nil
}
