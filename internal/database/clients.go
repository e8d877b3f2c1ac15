package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/models"

	"github.com/lib/pq"
)

// ClientService stores clients, report templates and report feedback
type ClientService struct {
	writeClient *WriteClient
}

// NewClientService creates a new client service
func NewClientService(writeClient *WriteClient) (*ClientService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for client service")
	}
	return &ClientService{writeClient: writeClient}, nil
}

type clientRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Domains   pq.StringArray `db:"domains"`
	Emails    pq.StringArray `db:"emails"`
	UserID    sql.NullString `db:"user_id"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r clientRow) toClient() models.Client {
	c := models.Client{
		ID:        r.ID,
		Name:      r.Name,
		Domains:   []string(r.Domains),
		Emails:    []string(r.Emails),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.UserID.Valid {
		uid := r.UserID.String
		c.UserID = &uid
	}
	return c
}

const clientColumns = `id, name, domains, emails, user_id, created_at, updated_at`

// CreateClient inserts a client and returns it with its generated id
func (s *ClientService) CreateClient(ctx context.Context, client models.Client) (*models.Client, error) {
	if strings.TrimSpace(client.Name) == "" {
		return nil, apperrors.Validation("create client", "client name is required")
	}

	query := `
		INSERT INTO clients (name, domains, emails, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING ` + clientColumns

	var row clientRow
	err := s.writeClient.GetContext(ctx, &row, query,
		client.Name,
		pq.Array(normalizeList(client.Domains)),
		pq.Array(normalizeList(client.Emails)),
		client.UserID,
	)
	if err != nil {
		return nil, apperrors.Storage("create client", err)
	}

	created := row.toClient()
	return &created, nil
}

// GetClient returns a client visible to userID: owned by them or shared (NULL owner)
func (s *ClientService) GetClient(ctx context.Context, id int64, userID string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND (user_id = $2 OR user_id IS NULL)`

	var row clientRow
	err := s.writeClient.GetContext(ctx, &row, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Storage("get client", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.Storage("get client", err)
	}

	client := row.toClient()
	return &client, nil
}

// ListClients returns the clients visible to userID ordered by name
func (s *ClientService) ListClients(ctx context.Context, userID string) ([]models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE user_id = $1 OR user_id IS NULL ORDER BY name ASC`

	var rows []clientRow
	if err := s.writeClient.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperrors.Storage("list clients", err)
	}

	clients := make([]models.Client, 0, len(rows))
	for _, r := range rows {
		clients = append(clients, r.toClient())
	}
	return clients, nil
}

// SaveTemplate inserts a report template
func (s *ClientService) SaveTemplate(ctx context.Context, tpl models.ReportTemplate) (*models.ReportTemplate, error) {
	if strings.TrimSpace(tpl.Name) == "" || strings.TrimSpace(tpl.Content) == "" {
		return nil, apperrors.Validation("save template", "template name and content are required")
	}

	query := `
		INSERT INTO report_templates (name, content, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, name, content, user_id, created_at, updated_at
	`
	var saved models.ReportTemplate
	if err := s.writeClient.GetContext(ctx, &saved, query, tpl.Name, tpl.Content, tpl.UserID); err != nil {
		return nil, apperrors.Storage("save template", err)
	}
	return &saved, nil
}

// ListTemplates returns templates visible to userID, newest first
func (s *ClientService) ListTemplates(ctx context.Context, userID string) ([]models.ReportTemplate, error) {
	query := `
		SELECT id, name, content, user_id, created_at, updated_at
		FROM report_templates
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY created_at DESC
	`
	var templates []models.ReportTemplate
	if err := s.writeClient.SelectContext(ctx, &templates, query, userID); err != nil {
		return nil, apperrors.Storage("list templates", err)
	}

	// Ensure we return an empty slice, not nil
	if templates == nil {
		templates = []models.ReportTemplate{}
	}
	return templates, nil
}

// SaveFeedback records a rating for a generated report
func (s *ClientService) SaveFeedback(ctx context.Context, fb models.ReportFeedback) (*models.ReportFeedback, error) {
	if fb.ReportID == "" {
		return nil, apperrors.Validation("save feedback", "report id is required")
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return nil, apperrors.Validation("save feedback", "rating must be between 1 and 5")
	}

	query := `
		INSERT INTO report_feedback (report_id, client_id, rating, comment, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, report_id, client_id, rating, comment, user_id, created_at
	`
	var saved models.ReportFeedback
	if err := s.writeClient.GetContext(ctx, &saved, query, fb.ReportID, fb.ClientID, fb.Rating, fb.Comment, fb.UserID); err != nil {
		return nil, apperrors.Storage("save feedback", err)
	}
	return &saved, nil
}

// ListFeedback returns all feedback for a client, newest first
func (s *ClientService) ListFeedback(ctx context.Context, clientID int64) ([]models.ReportFeedback, error) {
	query := `
		SELECT id, report_id, client_id, rating, comment, user_id, created_at
		FROM report_feedback
		WHERE client_id = $1
		ORDER BY created_at DESC
	`
	var feedback []models.ReportFeedback
	if err := s.writeClient.SelectContext(ctx, &feedback, query, clientID); err != nil {
		return nil, apperrors.Storage("list feedback", err)
	}
	if feedback == nil {
		feedback = []models.ReportFeedback{}
	}
	return feedback, nil
}

// normalizeList lower-cases, trims and dedupes while keeping order
func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
