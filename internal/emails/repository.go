package emails

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"clientreports/internal/apperrors"
	"clientreports/internal/database"
	"clientreports/internal/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const defaultQueryLimit = 100

// FilterParams select client-relevant messages from local storage
type FilterParams struct {
	DateRange          models.DateRange
	ClientDomains      []string
	ClientEmails       []string
	CurrentUserAddress string
	Limit              int
}

// Repository reads and writes messages in PostgreSQL
type Repository struct {
	db     *database.WriteClient
	logger zerolog.Logger

	mu       sync.Mutex
	hasCCBCC bool // only a positive probe is remembered; columns are never dropped
}

// NewRepository creates a message repository
func NewRepository(db *database.WriteClient, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "email_repository").Logger(),
	}
}

func (r *Repository) ccBCCAvailable(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasCCBCC {
		return true
	}

	has, err := database.HasCCBCCColumns(ctx, r.db)
	if err != nil {
		r.logger.Warn().Err(err).Msg("cc/bcc column probe failed, matching from/to only")
		return false
	}
	r.hasCCBCC = has
	return has
}

// QueryByFilters returns messages in the date range that involve the client, newest
// first, each annotated with its source. Rows the SQL filter lets through but the
// relevance rule rejects are dropped.
func (r *Repository) QueryByFilters(ctx context.Context, p FilterParams) ([]models.Message, error) {
	matcher := NewClientMatcher(p.ClientDomains, p.ClientEmails)
	if matcher.Empty() {
		return []models.Message{}, nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	hasCCBCC := r.ccBCCAvailable(ctx)
	start, end := p.DateRange.SQLBounds()
	patterns := database.ParticipantPatterns(p.ClientDomains, p.ClientEmails)

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE date >= $1 AND date <= $2 AND %s
		ORDER BY date DESC
		LIMIT $4`,
		database.MessageColumns("", hasCCBCC, true),
		database.ParticipantClause(3, hasCCBCC),
	)

	var rows []database.MessageRow
	if err := r.db.SelectContext(ctx, &rows, query, start, end, pq.Array(patterns), limit); err != nil {
		return nil, apperrors.Storage("query messages by filters", err)
	}

	messages := make([]models.Message, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		msg := row.ToMessage()
		rel := ClassifyWith(msg, matcher, p.CurrentUserAddress)
		if !rel.Any() {
			dropped++
			continue
		}
		msg.Source = SourceFor(msg, rel, p.CurrentUserAddress)
		messages = append(messages, msg)
	}

	if dropped > 0 {
		r.logger.Debug().Int("dropped", dropped).Msg("Excluded rows failing the relevance rule")
	}
	return messages, nil
}

// Exists reports whether a message id is already stored
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id); err != nil {
		return false, apperrors.Storage("check message exists", err)
	}
	return exists, nil
}

// InsertIfAbsent stores msg unless its id is already present. Summary, labels and
// embedding start empty. It reports whether a row was written.
func (r *Repository) InsertIfAbsent(ctx context.Context, msg models.Message) (bool, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return false, apperrors.Validation("insert message", "message id is required")
	}

	labels := msg.Labels
	if labels == nil {
		labels = []string{}
	}

	cols := []string{"id", "subject", "from_addr", "to_addr", "date", "body", "summary", "labels", "processed_for_vector"}
	args := []interface{}{msg.ID, msg.Subject, msg.From, msg.To, models.NormalizeDate(msg.Date), msg.Body, "", pq.Array(labels), false}
	if r.ccBCCAvailable(ctx) {
		cols = append(cols, "cc", "bcc")
		args = append(args, msg.CC, msg.BCC)
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO messages (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.Storage("insert message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Storage("insert message", err)
	}
	return n > 0, nil
}

// UpdateSummary sets the generated summary of a message
func (r *Repository) UpdateSummary(ctx context.Context, id, summary string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET summary = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id, summary)
	if err != nil {
		return apperrors.Storage("update summary", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("update summary", err)
	}
	if n == 0 {
		return apperrors.Storage("update summary", fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound))
	}
	return nil
}

// ListUnsummarized returns up to limit messages without a summary, newest first
func (r *Repository) ListUnsummarized(ctx context.Context, limit int) ([]models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE summary = '' ORDER BY date DESC LIMIT $1`,
		database.MessageColumns("", r.ccBCCAvailable(ctx), true))
	return r.list(ctx, "list unsummarized", query, limit)
}

// ListUnembedded returns up to limit messages not yet processed for vector search,
// skipping the ids in exclude
func (r *Repository) ListUnembedded(ctx context.Context, limit int, exclude []string) ([]models.Message, error) {
	if exclude == nil {
		exclude = []string{}
	}
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE processed_for_vector = FALSE AND id <> ALL($2) ORDER BY date DESC LIMIT $1`,
		database.MessageColumns("", r.ccBCCAvailable(ctx), true))
	return r.list(ctx, "list unembedded", query, limit, pq.Array(exclude))
}

// GetByIDs returns the stored messages among ids, newest first. Unknown ids are skipped.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = ANY($1) ORDER BY date DESC`,
		database.MessageColumns("", r.ccBCCAvailable(ctx), true))
	return r.list(ctx, "get messages by id", query, pq.Array(ids))
}

func (r *Repository) list(ctx context.Context, op, query string, args ...interface{}) ([]models.Message, error) {
	var rows []database.MessageRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.Storage(op, err)
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.ToMessage())
	}
	return messages, nil
}
