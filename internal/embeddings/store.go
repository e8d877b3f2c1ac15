// Package embeddings stores message vectors in PostgreSQL (pgvector) and runs
// nearest-neighbor searches over them.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"clientreports/internal/apperrors"
	"clientreports/internal/database"
	"clientreports/internal/models"
	"clientreports/internal/sanitizer"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is how many messages are embedded per API request
const DefaultBatchSize = 50

const maxEmbeddingBody = 2000

const vectorProbeQuery = `
	SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'vector')
	   AND EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'messages' AND column_name = 'embedding' AND udt_name = 'vector'
	   )`

// QueryFilters narrow a similarity query. Empty fields do not filter.
type QueryFilters struct {
	DateRange        *models.DateRange
	AllowedDomains   []string
	AllowedAddresses []string
}

// Store reads and writes message embeddings
type Store struct {
	db     *database.WriteClient
	logger zerolog.Logger
}

// NewStore creates an embedding store over the messages table
func NewStore(db *database.WriteClient, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "embedding_store").Logger(),
	}
}

// IsVectorSearchAvailable reports whether pgvector is installed and the embedding
// column has been converted from its text fallback. The answer is not cached: a
// deployment may enable the extension while the process is running.
func (s *Store) IsVectorSearchAvailable(ctx context.Context) bool {
	var available bool
	if err := s.db.GetContext(ctx, &available, vectorProbeQuery); err != nil {
		s.logger.Warn().Err(err).Msg("Vector availability probe failed")
		return false
	}
	return available
}

// Store writes the embedding for a message and marks it processed
func (s *Store) Store(ctx context.Context, id string, vector []float32) error {
	if len(vector) == 0 {
		return apperrors.Validation("store embedding", "empty vector for message "+id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET embedding = $2, processed_for_vector = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, id, pgvector.NewVector(vector))
	if err != nil {
		return apperrors.Storage("store embedding", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("store embedding", err)
	}
	if n == 0 {
		return apperrors.Storage("store embedding", fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound))
	}
	return nil
}

// Query returns the messages nearest to vector, closest first and newest first on ties.
// When vector search is unavailable it returns an empty slice and no error.
func (s *Store) Query(ctx context.Context, vector []float32, filters QueryFilters, limit int) ([]models.Message, error) {
	if len(vector) == 0 || !s.IsVectorSearchAvailable(ctx) {
		return []models.Message{}, nil
	}

	hasCCBCC, err := database.HasCCBCCColumns(ctx, s.db)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cc/bcc probe failed, matching from/to only")
		hasCCBCC = false
	}

	query, args := buildSimilarityQuery(vector, filters, limit, hasCCBCC)

	var rows []database.MessageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.Storage("similarity query", err)
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.ToMessage())
	}

	s.logger.Debug().Int("results", len(messages)).Int("limit", limit).Msg("Similarity query complete")
	return messages, nil
}

func buildSimilarityQuery(vector []float32, filters QueryFilters, limit int, hasCCBCC bool) (string, []interface{}) {
	args := []interface{}{pgvector.NewVector(vector)}
	where := []string{"embedding IS NOT NULL", "processed_for_vector = TRUE"}

	if filters.DateRange != nil {
		start, end := filters.DateRange.SQLBounds()
		args = append(args, start, end)
		where = append(where, fmt.Sprintf("date >= $%d AND date <= $%d", len(args)-1, len(args)))
	}

	if patterns := database.ParticipantPatterns(filters.AllowedDomains, filters.AllowedAddresses); len(patterns) > 0 {
		args = append(args, pq.Array(patterns))
		where = append(where, database.ParticipantClause(len(args), hasCCBCC))
	}

	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE %s
		ORDER BY embedding <=> $1, date DESC
		LIMIT $%d`,
		database.MessageColumns("", hasCCBCC, true),
		strings.Join(where, " AND "),
		len(args),
	)
	return query, args
}

// BuildEmbeddingText creates the text representation embedded for a message
func BuildEmbeddingText(msg models.Message) string {
	parts := []string{"Subject: " + msg.Subject, "From: " + msg.From}

	if msg.Summary != "" {
		parts = append(parts, "Summary: "+msg.Summary)
	}

	body := strings.TrimSpace(msg.Body)
	if len(body) > maxEmbeddingBody {
		body = sanitizer.Truncate(body, maxEmbeddingBody) + "..."
	}
	parts = append(parts, "Message: "+body)

	return strings.Join(parts, " | ")
}
