package embeddings

import (
	"context"
	"errors"

	"clientreports/internal/apperrors"
	"clientreports/internal/models"
	"clientreports/internal/utils"

	"github.com/rs/zerolog"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the part of Store the search engine needs
type VectorIndex interface {
	IsVectorSearchAvailable(ctx context.Context) bool
	Query(ctx context.Context, vector []float32, filters QueryFilters, limit int) ([]models.Message, error)
}

// SearchOptions bound a similarity search
type SearchOptions struct {
	DateRange *models.DateRange
	Domains   []string
	Emails    []string
	Limit     int
}

// SearchEngine runs free-text similarity searches over message embeddings
type SearchEngine struct {
	embedder Embedder
	index    VectorIndex
	logger   zerolog.Logger
}

// NewSearchEngine creates a similarity search engine. A nil embedder disables search.
func NewSearchEngine(embedder Embedder, index VectorIndex, logger zerolog.Logger) *SearchEngine {
	return &SearchEngine{
		embedder: embedder,
		index:    index,
		logger:   logger.With().Str("component", "similarity_search").Logger(),
	}
}

// Search embeds queryText and returns the nearest messages. An empty result with a nil
// error means the search had nothing to offer (no meaningful tokens, vector search off).
func (e *SearchEngine) Search(ctx context.Context, queryText string, opts SearchOptions) ([]models.Message, error) {
	tokens := utils.ExtractMeaningfulTokens(queryText)
	if len(tokens) == 0 {
		e.logger.Debug().Str("query", queryText).Msg("Query has no meaningful tokens, skipping similarity search")
		return []models.Message{}, nil
	}
	if e.embedder == nil || e.index == nil {
		return []models.Message{}, nil
	}
	if !e.index.IsVectorSearchAvailable(ctx) {
		e.logger.Info().Msg("Vector search unavailable, skipping similarity search")
		return []models.Message{}, nil
	}

	vector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		if !errors.Is(err, apperrors.ErrEmbeddingAPI) {
			err = apperrors.EmbeddingAPI("embed query", err)
		}
		return nil, err
	}

	results, err := e.index.Query(ctx, vector, QueryFilters{
		DateRange:        opts.DateRange,
		AllowedDomains:   opts.Domains,
		AllowedAddresses: opts.Emails,
	}, opts.Limit)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		e.logger.Debug().
			Int("results", len(results)).
			Float64("top_similarity", CosineSimilarity(vector, results[0].Embedding)).
			Str("top_id", results[0].ID).
			Str("query_vector_head", FormatVector(vector[:min(4, len(vector))])).
			Msg("Similarity search complete")
	}
	return results, nil
}

// FindSimilar is the best-effort form of Search: any failure is logged and
// reported as no results.
func (e *SearchEngine) FindSimilar(ctx context.Context, queryText string, opts SearchOptions) []models.Message {
	results, err := e.Search(ctx, queryText, opts)
	if err != nil {
		e.logger.Warn().Err(err).Str("query", queryText).Msg("Similarity search failed, falling back to keyword results")
		return []models.Message{}
	}
	return results
}
