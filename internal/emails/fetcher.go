package emails

import (
	"context"
	"fmt"
	"sort"

	"clientreports/internal/apperrors"
	"clientreports/internal/embeddings"
	"clientreports/internal/models"

	"github.com/rs/zerolog"
)

// DefaultMaxResults caps a fetch when the caller does not
const DefaultMaxResults = 50

// LocalSource is keyword/domain retrieval over stored messages
type LocalSource interface {
	QueryByFilters(ctx context.Context, p FilterParams) ([]models.Message, error)
}

// SimilaritySource is best-effort vector retrieval; it never fails, it returns nothing
type SimilaritySource interface {
	FindSimilar(ctx context.Context, queryText string, opts embeddings.SearchOptions) []models.Message
}

// RemoteResult is what the live mailbox returned plus the ids it newly stored
type RemoteResult struct {
	Messages []models.Message
	NewIDs   []string
}

// RemoteSource fetches from the live mailbox API
type RemoteSource interface {
	FetchRange(ctx context.Context, dateRange models.DateRange, domains, emails []string, limit int) (RemoteResult, error)
}

// TaskEnqueuer schedules background work without blocking
type TaskEnqueuer interface {
	Enqueue(taskType models.TaskType, params models.TaskParams) (string, error)
}

// FetchParams describe one client email fetch
type FetchParams struct {
	DateRange           models.DateRange
	ClientDomains       []string
	ClientEmails        []string
	MaxResults          int
	SearchQuery         string
	UseSimilaritySearch bool
	SkipProvider        bool
}

// FetchResult is the merged, deduplicated outcome. Error carries a soft failure;
// Emails is still usable when it is set.
type FetchResult struct {
	Emails               []models.Message `json:"emails"`
	FromExternalProvider bool             `json:"from_external_provider"`
	Error                string           `json:"error,omitempty"`
}

// Fetcher combines similarity search, local storage and the live mailbox
type Fetcher struct {
	local       LocalSource
	similarity  SimilaritySource
	remote      RemoteSource
	tasks       TaskEnqueuer
	userAddress string
	logger      zerolog.Logger
}

// NewFetcher wires the orchestrator. similarity, remote and tasks may be nil.
func NewFetcher(local LocalSource, similarity SimilaritySource, remote RemoteSource, tasks TaskEnqueuer, userAddress string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		local:       local,
		similarity:  similarity,
		remote:      remote,
		tasks:       tasks,
		userAddress: userAddress,
		logger:      logger.With().Str("component", "email_fetcher").Logger(),
	}
}

// Validate checks fetch parameters
func (f *Fetcher) Validate(p FetchParams) error {
	if err := p.DateRange.Validate(); err != nil {
		return err
	}
	if p.MaxResults < 0 {
		return apperrors.Validation("fetch params", "max_results must not be negative")
	}
	if len(p.ClientDomains) == 0 && len(p.ClientEmails) == 0 {
		return apperrors.Validation("fetch params", "at least one client domain or email is required")
	}
	return nil
}

// GetClientEmails returns client-relevant messages for the range. It never returns
// an error value: provider outages and unexpected failures degrade into the Error
// field with whatever data could be gathered.
func (f *Fetcher) GetClientEmails(ctx context.Context, p FetchParams) (result FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Interface("panic", r).Msg("Client email fetch failed unexpectedly")
			result = FetchResult{Emails: []models.Message{}, Error: fmt.Sprintf("unexpected failure: %v", r)}
		}
	}()

	if err := f.Validate(p); err != nil {
		return FetchResult{Emails: []models.Message{}, Error: err.Error()}
	}

	maxResults := p.MaxResults
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	domains := ExpandDomains(p.ClientDomains, p.ClientEmails)
	dateRange := p.DateRange

	local := f.localResults(ctx, p, domains, maxResults)

	if len(local) >= maxResults || p.SkipProvider || f.remote == nil {
		return FetchResult{Emails: truncate(local, maxResults)}
	}

	remote, err := f.remote.FetchRange(ctx, dateRange, domains, p.ClientEmails, maxResults)
	if err != nil {
		f.logger.Warn().Err(err).Bool("provider_error", apperrors.IsProvider(err)).
			Int("local_results", len(local)).Msg("Mail provider failed, returning local results")
		return FetchResult{
			Emails: truncate(local, maxResults),
			Error:  fmt.Sprintf("mail provider unavailable: %v", err),
		}
	}

	merged := mergeByID(local, remote.Messages)
	sortByDateDesc(merged)

	if len(remote.NewIDs) > 0 && f.tasks != nil {
		if taskID, err := f.tasks.Enqueue(models.TaskProcessNewEmails, models.TaskParams{MessageIDs: remote.NewIDs}); err != nil {
			f.logger.Warn().Err(err).Int("new_messages", len(remote.NewIDs)).Msg("Failed to enqueue processing of new messages")
		} else {
			f.logger.Info().Str("task_id", taskID).Int("new_messages", len(remote.NewIDs)).Msg("Enqueued processing of new messages")
		}
	}

	f.logger.Info().
		Int("local", len(local)).
		Int("remote", len(remote.Messages)).
		Int("merged", len(merged)).
		Msg("Client emails fetched")

	return FetchResult{Emails: truncate(merged, maxResults), FromExternalProvider: true}
}

// localResults runs keyword retrieval and, when asked, similarity retrieval.
// Similarity hits that involve the client replace the keyword result outright.
func (f *Fetcher) localResults(ctx context.Context, p FetchParams, domains []string, maxResults int) []models.Message {
	var similar []models.Message
	if p.SearchQuery != "" && p.UseSimilaritySearch && f.similarity != nil {
		dr := p.DateRange
		similar = f.similarity.FindSimilar(ctx, p.SearchQuery, embeddings.SearchOptions{
			DateRange: &dr,
			Domains:   domains,
			Emails:    p.ClientEmails,
			Limit:     maxResults,
		})
	}

	keyword, err := f.local.QueryByFilters(ctx, FilterParams{
		DateRange:          p.DateRange,
		ClientDomains:      domains,
		ClientEmails:       p.ClientEmails,
		CurrentUserAddress: f.userAddress,
		Limit:              maxResults,
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("Local email query failed, treating as no local results")
		keyword = nil
	}

	// The index query matches participants by substring; keep only true client mail
	matcher := NewClientMatcher(domains, p.ClientEmails)
	relevant := make([]models.Message, 0, len(similar))
	for _, msg := range similar {
		rel := ClassifyWith(msg, matcher, f.userAddress)
		if !rel.Any() {
			continue
		}
		msg.Source = SourceFor(msg, rel, f.userAddress)
		relevant = append(relevant, msg)
	}
	if len(relevant) > 0 {
		f.logger.Debug().Int("similar", len(relevant)).Int("keyword", len(keyword)).Msg("Similarity results supersede keyword results")
		return relevant
	}

	if keyword == nil {
		return []models.Message{}
	}
	return keyword
}

// mergeByID appends remote messages whose id is not already present, keeping local copies
func mergeByID(local, remote []models.Message) []models.Message {
	merged := make([]models.Message, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))
	for _, m := range local {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range remote {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	return merged
}

// sortByDateDesc orders canonical dates newest first; equal dates keep their order
func sortByDateDesc(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return models.NormalizeDate(messages[i].Date) > models.NormalizeDate(messages[j].Date)
	})
}

func truncate(messages []models.Message, n int) []models.Message {
	if len(messages) > n {
		return messages[:n]
	}
	return messages
}
