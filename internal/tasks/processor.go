package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/embeddings"
	"clientreports/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultSummaryLimit = 50

// MessageSource is the slice of the message repository the processor needs
type MessageSource interface {
	ListUnembedded(ctx context.Context, limit int, exclude []string) ([]models.Message, error)
	ListUnsummarized(ctx context.Context, limit int) ([]models.Message, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	UpdateSummary(ctx context.Context, id, summary string) error
}

// VectorWriter stores a message embedding
type VectorWriter interface {
	Store(ctx context.Context, id string, vector []float32) error
}

// BatchEmbedder generates one embedding per input text, in order
type BatchEmbedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces a short summary of an email
type Summarizer interface {
	Summarize(ctx context.Context, subject, body string) (string, error)
}

// Processor executes background task types against storage and the model API.
// A nil embedder or summarizer disables that step.
type Processor struct {
	messages   MessageSource
	vectors    VectorWriter
	embedder   BatchEmbedder
	summarizer Summarizer
	batchSize  int
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewProcessor creates a task processor. summaryDelay is the minimum spacing
// between summary requests.
func NewProcessor(messages MessageSource, vectors VectorWriter, embedder BatchEmbedder, summarizer Summarizer, batchSize int, summaryDelay time.Duration, logger zerolog.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = embeddings.DefaultBatchSize
	}
	limit := rate.Inf
	if summaryDelay > 0 {
		limit = rate.Every(summaryDelay)
	}
	return &Processor{
		messages:   messages,
		vectors:    vectors,
		embedder:   embedder,
		summarizer: summarizer,
		batchSize:  batchSize,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With().Str("component", "task_processor").Logger(),
	}
}

// Run executes one task. Only failing to load the work marks the task failed;
// per-message failures are counted in the result.
func (p *Processor) Run(ctx context.Context, taskType models.TaskType, params models.TaskParams) (*models.TaskResult, error) {
	result := &models.TaskResult{}

	var err error
	switch taskType {
	case models.TaskGenerateEmbeddings:
		err = p.generateEmbeddings(ctx, params.Limit, result)
	case models.TaskSummarizeEmails:
		err = p.summarizeEmails(ctx, params.Limit, result)
	case models.TaskProcessNewEmails:
		err = p.processNewEmails(ctx, params, result)
	default:
		err = apperrors.Validation("run task", fmt.Sprintf("unknown task type %q", taskType))
	}
	return result, err
}

// RunSync executes a task inline and reports it in the same shape the queue does
func (p *Processor) RunSync(ctx context.Context, taskType models.TaskType, params models.TaskParams) models.BackgroundTask {
	started := time.Now()
	task := models.BackgroundTask{
		ID:        "sync-" + started.UTC().Format("20060102T150405"),
		Type:      taskType,
		Params:    params,
		Status:    models.TaskProcessing,
		CreatedAt: started,
		StartedAt: &started,
	}

	result, err := p.Run(ctx, taskType, params)
	finished := time.Now()
	task.CompletedAt = &finished
	task.Result = result
	if err != nil {
		task.Status = models.TaskFailed
		task.Error = err.Error()
		return task
	}
	task.Status = models.TaskCompleted
	return task
}

// generateEmbeddings embeds every unprocessed message, limit at a time. Messages
// whose embedding fails are skipped for the rest of the run.
func (p *Processor) generateEmbeddings(ctx context.Context, limit int, result *models.TaskResult) error {
	if p.embedder == nil {
		p.logger.Warn().Msg("No embedding provider configured, skipping embedding generation")
		return nil
	}
	batchSize := limit
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	failed := []string{}
	seen := make(map[string]struct{})
	for batchNum := 1; ; batchNum++ {
		batch, err := p.messages.ListUnembedded(ctx, batchSize, failed)
		if err != nil {
			if batchNum == 1 {
				return fmt.Errorf("load messages to embed: %w", err)
			}
			p.logger.Warn().Err(err).Int("batch", batchNum).Msg("Failed to load next batch, stopping")
			return nil
		}
		if len(batch) == 0 {
			break
		}

		fresh := 0
		for _, msg := range batch {
			if _, ok := seen[msg.ID]; !ok {
				seen[msg.ID] = struct{}{}
				fresh++
			}
		}
		if fresh == 0 {
			p.logger.Warn().Int("batch", batchNum).Msg("Batch repeats already handled messages, stopping")
			break
		}

		failed = append(failed, p.embedBatch(ctx, batch, result)...)
		p.logger.Info().
			Int("batch", batchNum).
			Int("size", len(batch)).
			Int("embedded", result.Embedded).
			Int("failed", result.Failed).
			Msg("Embedding batch done")

		if ctx.Err() != nil {
			return nil
		}
	}

	result.Processed = result.Embedded
	return nil
}

// embedBatch embeds and stores msgs, returning the ids that failed. When the
// batch request fails each message is retried on its own.
func (p *Processor) embedBatch(ctx context.Context, msgs []models.Message, result *models.TaskResult) []string {
	texts := make([]string, len(msgs))
	for i, msg := range msgs {
		texts[i] = embeddings.BuildEmbeddingText(msg)
	}

	vectors, err := p.embedder.CreateEmbeddings(ctx, texts)
	if err == nil && len(vectors) == len(msgs) {
		var failed []string
		for i, msg := range msgs {
			if !p.storeVector(ctx, msg.ID, vectors[i], result) {
				failed = append(failed, msg.ID)
			}
		}
		return failed
	}
	if err == nil {
		err = fmt.Errorf("expected %d embeddings, got %d", len(msgs), len(vectors))
	}
	p.logger.Warn().Err(err).Int("size", len(msgs)).Msg("Batch embedding failed, retrying per message")

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed []string
	)
	for i, msg := range msgs {
		wg.Add(1)
		go func(id, text string) {
			defer wg.Done()

			ok := false
			vecs, err := p.embedder.CreateEmbeddings(ctx, []string{text})
			if err != nil || len(vecs) != 1 {
				p.logger.Warn().Err(err).Str("message_id", id).Msg("Failed to embed message")
			}

			mu.Lock()
			defer mu.Unlock()
			if err == nil && len(vecs) == 1 {
				ok = p.storeVector(ctx, id, vecs[0], result)
			} else {
				result.Failed++
			}
			if !ok {
				failed = append(failed, id)
			}
		}(msg.ID, texts[i])
	}
	wg.Wait()
	return failed
}

// storeVector persists one vector; callers serialize access to result
func (p *Processor) storeVector(ctx context.Context, id string, vector []float32, result *models.TaskResult) bool {
	if err := p.vectors.Store(ctx, id, vector); err != nil {
		p.logger.Warn().Err(err).Str("message_id", id).Msg("Failed to store embedding")
		result.Failed++
		return false
	}
	result.Embedded++
	return true
}

func (p *Processor) summarizeEmails(ctx context.Context, limit int, result *models.TaskResult) error {
	if p.summarizer == nil {
		p.logger.Warn().Msg("No summarizer configured, skipping summaries")
		return nil
	}
	if limit <= 0 {
		limit = defaultSummaryLimit
	}

	msgs, err := p.messages.ListUnsummarized(ctx, limit)
	if err != nil {
		return fmt.Errorf("load messages to summarize: %w", err)
	}

	p.summarize(ctx, msgs, result)
	result.Processed = result.Summarized
	return nil
}

// summarize writes summaries one message at a time, paced by the limiter.
// Summaries are also set on msgs so a following embedding step includes them.
func (p *Processor) summarize(ctx context.Context, msgs []models.Message, result *models.TaskResult) {
	for i := range msgs {
		msg := &msgs[i]
		if msg.Summary != "" {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Warn().Err(err).Int("remaining", len(msgs)-i).Msg("Summary pacing interrupted")
			return
		}

		summary, err := p.summarizer.Summarize(ctx, msg.Subject, msg.Body)
		if err == nil && strings.TrimSpace(summary) == "" {
			err = fmt.Errorf("empty summary")
		}
		if err != nil {
			p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to summarize message")
			result.Failed++
			continue
		}

		if err := p.messages.UpdateSummary(ctx, msg.ID, summary); err != nil {
			p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to save summary")
			result.Failed++
			continue
		}
		msg.Summary = summary
		result.Summarized++
	}
}

func (p *Processor) processNewEmails(ctx context.Context, params models.TaskParams, result *models.TaskResult) error {
	if len(params.MessageIDs) == 0 {
		if err := p.summarizeEmails(ctx, params.Limit, result); err != nil {
			return err
		}
		if err := p.generateEmbeddings(ctx, params.Limit, result); err != nil {
			return err
		}
		result.Processed = result.Summarized + result.Embedded
		return nil
	}

	msgs, err := p.messages.GetByIDs(ctx, params.MessageIDs)
	if err != nil {
		return fmt.Errorf("load new messages: %w", err)
	}
	if missing := len(params.MessageIDs) - len(msgs); missing > 0 {
		p.logger.Warn().Int("missing", missing).Msg("Some new messages were not found")
	}

	if p.summarizer != nil {
		p.summarize(ctx, msgs, result)
	}

	if p.embedder != nil {
		var pending []models.Message
		for _, msg := range msgs {
			if !msg.ProcessedForVector {
				pending = append(pending, msg)
			}
		}
		for start := 0; start < len(pending); start += p.batchSize {
			end := min(start+p.batchSize, len(pending))
			p.embedBatch(ctx, pending[start:end], result)
		}
	}

	result.Processed = len(msgs)
	return nil
}
