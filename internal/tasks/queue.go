// Package tasks runs background email processing in-process. Tasks live only in
// memory; a restart loses anything pending or running.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetention is how long finished tasks stay queryable
	DefaultRetention = 30 * time.Minute

	defaultJanitorInterval = time.Minute
)

// ErrQueueClosed is returned by Enqueue after Shutdown
var ErrQueueClosed = errors.New("task queue is shut down")

// Runner executes one task
type Runner interface {
	Run(ctx context.Context, taskType models.TaskType, params models.TaskParams) (*models.TaskResult, error)
}

// Stats counts tasks by status
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Queue is a FIFO of background tasks executed one at a time by a single worker
type Queue struct {
	runner          Runner
	logger          zerolog.Logger
	retention       time.Duration
	janitorInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	tasks   map[string]*models.BackgroundTask
	pending []string
	started bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a queue; nothing runs until Start
func NewQueue(runner Runner, retention time.Duration, logger zerolog.Logger) *Queue {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Queue{
		runner:          runner,
		logger:          logger.With().Str("component", "task_queue").Logger(),
		retention:       retention,
		janitorInterval: defaultJanitorInterval,
		now:             time.Now,
		tasks:           make(map[string]*models.BackgroundTask),
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
	}
}

// Start launches the worker and the janitor. Tasks outlive the cancellation of ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	hasPending := len(q.pending) > 0
	q.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)

	q.wg.Add(2)
	go q.worker(runCtx)
	go q.janitor()

	if hasPending {
		q.signal()
	}
	q.logger.Info().Dur("retention", q.retention).Msg("Task queue started")
}

// Shutdown stops accepting tasks and waits for the running task to finish or for
// ctx to expire. Pending tasks are abandoned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	abandoned := len(q.pending)
	q.mu.Unlock()

	close(q.stop)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info().Int("abandoned", abandoned).Msg("Task queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task queue shutdown: %w", ctx.Err())
	}
}

// Enqueue appends a task and wakes the worker. It never blocks on task execution.
func (q *Queue) Enqueue(taskType models.TaskType, params models.TaskParams) (string, error) {
	if !taskType.Valid() {
		return "", apperrors.Validation("enqueue task", fmt.Sprintf("unknown task type %q", taskType))
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	task := &models.BackgroundTask{
		ID:        uuid.New().String(),
		Type:      taskType,
		Params:    params,
		Status:    models.TaskPending,
		CreatedAt: q.now(),
	}
	q.tasks[task.ID] = task
	q.pending = append(q.pending, task.ID)
	queued := len(q.pending)
	q.mu.Unlock()

	q.signal()

	q.logger.Info().
		Str("task_id", task.ID).
		Str("type", string(taskType)).
		Int("queued", queued).
		Msg("Task enqueued")
	return task.ID, nil
}

// Get returns a snapshot of a task
func (q *Queue) Get(id string) (models.BackgroundTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return models.BackgroundTask{}, false
	}
	return *task, true
}

// List returns snapshots of all known tasks, oldest first
func (q *Queue) List() []models.BackgroundTask {
	q.mu.Lock()
	out := make([]models.BackgroundTask, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, *task)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats counts tasks by status
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, task := range q.tasks {
		switch task.Status {
		case models.TaskPending:
			s.Pending++
		case models.TaskProcessing:
			s.Processing++
		case models.TaskCompleted:
			s.Completed++
		case models.TaskFailed:
			s.Failed++
		}
	}
	return s
}

// PurgeExpired drops terminal tasks that finished more than the retention ago
func (q *Queue) PurgeExpired() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.retention)
	purged := 0
	for id, task := range q.tasks {
		if !task.Status.Terminal() || task.CompletedAt == nil {
			continue
		}
		if task.CompletedAt.Before(cutoff) {
			delete(q.tasks, id)
			purged++
		}
	}
	return purged
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}

		for {
			select {
			case <-q.stop:
				return
			default:
			}

			task, ok := q.next()
			if !ok {
				break
			}
			q.execute(ctx, task)
		}
	}
}

// next moves the oldest pending task to processing
func (q *Queue) next() (models.BackgroundTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]

		task, ok := q.tasks[id]
		if !ok || task.Status != models.TaskPending {
			continue
		}
		started := q.now()
		task.Status = models.TaskProcessing
		task.StartedAt = &started
		return *task, true
	}
	return models.BackgroundTask{}, false
}

func (q *Queue) execute(ctx context.Context, task models.BackgroundTask) {
	logger := q.logger.With().Str("task_id", task.ID).Str("type", string(task.Type)).Logger()
	logger.Info().Msg("Task started")

	result, err := q.run(ctx, task)

	q.mu.Lock()
	defer q.mu.Unlock()

	finished := q.now()
	stored, ok := q.tasks[task.ID]
	if !ok {
		return
	}
	stored.CompletedAt = &finished
	stored.Result = result

	if err != nil {
		stored.Status = models.TaskFailed
		stored.Error = err.Error()
		logger.Error().Err(err).Msg("Task failed")
		return
	}
	stored.Status = models.TaskCompleted

	event := logger.Info()
	if result != nil {
		event = event.Int("processed", result.Processed).Int("failed", result.Failed)
	}
	event.Dur("took", finished.Sub(*stored.StartedAt)).Msg("Task completed")
}

func (q *Queue) run(ctx context.Context, task models.BackgroundTask) (result *models.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Str("task_id", task.ID).Msg("Task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return q.runner.Run(ctx, task.Type, task.Params)
}

func (q *Queue) janitor() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if n := q.PurgeExpired(); n > 0 {
				q.logger.Debug().Int("purged", n).Msg("Purged finished tasks")
			}
		}
	}
}
