package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/metrics"
)

var (
	// ErrQueueFull is returned when the buffer has no room for the task.
	ErrQueueFull = errors.New("sync queue is full")
	// ErrQueueClosed is returned after Stop.
	ErrQueueClosed = errors.New("sync queue is closed")
)

// TaskKind names the sync a task performs.
type TaskKind string

const (
	KindDetailSync  TaskKind = "detail_sync"
	KindEpisodeSync TaskKind = "episode_sync"
)

// Task is one unit of background sync work.
type Task struct {
	ID         string
	Kind       TaskKind
	AnimeID    string
	EnqueuedAt time.Time
}

func (t Task) key() string {
	return string(t.Kind) + ":" + t.AnimeID
}

// Handler runs a task. Returned errors are logged, never retried.
type Handler func(ctx context.Context, t Task) error

// QueueOptions configure a Queue. Zero values get defaults.
type QueueOptions struct {
	Size          int
	Workers       int
	JobsPerSecond float64
}

// Queue is a fire and forget task queue drained by a fixed worker pool.
// A task that is already queued or running for the same anime and kind
// is accepted and dropped. Delivery is at most once per Enqueue.
type Queue struct {
	tasks    chan Task
	handler  Handler
	workers  int
	limiter  *rate.Limiter
	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewQueue(opts QueueOptions, handler Handler) *Queue {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	limit := rate.Inf
	if opts.JobsPerSecond > 0 {
		limit = rate.Limit(opts.JobsPerSecond)
	}
	return &Queue{
		tasks:    make(chan Task, opts.Size),
		handler:  handler,
		workers:  opts.Workers,
		limiter:  rate.NewLimiter(limit, 1),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called; tasks still buffered at that point are dropped.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 1; i <= q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop cancels running tasks and waits for the workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Enqueue hands t to the workers without waiting for it to run.
func (q *Queue) Enqueue(t Task) error {
	if t.AnimeID == "" {
		return fmt.Errorf("enqueue %s: empty anime id", t.Kind)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, dup := q.inflight[t.key()]; dup {
		return nil
	}
	select {
	case q.tasks <- t:
		q.inflight[t.key()] = struct{}{}
		metrics.QueueDepth.Set(float64(len(q.tasks)))
		return nil
	default:
		metrics.JobRuns.WithLabelValues(string(t.Kind), "dropped").Inc()
		return ErrQueueFull
	}
}

func (q *Queue) EnqueueDetailSync(id string) error {
	return q.Enqueue(Task{Kind: KindDetailSync, AnimeID: id})
}

func (q *Queue) EnqueueEpisodeSync(id string) error {
	return q.Enqueue(Task{Kind: KindEpisodeSync, AnimeID: id})
}

// Pending is the number of tasks queued or running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Wait blocks until no task is queued or running, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for q.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Len is the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) worker(ctx context.Context, n int) {
	defer q.wg.Done()
	logging.Debug().Int("worker", n).Msg("Starting sync worker")
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			metrics.QueueDepth.Set(float64(len(q.tasks)))
			if err := q.limiter.Wait(ctx); err != nil {
				q.done(t)
				return
			}
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t Task) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			logging.Error().Str("task_id", t.ID).Str("kind", string(t.Kind)).Interface("panic", r).Msg("Sync task panicked")
		}
		q.done(t)
		metrics.JobRuns.WithLabelValues(string(t.Kind), outcome).Inc()
	}()

	if err := q.handler(ctx, t); err != nil {
		outcome = "failed"
		logging.Warn().Err(err).
			Str("task_id", t.ID).
			Str("kind", string(t.Kind)).
			Str("anime_id", t.AnimeID).
			Msg("Sync task failed")
		return
	}
	logging.Debug().
		Str("task_id", t.ID).
		Str("kind", string(t.Kind)).
		Str("anime_id", t.AnimeID).
		Dur("took", time.Since(start)).
		Msg("Sync task finished")
}

func (q *Queue) done(t Task) {
	q.mu.Lock()
	delete(q.inflight, t.key())
	q.mu.Unlock()
}
