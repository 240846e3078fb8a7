package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vrsandeep/anime-sync/internal/config"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/metrics"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/websocket"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyRunning = errors.New("job is already running")
)

// JobContext provides the dependencies a scheduled job needs.
// The core.App struct implements this interface.
type JobContext interface {
	Config() *config.Config
	WsHub() *websocket.Hub
	JobManager() *JobManager
	Syncer() *Syncer
}

// jobTask does the work of one scheduled job and returns a short summary
// for the status page.
type jobTask func(ctx context.Context, app JobContext) (string, error)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running map[string]bool
	appCtx  JobContext
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:    make(map[string]jobTask),
		status:  make(map[string]*JobStatus),
		running: make(map[string]bool),
		appCtx:  appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts the job in the background. A job that is still running
// is not started a second time.
func (jm *JobManager) RunJob(id string, app JobContext) error {
	jm.mu.Lock()
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s': %w", id, ErrJobNotFound)
	}
	if jm.running[id] {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s': %w", id, ErrJobAlreadyRunning)
	}
	if app == nil {
		app = jm.appCtx
	}

	jm.running[id] = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.mu.Unlock()

	logging.Info().Str("job", id).Msg("Starting job")
	broadcast(app, models.ProgressUpdate{JobID: id, Message: "Job started...", Status: "running"})

	go func() {
		var (
			summary string
			err     error
		)
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Str("job", id).Interface("panic", r).Msg("Job panicked")
				err = fmt.Errorf("job panicked: %v", r)
			}

			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = "failed"
				status.Message = err.Error()
			} else {
				status.Status = "success"
				status.Message = summary
				if summary == "" {
					status.Message = "Job completed successfully."
				}
			}
			final := models.ProgressUpdate{JobID: id, Message: status.Message, Progress: 100, Status: status.Status, Done: true}
			jm.running[id] = false
			jm.mu.Unlock()

			metrics.JobRuns.WithLabelValues(id, final.Status).Inc()
			logging.Info().Str("job", id).Str("status", final.Status).Msg("Finished job")
			broadcast(app, final)
		}()

		summary, err = task(context.Background(), app)
	}()
	return nil
}

// GetStatus returns a snapshot of every registered job, ordered by id.
func (jm *JobManager) GetStatus() []*JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]*JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		cp := *s
		statuses = append(statuses, &cp)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func broadcast(app JobContext, update models.ProgressUpdate) {
	if app == nil {
		return
	}
	app.WsHub().BroadcastJSON(update)
}
