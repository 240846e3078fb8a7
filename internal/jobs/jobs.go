package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/vrsandeep/anime-sync/internal/config"
	"github.com/vrsandeep/anime-sync/internal/logging"
)

// Scheduled job ids.
const (
	JobSweep             = "anime-sweep"
	JobStaleRefresh      = "stale-refresh"
	JobWatchlistBackfill = "watchlist-backfill"
	JobDiscussions       = "episode-discussions"
)

// RegisterJobs registers the scheduled jobs with the manager. The
// discussion job only exists when a forum is configured.
func RegisterJobs(jm *JobManager, cfg *config.Config) {
	jm.Register(JobSweep, "Airing & Watchlist Sweep", func(ctx context.Context, app JobContext) (string, error) {
		unlock, err := TryLockSweep(app.Config().Database.Path)
		if err != nil {
			return "", err
		}
		defer unlock()
		n, err := app.Syncer().Sweep(ctx)
		return fmt.Sprintf("Queued %d detail syncs.", n), err
	})
	jm.Register(JobStaleRefresh, "Stale Cache Refresh", func(ctx context.Context, app JobContext) (string, error) {
		n, err := app.Syncer().RefreshStale(ctx)
		return fmt.Sprintf("Queued %d stale titles.", n), err
	})
	jm.Register(JobWatchlistBackfill, "Watchlist Episode Counts", func(ctx context.Context, app JobContext) (string, error) {
		n, err := app.Syncer().WatchlistBackfill(ctx, nil)
		return fmt.Sprintf("Updated episode counts for %d titles.", n), err
	})
	if cfg.Forum.Enabled {
		jm.Register(JobDiscussions, "Episode Discussions", func(ctx context.Context, app JobContext) (string, error) {
			n, err := app.Syncer().CreateEpisodeDiscussions(ctx)
			return fmt.Sprintf("Created %d discussion threads.", n), err
		})
	}
}

// StartJobs starts the background job scheduler. The caller stops it.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	cfg := app.Config().Sync
	scheduleJob(s, app, JobSweep, cfg.SweepInterval)
	scheduleJob(s, app, JobStaleRefresh, cfg.StaleInterval)
	scheduleJob(s, app, JobWatchlistBackfill, cfg.BackfillInterval)
	if app.Config().Forum.Enabled {
		scheduleJob(s, app, JobDiscussions, cfg.DiscussionInterval)
	}

	logging.Info().Msg("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func scheduleJob(s *gocron.Scheduler, app JobContext, jobID string, interval int) {
	if interval <= 0 {
		logging.Info().Str("job", jobID).Msg("Interval is 0, scheduled run is disabled")
		return
	}

	logging.Info().Str("job", jobID).Int("minutes", interval).Msg("Scheduling job")
	_, err := s.Every(interval).Minutes().Do(func() {
		logging.Debug().Str("job", jobID).Msg("Scheduler is triggering job")
		// Submit through the manager so a manual run and a scheduled run
		// never overlap.
		if err := app.JobManager().RunJob(jobID, app); err != nil {
			logging.Warn().Err(err).Str("job", jobID).Msg("Scheduled job could not start")
		}
	})
	if err != nil {
		logging.Error().Err(err).Str("job", jobID).Msg("Error scheduling job")
	}
}
