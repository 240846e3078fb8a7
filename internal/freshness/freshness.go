// Package freshness decides whether cached anime data must be refreshed.
// Every function is pure: callers pass the current time.
package freshness

import (
	"time"

	"github.com/vrsandeep/anime-sync/internal/models"
)

const (
	FinishedWindow = 7 * 24 * time.Hour
	AiringWindow   = 6 * time.Hour
	DefaultWindow  = 24 * time.Hour
)

// Window returns how long detail data for a title in the given status stays fresh.
func Window(status models.AiringStatus) time.Duration {
	switch status {
	case models.StatusFinished:
		return FinishedWindow
	case models.StatusAiring:
		return AiringWindow
	default:
		return DefaultWindow
	}
}

// IsStale reports whether the entity's detail data must be refetched.
// A nil entity or one that was never synced is always stale.
func IsStale(a *models.Anime, now time.Time) bool {
	if a == nil || a.LastFullSyncAt == nil {
		return true
	}
	return now.Sub(*a.LastFullSyncAt) > Window(a.Status)
}

// EpisodesStale reports whether the episode list must be refetched. Episode
// lists of finished titles keep for FinishedWindow, all others for AiringWindow.
func EpisodesStale(a *models.Anime, now time.Time) bool {
	if a == nil || a.EpisodesLastSyncAt == nil {
		return true
	}
	window := AiringWindow
	if a.Status == models.StatusFinished {
		window = FinishedWindow
	}
	return now.Sub(*a.EpisodesLastSyncAt) > window
}

// Cutoffs holds, per status, the sync time before which a row is stale.
type Cutoffs struct {
	Finished time.Time
	Airing   time.Time
	Other    time.Time
}

// StaleBefore computes the cutoffs used by batch staleness queries.
func StaleBefore(now time.Time) Cutoffs {
	return Cutoffs{
		Finished: now.Add(-FinishedWindow),
		Airing:   now.Add(-AiringWindow),
		Other:    now.Add(-DefaultWindow),
	}
}
