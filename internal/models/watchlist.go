package models

import "time"

// WatchStatus is a user's tracking state for one title.
type WatchStatus string

const (
	WatchWatching    WatchStatus = "watching"
	WatchCompleted   WatchStatus = "completed"
	WatchPlanToWatch WatchStatus = "plan_to_watch"
	WatchOnHold      WatchStatus = "on_hold"
	WatchDropped     WatchStatus = "dropped"
)

// WatchlistEntry is owned by the requesting user.
type WatchlistEntry struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"user_id"`
	AnimeID         string      `json:"anime_id"`
	Status          WatchStatus `json:"status"`
	EpisodesWatched int         `json:"episodes_watched"`
	// TotalEpisodes is the user's override; zero means "not set".
	TotalEpisodes      int       `json:"total_episodes"`
	KnownTotalEpisodes int       `json:"known_total_episodes"`
	CacheEpisodesTotal *int      `json:"cache_episodes_total,omitempty"`
	Title              string    `json:"title"`
	ImageURL           string    `json:"image_url"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EffectiveTotal is the episode count shown for the entry.
func (w *WatchlistEntry) EffectiveTotal() int {
	if w.TotalEpisodes > 0 {
		return w.TotalEpisodes
	}
	if w.CacheEpisodesTotal != nil && *w.CacheEpisodesTotal > 0 {
		return *w.CacheEpisodesTotal
	}
	return w.KnownTotalEpisodes
}
