package models

import "time"

// Episode is one episode of a cached anime.
type Episode struct {
	AnimeID         string     `json:"anime_id"`
	Number          int        `json:"episode_number"`
	Title           string     `json:"title"`
	TitleJapanese   string     `json:"title_japanese,omitempty"`
	AiredAt         *time.Time `json:"aired_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	IsFiller        bool       `json:"is_filler"`
	IsRecap         bool       `json:"is_recap"`
}

// EpisodePage is one page of a provider's episode listing.
type EpisodePage struct {
	Episodes    []Episode `json:"episodes"`
	HasNextPage bool      `json:"has_next_page"`
	LastPage    int       `json:"last_page"`
}

// EpisodeDiscussion links an episode to a forum thread.
type EpisodeDiscussion struct {
	AnimeID       string     `json:"anime_id"`
	EpisodeNumber int        `json:"episode_number"`
	ThreadID      int64      `json:"thread_id"`
	AiredAt       *time.Time `json:"aired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PendingDiscussion is an aired episode on someone's watching list that
// has no discussion thread yet.
type PendingDiscussion struct {
	AnimeID       string     `json:"anime_id"`
	AnimeTitle    string     `json:"anime_title"`
	Slug          string     `json:"slug"`
	EpisodeNumber int        `json:"episode_number"`
	EpisodeTitle  string     `json:"episode_title"`
	AiredAt       *time.Time `json:"aired_at,omitempty"`
}
