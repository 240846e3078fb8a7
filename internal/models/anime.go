package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// AiringStatus is the normalized broadcast state of a title.
type AiringStatus string

const (
	StatusAiring   AiringStatus = "airing"
	StatusFinished AiringStatus = "finished"
	StatusUpcoming AiringStatus = "upcoming"
	StatusUnknown  AiringStatus = "unknown"
)

// ParseAiringStatus maps provider status strings from Jikan and AniList
// onto AiringStatus.
func ParseAiringStatus(s string) AiringStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "airing", "currently airing", "releasing":
		return StatusAiring
	case "finished", "finished airing", "complete", "cancelled":
		return StatusFinished
	case "upcoming", "not yet aired", "not_yet_released":
		return StatusUpcoming
	default:
		return StatusUnknown
	}
}

// Depth selects how much of an entity a provider fetches.
type Depth int

const (
	// DepthCore is the minimum needed to answer a request.
	DepthCore Depth = iota
	// DepthFull adds cast, relations, streaming and external links.
	DepthFull
)

// AniListPrefix marks canonical ids of titles that only AniList knows.
const AniListPrefix = "al-"

// MALID returns the numeric MyAnimeList id encoded in a canonical id.
func MALID(canonicalID string) (int, bool) {
	n, err := strconv.Atoi(canonicalID)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// AniListID returns the AniList id encoded in an "al-" canonical id.
func AniListID(canonicalID string) (int, bool) {
	if !strings.HasPrefix(canonicalID, AniListPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(canonicalID, AniListPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsCanonicalID reports whether s already has canonical id shape.
func IsCanonicalID(s string) bool {
	if _, ok := MALID(s); ok {
		return true
	}
	_, ok := AniListID(s)
	return ok
}

// Anime is the canonical cached record for one title.
type Anime struct {
	ID              string   `json:"id"`
	MALID           int      `json:"mal_id,omitempty"`
	AniListID       int      `json:"anilist_id,omitempty"`
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	TitleEnglish    string   `json:"title_english,omitempty"`
	TitleJapanese   string   `json:"title_japanese,omitempty"`
	AlternateTitles []string `json:"alternate_titles"`
	Synopsis        string   `json:"synopsis,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	LocalImageURL   string   `json:"local_image_url,omitempty"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	BackdropURL     string   `json:"backdrop_url,omitempty"`
	TrailerURL      string   `json:"trailer_url,omitempty"`

	Score      float64 `json:"score"`
	ScoredBy   int     `json:"scored_by,omitempty"`
	Rank       int     `json:"rank,omitempty"`
	Popularity int     `json:"popularity,omitempty"`
	Members    int     `json:"members,omitempty"`

	EpisodeCountTotal      *int         `json:"episodes"`
	EpisodeDurationMinutes int          `json:"episode_duration_minutes,omitempty"`
	Status                 AiringStatus `json:"status"`
	Type                   string       `json:"type,omitempty"`
	Source                 string       `json:"source,omitempty"`
	Rating                 string       `json:"rating,omitempty"`
	Season                 string       `json:"season,omitempty"`
	Year                   int          `json:"year,omitempty"`
	AiredFrom              *time.Time   `json:"aired_from,omitempty"`
	AiredTo                *time.Time   `json:"aired_to,omitempty"`

	Genres    []string `json:"genres"`
	Studios   []string `json:"studios"`
	Themes    []string `json:"themes"`
	Producers []string `json:"producers,omitempty"`

	LastFullSyncAt     *time.Time `json:"last_full_sync_at,omitempty"`
	EpisodesLastSyncAt *time.Time `json:"episodes_last_sync_at,omitempty"`

	// RawPayloads keeps each provider's last response for fields that are
	// not promoted to attributes above.
	RawPayloads map[string]json.RawMessage `json:"-"`
}

// EffectiveImageURL prefers the mirrored copy.
func (a *Anime) EffectiveImageURL() string {
	if a.LocalImageURL != "" {
		return a.LocalImageURL
	}
	return a.ImageURL
}

// Merge fills fields the fresh record left empty with values from the
// previously cached record. Fresh non-empty values always win.
func (a *Anime) Merge(prev *Anime) {
	if prev == nil {
		return
	}
	if a.MALID == 0 {
		a.MALID = prev.MALID
	}
	if a.AniListID == 0 {
		a.AniListID = prev.AniListID
	}
	fillString(&a.Title, prev.Title)
	fillString(&a.TitleEnglish, prev.TitleEnglish)
	fillString(&a.TitleJapanese, prev.TitleJapanese)
	fillString(&a.Synopsis, prev.Synopsis)
	fillString(&a.ImageURL, prev.ImageURL)
	fillString(&a.LocalImageURL, prev.LocalImageURL)
	fillString(&a.ThumbnailURL, prev.ThumbnailURL)
	fillString(&a.BackdropURL, prev.BackdropURL)
	fillString(&a.TrailerURL, prev.TrailerURL)
	fillString(&a.Type, prev.Type)
	fillString(&a.Source, prev.Source)
	fillString(&a.Rating, prev.Rating)
	fillString(&a.Season, prev.Season)
	if len(a.AlternateTitles) == 0 {
		a.AlternateTitles = prev.AlternateTitles
	}
	if a.Score == 0 {
		a.Score = prev.Score
	}
	if a.ScoredBy == 0 {
		a.ScoredBy = prev.ScoredBy
	}
	if a.Rank == 0 {
		a.Rank = prev.Rank
	}
	if a.Popularity == 0 {
		a.Popularity = prev.Popularity
	}
	if a.Members == 0 {
		a.Members = prev.Members
	}
	if a.EpisodeCountTotal == nil {
		a.EpisodeCountTotal = prev.EpisodeCountTotal
	}
	if a.EpisodeDurationMinutes == 0 {
		a.EpisodeDurationMinutes = prev.EpisodeDurationMinutes
	}
	if a.Status == "" || a.Status == StatusUnknown {
		if prev.Status != "" {
			a.Status = prev.Status
		}
	}
	if a.Year == 0 {
		a.Year = prev.Year
	}
	if a.AiredFrom == nil {
		a.AiredFrom = prev.AiredFrom
	}
	if a.AiredTo == nil {
		a.AiredTo = prev.AiredTo
	}
	if len(a.Genres) == 0 {
		a.Genres = prev.Genres
	}
	if len(a.Studios) == 0 {
		a.Studios = prev.Studios
	}
	if len(a.Themes) == 0 {
		a.Themes = prev.Themes
	}
	if len(a.Producers) == 0 {
		a.Producers = prev.Producers
	}
	if a.EpisodesLastSyncAt == nil {
		a.EpisodesLastSyncAt = prev.EpisodesLastSyncAt
	}
	for provider, raw := range prev.RawPayloads {
		if _, ok := a.RawPayloads[provider]; ok {
			continue
		}
		if a.RawPayloads == nil {
			a.RawPayloads = make(map[string]json.RawMessage)
		}
		a.RawPayloads[provider] = raw
	}
}

func fillString(dst *string, prev string) {
	if *dst == "" {
		*dst = prev
	}
}

// Enrichment is the extra artwork and rating data an enricher contributes.
type Enrichment struct {
	Provider      string          `json:"provider"`
	ExternalID    int             `json:"external_id"`
	BackdropURL   string          `json:"backdrop_url,omitempty"`
	TrailerURL    string          `json:"trailer_url,omitempty"`
	ContentRating string          `json:"content_rating,omitempty"`
	Raw           json.RawMessage `json:"-"`
}
