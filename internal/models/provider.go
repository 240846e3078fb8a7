package models

import "time"

// ProviderInfo contains static information about a provider.
type ProviderInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// ListKind selects which listing a ListQuery asks for.
type ListKind string

const (
	ListSearch ListKind = "search"
	ListTop    ListKind = "top"
	ListSeason ListKind = "season"
)

// ListQuery is a normalized search or listing request.
type ListQuery struct {
	Kind    ListKind `json:"kind" validate:"required,oneof=search top season"`
	Query   string   `json:"q,omitempty" validate:"max=200"`
	Genres  []int    `json:"genres,omitempty" validate:"dive,min=1"`
	Status  string   `json:"status,omitempty" validate:"omitempty,oneof=airing complete upcoming"`
	Type    string   `json:"type,omitempty" validate:"omitempty,oneof=tv movie ova special ona music"`
	OrderBy string   `json:"order_by,omitempty" validate:"omitempty,oneof=title start_date end_date episodes score scored_by rank popularity members favorites"`
	Sort    string   `json:"sort,omitempty" validate:"omitempty,oneof=asc desc"`
	Page    int      `json:"page" validate:"min=1,max=1000"`
	Year    int      `json:"year,omitempty" validate:"required_if=Kind season,omitempty,min=1917,max=2100"`
	Season  string   `json:"season,omitempty" validate:"required_if=Kind season,omitempty,oneof=winter spring summer fall"`
}

// AnimeSummary is a single row of a listing.
type AnimeSummary struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	TitleEnglish string       `json:"title_english,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	Score        float64      `json:"score"`
	Status       AiringStatus `json:"status"`
	Type         string       `json:"type,omitempty"`
	Episodes     *int         `json:"episodes"`
	Season       string       `json:"season,omitempty"`
	Year         int          `json:"year,omitempty"`
}

// ListResult is one page of a listing.
type ListResult struct {
	Items       []AnimeSummary `json:"items"`
	Page        int            `json:"page"`
	LastPage    int            `json:"last_page"`
	HasNextPage bool           `json:"has_next_page"`
	Provider    string         `json:"provider"`
}

// ScheduleEntry is one airing slot in the weekly calendar.
type ScheduleEntry struct {
	AnimeID  string     `json:"anime_id,omitempty"`
	Slug     string     `json:"slug,omitempty"`
	Title    string     `json:"title"`
	ImageURL string     `json:"image_url,omitempty"`
	Episode  int        `json:"episode,omitempty"`
	AiringAt *time.Time `json:"airing_at,omitempty"`
	// Day is the lower-case UTC weekday, e.g. "monday".
	Day string `json:"day"`
	// Time is the UTC broadcast time as HH:MM.
	Time string `json:"time,omitempty"`
}

// Weekdays lists calendar keys starting on Monday.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Calendar is the weekly airing schedule grouped by day.
type Calendar struct {
	Days        map[string][]ScheduleEntry `json:"days"`
	Provider    string                     `json:"provider"`
	GeneratedAt time.Time                  `json:"generated_at"`
}
