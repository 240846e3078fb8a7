package animeschedule

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

const (
	ID             = "animeschedule"
	DefaultBaseURL = "https://animeschedule.net/api/v3"
	ImageBaseURL   = "https://img.animeschedule.net/production/assets/public/img/"
)

// TimetableEntry is one slot of the /timetables response.
type TimetableEntry struct {
	Title             string    `json:"title"`
	Route             string    `json:"route"`
	Romaji            string    `json:"romaji"`
	English           string    `json:"english"`
	Native            string    `json:"native"`
	EpisodeDate       time.Time `json:"episodeDate"`
	EpisodeNumber     int       `json:"episodeNumber"`
	Episodes          int       `json:"episodes"`
	ImageVersionRoute string    `json:"imageVersionRoute"`
	AirType           string    `json:"airType"`
	Donghua           bool      `json:"donghua"`
}

// AnimeScheduleProvider only serves the weekly calendar.
type AnimeScheduleProvider struct {
	client  *upstream.Client
	baseURL string
}

// NewClientOptions adds the bearer token header AnimeSchedule requires.
func NewClientOptions(opts upstream.Options, token string) upstream.Options {
	h := opts.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Authorization", "Bearer "+token)
	opts.Headers = h
	return opts
}

// New creates an AnimeScheduleProvider. client must carry the bearer token,
// see NewClientOptions.
func New(client *upstream.Client, baseURL string) *AnimeScheduleProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &AnimeScheduleProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// GetInfo returns static information about this provider.
func (p *AnimeScheduleProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{ID: ID, Name: "AnimeSchedule", Capabilities: []string{providers.CapSchedule}}
}

// FetchSchedule returns this week's subbed timetable in UTC.
func (p *AnimeScheduleProvider) FetchSchedule(ctx context.Context) ([]models.ScheduleEntry, error) {
	var entries []TimetableEntry
	if err := p.client.GetJSON(ctx, p.baseURL+"/timetables/sub", url.Values{"tz": {"UTC"}}, &entries); err != nil {
		return nil, err
	}

	out := make([]models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if e.Route == "" || e.EpisodeDate.IsZero() {
			continue
		}
		at := e.EpisodeDate.UTC()
		title := e.Title
		if title == "" {
			title = e.Romaji
		}
		entry := models.ScheduleEntry{
			Slug:     e.Route,
			Title:    title,
			Episode:  e.EpisodeNumber,
			AiringAt: &at,
			Day:      strings.ToLower(at.Weekday().String()),
			Time:     at.Format("15:04"),
		}
		if e.ImageVersionRoute != "" {
			entry.ImageURL = ImageBaseURL + strings.TrimLeft(e.ImageVersionRoute, "/")
		}
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: animeschedule timetable is empty", upstream.ErrPartialData)
	}
	return out, nil
}
