package jikan

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/upstream"
	"github.com/vrsandeep/anime-sync/internal/util"
)

const (
	ID             = "jikan"
	DefaultBaseURL = "https://api.jikan.moe/v4"

	// schedulePages bounds the weekly schedule walk; Jikan returns 25 per page.
	schedulePages = 4
)

var jst = time.FixedZone("JST", 9*60*60)

// JikanProvider implements the provider interfaces for the Jikan
// MyAnimeList API.
type JikanProvider struct {
	client  *upstream.Client
	baseURL string
	now     func() time.Time
}

// New creates a JikanProvider calling baseURL through client.
func New(client *upstream.Client, baseURL string) *JikanProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &JikanProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// GetInfo returns static information about this provider.
func (p *JikanProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:   ID,
		Name: "Jikan (MyAnimeList)",
		Capabilities: []string{
			providers.CapDetails, providers.CapEpisodes, providers.CapCount,
			providers.CapList, providers.CapSchedule,
		},
	}
}

func malID(id string) (int, error) {
	n, ok := models.MALID(id)
	if !ok {
		return 0, fmt.Errorf("%w: jikan only serves MyAnimeList ids, got %q", upstream.ErrNotFound, id)
	}
	return n, nil
}

// FetchAnime fetches /anime/{id}, or /anime/{id}/full for DepthFull.
func (p *JikanProvider) FetchAnime(ctx context.Context, id string, depth models.Depth) (*models.Anime, error) {
	n, err := malID(id)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/anime/%d", p.baseURL, n)
	if depth == models.DepthFull {
		endpoint += "/full"
	}

	var resp AnimeResponse
	if err := p.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, fmt.Errorf("%w: jikan anime %d has no data", upstream.ErrPartialData, n)
	}
	var data AnimeData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: jikan anime %d: %v", upstream.ErrPartialData, n, err)
	}
	if data.MalID == 0 || data.Title == "" {
		return nil, fmt.Errorf("%w: jikan anime %d is missing id or title", upstream.ErrPartialData, n)
	}

	a := toAnime(&data)
	a.RawPayloads = map[string]json.RawMessage{ID: resp.Data}
	return a, nil
}

// FetchEpisodePage fetches one page of /anime/{id}/episodes.
func (p *JikanProvider) FetchEpisodePage(ctx context.Context, id string, page int) (*models.EpisodePage, error) {
	n, err := malID(id)
	if err != nil {
		return nil, err
	}
	var resp EpisodesResponse
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := p.client.GetJSON(ctx, fmt.Sprintf("%s/anime/%d/episodes", p.baseURL, n), q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: jikan episodes for %d have no data", upstream.ErrPartialData, n)
	}

	out := &models.EpisodePage{
		HasNextPage: resp.Pagination.HasNextPage,
		LastPage:    resp.Pagination.LastVisiblePage,
	}
	for _, e := range resp.Data {
		if e.MalID <= 0 {
			continue
		}
		out.Episodes = append(out.Episodes, models.Episode{
			AnimeID:         id,
			Number:          e.MalID,
			Title:           e.Title,
			TitleJapanese:   e.TitleJapanese,
			AiredAt:         e.Aired,
			IsFiller:        e.Filler,
			IsRecap:         e.Recap,
			DurationSeconds: int(e.Duration),
		})
	}
	return out, nil
}

// FetchEpisodeCount reads the episode total from /anime/{id}.
func (p *JikanProvider) FetchEpisodeCount(ctx context.Context, id string) (int, error) {
	a, err := p.FetchAnime(ctx, id, models.DepthCore)
	if err != nil {
		return 0, err
	}
	if a.EpisodeCountTotal == nil || *a.EpisodeCountTotal <= 0 {
		return 0, fmt.Errorf("%w: jikan has no episode count for %s", upstream.ErrPartialData, id)
	}
	return *a.EpisodeCountTotal, nil
}

// List serves search, top and seasonal listings.
func (p *JikanProvider) List(ctx context.Context, q models.ListQuery) (*models.ListResult, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))

	var endpoint string
	switch q.Kind {
	case models.ListTop:
		endpoint = p.baseURL + "/top/anime"
	case models.ListSeason:
		endpoint = fmt.Sprintf("%s/seasons/%d/%s", p.baseURL, q.Year, q.Season)
	default:
		endpoint = p.baseURL + "/anime"
		params.Set("sfw", "true")
		if q.Query != "" {
			params.Set("q", q.Query)
		}
		if len(q.Genres) > 0 {
			ids := make([]string, len(q.Genres))
			for i, g := range q.Genres {
				ids[i] = strconv.Itoa(g)
			}
			params.Set("genres", strings.Join(ids, ","))
		}
		if q.Status != "" {
			params.Set("status", q.Status)
		}
		if q.Type != "" {
			params.Set("type", q.Type)
		}
		if q.OrderBy != "" {
			params.Set("order_by", q.OrderBy)
		}
		if q.Sort != "" {
			params.Set("sort", q.Sort)
		}
	}

	var resp ListResponse
	if err := p.client.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: jikan listing has no data", upstream.ErrPartialData)
	}

	out := &models.ListResult{
		Items:       make([]models.AnimeSummary, 0, len(resp.Data)),
		Page:        max(q.Page, 1),
		LastPage:    resp.Pagination.LastVisiblePage,
		HasNextPage: resp.Pagination.HasNextPage,
		Provider:    ID,
	}
	for i := range resp.Data {
		d := &resp.Data[i]
		if d.MalID == 0 {
			continue
		}
		out.Items = append(out.Items, models.AnimeSummary{
			ID:           strconv.Itoa(d.MalID),
			Title:        d.Title,
			TitleEnglish: d.TitleEnglish,
			ImageURL:     imageURL(d.Images),
			Score:        d.Score,
			Status:       models.ParseAiringStatus(d.Status),
			Type:         d.Type,
			Episodes:     d.Episodes,
			Season:       d.Season,
			Year:         d.Year,
		})
	}
	return out, nil
}

// FetchSchedule walks /schedules and converts JST broadcast slots to UTC.
func (p *JikanProvider) FetchSchedule(ctx context.Context) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	now := p.now()
	for page := 1; page <= schedulePages; page++ {
		var resp ListResponse
		params := url.Values{"page": {strconv.Itoa(page)}, "sfw": {"true"}}
		if err := p.client.GetJSON(ctx, p.baseURL+"/schedules", params, &resp); err != nil {
			if page > 1 && len(entries) > 0 {
				break
			}
			return nil, err
		}
		for i := range resp.Data {
			d := &resp.Data[i]
			next, ok := nextBroadcast(d.Broadcast, now)
			if !ok {
				continue
			}
			entries = append(entries, models.ScheduleEntry{
				AnimeID:  strconv.Itoa(d.MalID),
				Slug:     util.Slugify(d.Title),
				Title:    d.Title,
				ImageURL: imageURL(d.Images),
				AiringAt: &next,
				Day:      strings.ToLower(next.Weekday().String()),
				Time:     next.Format("15:04"),
			})
		}
		if !resp.Pagination.HasNextPage {
			break
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: jikan schedule is empty", upstream.ErrPartialData)
	}
	return entries, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// nextBroadcast returns the next UTC airing time for a JST broadcast slot
// such as {"day": "Mondays", "time": "23:30"}.
func nextBroadcast(b Broadcast, now time.Time) (time.Time, bool) {
	day, ok := weekdayNames[strings.TrimSuffix(strings.ToLower(strings.TrimSpace(b.Day)), "s")]
	if !ok {
		return time.Time{}, false
	}
	clock, err := time.Parse("15:04", strings.TrimSpace(b.Time))
	if err != nil {
		return time.Time{}, false
	}

	local := now.In(jst)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, jst)
	offset := (int(day) - int(local.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, offset)
	if candidate.Before(local) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate.UTC(), true
}

func imageURL(img Images) string {
	switch {
	case img.JPG.LargeImageURL != "":
		return img.JPG.LargeImageURL
	case img.JPG.ImageURL != "":
		return img.JPG.ImageURL
	case img.WebP.LargeImageURL != "":
		return img.WebP.LargeImageURL
	}
	return img.WebP.ImageURL
}

func names(in []Named) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

// episodeSeconds parses "mm:ss", "h:mm:ss" or "24 min" into seconds.
func episodeSeconds(s string) int {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return parseDuration(s) * 60
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

var durationPart = regexp.MustCompile(`(\d+)\s*(hr|min)`)

// parseDuration turns "24 min per ep" or "1 hr 47 min" into minutes.
func parseDuration(s string) int {
	total := 0
	for _, m := range durationPart.FindAllStringSubmatch(s, -1) {
		n, _ := strconv.Atoi(m[1])
		if m[2] == "hr" {
			n *= 60
		}
		total += n
	}
	return total
}

func toAnime(d *AnimeData) *models.Anime {
	alt := make([]string, 0, len(d.TitleSynonyms)+2)
	for _, t := range append([]string{d.TitleEnglish, d.TitleJapanese}, d.TitleSynonyms...) {
		if t != "" && t != d.Title {
			alt = append(alt, t)
		}
	}
	themes := names(d.Themes)
	themes = append(themes, names(d.Demographics)...)

	a := &models.Anime{
		ID:                     strconv.Itoa(d.MalID),
		MALID:                  d.MalID,
		Slug:                   util.Slugify(d.Title),
		Title:                  d.Title,
		TitleEnglish:           d.TitleEnglish,
		TitleJapanese:          d.TitleJapanese,
		AlternateTitles:        alt,
		Synopsis:               strings.TrimSpace(d.Synopsis),
		ImageURL:               imageURL(d.Images),
		TrailerURL:             d.Trailer.URL,
		Score:                  d.Score,
		ScoredBy:               d.ScoredBy,
		Rank:                   d.Rank,
		Popularity:             d.Popularity,
		Members:                d.Members,
		EpisodeCountTotal:      d.Episodes,
		EpisodeDurationMinutes: parseDuration(d.Duration),
		Status:                 models.ParseAiringStatus(d.Status),
		Type:                   d.Type,
		Source:                 d.Source,
		Rating:                 d.Rating,
		Season:                 d.Season,
		Year:                   d.Year,
		AiredFrom:              d.Aired.From,
		AiredTo:                d.Aired.To,
		Genres:                 names(d.Genres),
		Studios:                names(d.Studios),
		Themes:                 themes,
		Producers:              names(d.Producers),
	}
	if a.Year == 0 && d.Aired.From != nil {
		a.Year = d.Aired.From.Year()
	}
	return a
}
