package anilist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/upstream"
	"github.com/vrsandeep/anime-sync/internal/util"
)

const (
	ID         = "anilist"
	DefaultURL = "https://graphql.anilist.co"

	perPage        = 25
	schedulePages  = 3
	scheduleWindow = 7 * 24 * time.Hour
	// minThemeRank is the lowest tag rank promoted to a theme.
	minThemeRank = 60
)

const mediaFields = `
	id idMal
	title { romaji english native }
	synonyms
	description(asHtml: false)
	coverImage { extraLarge large }
	bannerImage
	averageScore popularity favourites
	episodes duration status format source season seasonYear
	startDate { year month day }
	endDate { year month day }
	genres isAdult
	studios(isMain: true) { nodes { name } }
	tags { name rank isMediaSpoiler }
	trailer { id site }
	nextAiringEpisode { episode airingAt }`

const fullFields = `
	characters(page: 1, perPage: 12, sort: ROLE) { nodes { id name { full native } image { large } } }
	relations { edges { relationType node { id idMal type format title { romaji english } } } }
	streamingEpisodes { title thumbnail url site }
	externalLinks { site url }`

const summaryFields = `
	id idMal
	title { romaji english }
	coverImage { large }
	averageScore status format episodes season seasonYear`

// AniListProvider implements the provider interfaces against the AniList
// GraphQL API.
type AniListProvider struct {
	client *upstream.Client
	url    string
	now    func() time.Time
}

// New creates an AniListProvider posting to url through client.
func New(client *upstream.Client, url string) *AniListProvider {
	if url == "" {
		url = DefaultURL
	}
	return &AniListProvider{client: client, url: url, now: time.Now}
}

// GetInfo returns static information about this provider.
func (p *AniListProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:   ID,
		Name: "AniList",
		Capabilities: []string{
			providers.CapDetails, providers.CapEpisodes, providers.CapCount,
			providers.CapList, providers.CapSchedule,
		},
	}
}

// mediaSelector turns a canonical id into the Media() arguments.
func mediaSelector(id string) (string, map[string]any, error) {
	if n, ok := models.MALID(id); ok {
		return "idMal: $id", map[string]any{"id": n}, nil
	}
	if n, ok := models.AniListID(id); ok {
		return "id: $id", map[string]any{"id": n}, nil
	}
	return "", nil, fmt.Errorf("%w: anilist cannot resolve id %q", upstream.ErrNotFound, id)
}

// graphQLErr maps GraphQL error statuses onto the upstream taxonomy.
func graphQLErr(errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	e := errs[0]
	switch {
	case e.Status == 404:
		return fmt.Errorf("%w: anilist: %s", upstream.ErrNotFound, e.Message)
	case e.Status == 429:
		return fmt.Errorf("%w: anilist: %s", upstream.ErrRateLimited, e.Message)
	case e.Status >= 500:
		return fmt.Errorf("%w: anilist: %s", upstream.ErrUpstreamUnavailable, e.Message)
	}
	return fmt.Errorf("%w: anilist: %s", upstream.ErrBadRequest, e.Message)
}

func (p *AniListProvider) post(ctx context.Context, query string, vars map[string]any, out any) error {
	return p.client.PostJSON(ctx, p.url, graphQLRequest{Query: query, Variables: vars}, out)
}

// FetchAnime queries Media by MAL id, or by AniList id for "al-" ids.
func (p *AniListProvider) FetchAnime(ctx context.Context, id string, depth models.Depth) (*models.Anime, error) {
	selector, vars, err := mediaSelector(id)
	if err != nil {
		return nil, err
	}
	fields := mediaFields
	if depth == models.DepthFull {
		fields += fullFields
	}
	query := fmt.Sprintf("query ($id: Int) { Media(%s, type: ANIME) { %s } }", selector, fields)

	var resp mediaResponse
	if err := p.post(ctx, query, vars, &resp); err != nil {
		return nil, err
	}
	if err := graphQLErr(resp.Errors); err != nil {
		return nil, err
	}
	if len(resp.Data.Media) == 0 || string(resp.Data.Media) == "null" {
		return nil, fmt.Errorf("%w: anilist media %s", upstream.ErrNotFound, id)
	}
	var m Media
	if err := json.Unmarshal(resp.Data.Media, &m); err != nil {
		return nil, fmt.Errorf("%w: anilist media %s: %v", upstream.ErrPartialData, id, err)
	}
	if m.ID == 0 || pickTitle(m.Title) == "" {
		return nil, fmt.Errorf("%w: anilist media %s is missing id or title", upstream.ErrPartialData, id)
	}

	a := toAnime(&m)
	a.ID = id
	a.RawPayloads = map[string]json.RawMessage{ID: resp.Data.Media}
	return a, nil
}

// FetchEpisodePage reads aired entries of Media.airingSchedule. AniList has
// no episode titles, so each episode is named by its number.
func (p *AniListProvider) FetchEpisodePage(ctx context.Context, id string, page int) (*models.EpisodePage, error) {
	selector, vars, err := mediaSelector(id)
	if err != nil {
		return nil, err
	}
	vars["page"] = page
	query := fmt.Sprintf(`query ($id: Int, $page: Int) { Media(%s, type: ANIME) {
		id duration airingSchedule(page: $page, perPage: 50, notYetAired: false) {
			pageInfo { currentPage lastPage hasNextPage }
			nodes { episode airingAt } } } }`, selector)

	var resp airingResponse
	if err := p.post(ctx, query, vars, &resp); err != nil {
		return nil, err
	}
	if err := graphQLErr(resp.Errors); err != nil {
		return nil, err
	}
	if resp.Data.Media == nil {
		return nil, fmt.Errorf("%w: anilist media %s", upstream.ErrNotFound, id)
	}

	sched := resp.Data.Media.AiringSchedule
	seconds := 0
	if d := resp.Data.Media.Duration; d != nil {
		seconds = *d * 60
	}
	now := p.now()
	out := &models.EpisodePage{HasNextPage: sched.PageInfo.HasNextPage, LastPage: sched.PageInfo.LastPage}
	for _, n := range sched.Nodes {
		if n.Episode <= 0 {
			continue
		}
		aired := time.Unix(n.AiringAt, 0).UTC()
		if aired.After(now) {
			continue
		}
		out.Episodes = append(out.Episodes, models.Episode{
			AnimeID:         id,
			Number:          n.Episode,
			Title:           "Episode " + strconv.Itoa(n.Episode),
			AiredAt:         &aired,
			DurationSeconds: seconds,
		})
	}
	return out, nil
}

// FetchEpisodeCount returns Media.episodes.
func (p *AniListProvider) FetchEpisodeCount(ctx context.Context, id string) (int, error) {
	a, err := p.FetchAnime(ctx, id, models.DepthCore)
	if err != nil {
		return 0, err
	}
	if a.EpisodeCountTotal == nil || *a.EpisodeCountTotal <= 0 {
		return 0, fmt.Errorf("%w: anilist has no episode count for %s", upstream.ErrPartialData, id)
	}
	return *a.EpisodeCountTotal, nil
}

var (
	statusArg = map[string]string{"airing": "RELEASING", "complete": "FINISHED", "upcoming": "NOT_YET_RELEASED"}
	formatArg = map[string]string{"tv": "TV", "movie": "MOVIE", "ova": "OVA", "special": "SPECIAL", "ona": "ONA", "music": "MUSIC"}
)

// List serves search, top and season listings via Page.media.
func (p *AniListProvider) List(ctx context.Context, q models.ListQuery) (*models.ListResult, error) {
	if len(q.Genres) > 0 {
		return nil, fmt.Errorf("%w: anilist does not filter by MyAnimeList genre ids", upstream.ErrBadRequest)
	}
	page := max(q.Page, 1)
	vars := map[string]any{"page": page, "perPage": perPage}
	args := []string{"type: ANIME", "isAdult: false"}
	decl := []string{"$page: Int", "$perPage: Int"}
	addArg := func(name, gqlType string, value any) {
		vars[name] = value
		decl = append(decl, "$"+name+": "+gqlType)
		args = append(args, name+": $"+name)
	}

	switch q.Kind {
	case models.ListTop:
		addArg("sort", "[MediaSort]", []string{"SCORE_DESC"})
	case models.ListSeason:
		addArg("season", "MediaSeason", strings.ToUpper(q.Season))
		addArg("seasonYear", "Int", q.Year)
		addArg("sort", "[MediaSort]", []string{"POPULARITY_DESC"})
	default:
		if q.Query != "" {
			addArg("search", "String", q.Query)
			addArg("sort", "[MediaSort]", []string{"SEARCH_MATCH"})
		} else {
			addArg("sort", "[MediaSort]", []string{"POPULARITY_DESC"})
		}
		if s, ok := statusArg[q.Status]; ok {
			addArg("status", "MediaStatus", s)
		}
		if f, ok := formatArg[q.Type]; ok {
			addArg("format", "MediaFormat", f)
		}
	}

	query := fmt.Sprintf(`query (%s) { Page(page: $page, perPage: $perPage) {
		pageInfo { currentPage lastPage hasNextPage }
		media(%s) { %s } } }`, strings.Join(decl, ", "), strings.Join(args, ", "), summaryFields)

	var resp pageResponse
	if err := p.post(ctx, query, vars, &resp); err != nil {
		return nil, err
	}
	if err := graphQLErr(resp.Errors); err != nil {
		return nil, err
	}

	pg := resp.Data.Page
	out := &models.ListResult{
		Items:       make([]models.AnimeSummary, 0, len(pg.Media)),
		Page:        page,
		LastPage:    pg.PageInfo.LastPage,
		HasNextPage: pg.PageInfo.HasNextPage,
		Provider:    ID,
	}
	for i := range pg.Media {
		m := &pg.Media[i]
		year := 0
		if m.SeasonYear != nil {
			year = *m.SeasonYear
		}
		out.Items = append(out.Items, models.AnimeSummary{
			ID:           canonicalID(m),
			Title:        pickTitle(m.Title),
			TitleEnglish: m.Title.English,
			ImageURL:     m.CoverImage.Large,
			Score:        score(m.AverageScore),
			Status:       models.ParseAiringStatus(m.Status),
			Type:         m.Format,
			Episodes:     m.Episodes,
			Season:       strings.ToLower(m.Season),
			Year:         year,
		})
	}
	return out, nil
}

// FetchSchedule lists airing slots for the next seven days.
func (p *AniListProvider) FetchSchedule(ctx context.Context) ([]models.ScheduleEntry, error) {
	now := p.now()
	vars := map[string]any{
		"start": now.Unix(),
		"end":   now.Add(scheduleWindow).Unix(),
	}
	query := `query ($page: Int, $start: Int, $end: Int) { Page(page: $page, perPage: 50) {
		pageInfo { hasNextPage }
		airingSchedules(airingAt_greater: $start, airingAt_lesser: $end, sort: TIME) {
			airingAt episode
			media { id idMal isAdult title { romaji english } coverImage { large } } } } }`

	var entries []models.ScheduleEntry
	for page := 1; page <= schedulePages; page++ {
		vars["page"] = page
		var resp pageResponse
		if err := p.post(ctx, query, vars, &resp); err != nil {
			if len(entries) > 0 {
				break
			}
			return nil, err
		}
		if err := graphQLErr(resp.Errors); err != nil {
			if len(entries) > 0 {
				break
			}
			return nil, err
		}
		for _, s := range resp.Data.Page.AiringSchedules {
			if s.Media.IsAdult {
				continue
			}
			at := time.Unix(s.AiringAt, 0).UTC()
			title := pickTitle(s.Media.Title)
			entries = append(entries, models.ScheduleEntry{
				AnimeID:  canonicalID(&s.Media),
				Slug:     util.Slugify(title),
				Title:    title,
				ImageURL: s.Media.CoverImage.Large,
				Episode:  s.Episode,
				AiringAt: &at,
				Day:      strings.ToLower(at.Weekday().String()),
				Time:     at.Format("15:04"),
			})
		}
		if !resp.Data.Page.PageInfo.HasNextPage {
			break
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: anilist schedule is empty", upstream.ErrPartialData)
	}
	return entries, nil
}

func canonicalID(m *Media) string {
	if m.IDMal != nil && *m.IDMal > 0 {
		return strconv.Itoa(*m.IDMal)
	}
	return models.AniListPrefix + strconv.Itoa(m.ID)
}

func pickTitle(t Title) string {
	if t.Romaji != "" {
		return t.Romaji
	}
	if t.English != "" {
		return t.English
	}
	return t.Native
}

// score converts AniList's 0-100 averageScore to the 0-10 scale.
func score(avg *int) float64 {
	if avg == nil {
		return 0
	}
	return float64(*avg) / 10
}

// stripHTML removes markup from AniList descriptions, keeping line breaks.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(s)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	lines := strings.Split(doc.Text(), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

func fuzzyDate(d FuzzyDate) *time.Time {
	if d.Year == nil {
		return nil
	}
	month, day := 1, 1
	if d.Month != nil {
		month = *d.Month
	}
	if d.Day != nil {
		day = *d.Day
	}
	t := time.Date(*d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func toAnime(m *Media) *models.Anime {
	title := pickTitle(m.Title)
	var alt []string
	for _, t := range append([]string{m.Title.English, m.Title.Native}, m.Synonyms...) {
		if t != "" && t != title {
			alt = append(alt, t)
		}
	}
	var studios []string
	for _, s := range m.Studios.Nodes {
		studios = append(studios, s.Name)
	}
	var themes []string
	for _, t := range m.Tags {
		if !t.IsMediaSpoiler && t.Rank >= minThemeRank {
			themes = append(themes, t.Name)
		}
	}

	a := &models.Anime{
		AniListID:         m.ID,
		Slug:              util.Slugify(title),
		Title:             title,
		TitleEnglish:      m.Title.English,
		TitleJapanese:     m.Title.Native,
		AlternateTitles:   alt,
		Synopsis:          stripHTML(m.Description),
		ImageURL:          m.CoverImage.ExtraLarge,
		BackdropURL:       m.BannerImage,
		Score:             score(m.AverageScore),
		Popularity:        m.Popularity,
		EpisodeCountTotal: m.Episodes,
		Status:            models.ParseAiringStatus(m.Status),
		Type:              m.Format,
		Source:            strings.ToLower(m.Source),
		Season:            strings.ToLower(m.Season),
		AiredFrom:         fuzzyDate(m.StartDate),
		AiredTo:           fuzzyDate(m.EndDate),
		Genres:            m.Genres,
		Studios:           studios,
		Themes:            themes,
	}
	if a.ImageURL == "" {
		a.ImageURL = m.CoverImage.Large
	}
	if m.IDMal != nil {
		a.MALID = *m.IDMal
	}
	if m.Duration != nil {
		a.EpisodeDurationMinutes = *m.Duration
	}
	if m.SeasonYear != nil {
		a.Year = *m.SeasonYear
	} else if a.AiredFrom != nil {
		a.Year = a.AiredFrom.Year()
	}
	if m.Trailer != nil && m.Trailer.Site == "youtube" && m.Trailer.ID != "" {
		a.TrailerURL = "https://www.youtube.com/watch?v=" + m.Trailer.ID
	}
	return a
}
