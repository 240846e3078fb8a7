package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/upstream"
	"github.com/vrsandeep/anime-sync/internal/util"
)

const (
	ID              = "tmdb"
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	DefaultImageURL = "https://image.tmdb.org/t/p"

	animationGenre = 16
	// maxDistanceRatio rejects matches whose edit distance exceeds this
	// share of the title length.
	maxDistanceRatio = 0.4
)

// TMDBProvider enriches cached titles with TMDB artwork, trailers and
// content ratings.
type TMDBProvider struct {
	client   *upstream.Client
	baseURL  string
	imageURL string
	apiKey   string
	language string
}

// New creates a TMDBProvider. An empty apiKey disables it; callers should
// not register it then.
func New(client *upstream.Client, baseURL, imageURL, apiKey, language string) *TMDBProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if imageURL == "" {
		imageURL = DefaultImageURL
	}
	return &TMDBProvider{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		imageURL: strings.TrimRight(imageURL, "/"),
		apiKey:   apiKey,
		language: language,
	}
}

// GetInfo returns static information about this provider.
func (p *TMDBProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{ID: ID, Name: "TMDB", Capabilities: []string{providers.CapEnrich}}
}

func (p *TMDBProvider) params() url.Values {
	v := url.Values{"api_key": {p.apiKey}}
	if p.language != "" {
		v.Set("language", p.language)
	}
	return v
}

// Enrich searches TMDB for the title, picks the closest animated match and
// reads its backdrop, trailer and US content rating.
func (p *TMDBProvider) Enrich(ctx context.Context, a *models.Anime) (*models.Enrichment, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: tmdb has no api key", upstream.ErrBadRequest)
	}
	query := a.TitleEnglish
	if query == "" {
		query = a.Title
	}

	params := p.params()
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("with_genres", strconv.Itoa(animationGenre))
	if a.Year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(a.Year))
	}
	var search SearchResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/search/tv", params, &search); err != nil {
		return nil, err
	}

	best, ok := bestMatch(search.Results, a)
	if !ok {
		return nil, fmt.Errorf("%w: no tmdb match for %q", upstream.ErrNotFound, query)
	}

	params = p.params()
	params.Set("append_to_response", "credits,videos,images,content_ratings")
	var raw json.RawMessage
	if err := p.client.GetJSON(ctx, fmt.Sprintf("%s/tv/%d", p.baseURL, best.ID), params, &raw); err != nil {
		return nil, err
	}
	var details TVDetails
	if err := json.Unmarshal(raw, &details); err != nil || details.ID == 0 {
		return nil, fmt.Errorf("%w: tmdb tv %d", upstream.ErrPartialData, best.ID)
	}

	e := &models.Enrichment{
		Provider:      ID,
		ExternalID:    details.ID,
		TrailerURL:    trailerURL(details.Videos.Results),
		ContentRating: contentRating(details.ContentRatings.Results),
		Raw:           raw,
	}
	if path := backdropPath(&details); path != "" {
		e.BackdropURL = p.imageURL + "/original" + path
	}
	return e, nil
}

// bestMatch picks the animated result with the smallest edit distance
// between match keys. Ties keep the first result.
func bestMatch(results []SearchResult, a *models.Anime) (SearchResult, bool) {
	var titles []string
	for _, t := range append([]string{a.Title, a.TitleEnglish, a.TitleJapanese}, a.AlternateTitles...) {
		if k := util.MatchKey(t); k != "" {
			titles = append(titles, k)
		}
	}
	if len(titles) == 0 {
		return SearchResult{}, false
	}

	best, bestDist, found := SearchResult{}, 0, false
	for _, r := range results {
		if len(r.GenreIDs) > 0 && !slices.Contains(r.GenreIDs, animationGenre) {
			continue
		}
		for _, name := range []string{r.Name, r.OriginalName} {
			key := util.MatchKey(name)
			if key == "" {
				continue
			}
			for _, t := range titles {
				d := levenshtein.ComputeDistance(key, t)
				limit := int(float64(max(len([]rune(t)), len([]rune(key)))) * maxDistanceRatio)
				if d > limit {
					continue
				}
				if !found || d < bestDist {
					best, bestDist, found = r, d, true
				}
			}
		}
	}
	return best, found
}

func trailerURL(videos []Video) string {
	var fallback string
	for _, v := range videos {
		if v.Site != "YouTube" || v.Key == "" {
			continue
		}
		u := "https://www.youtube.com/watch?v=" + v.Key
		if v.Type == "Trailer" && v.Official {
			return u
		}
		if fallback == "" && (v.Type == "Trailer" || v.Type == "Teaser") {
			fallback = u
		}
	}
	return fallback
}

func contentRating(ratings []ContentRating) string {
	for _, r := range ratings {
		if r.Country == "US" {
			return r.Rating
		}
	}
	if len(ratings) > 0 {
		return ratings[0].Rating
	}
	return ""
}

func backdropPath(d *TVDetails) string {
	if d.BackdropPath != "" {
		return d.BackdropPath
	}
	if len(d.Images.Backdrops) > 0 {
		return d.Images.Backdrops[0].FilePath
	}
	return ""
}
