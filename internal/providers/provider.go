package providers

import (
	"context"

	"github.com/vrsandeep/anime-sync/internal/models"
)

// Capability names reported in ProviderInfo.
const (
	CapDetails  = "details"
	CapEpisodes = "episodes"
	CapCount    = "episode_count"
	CapList     = "list"
	CapSchedule = "schedule"
	CapEnrich   = "enrich"
)

// Provider is implemented by every metadata source.
type Provider interface {
	GetInfo() models.ProviderInfo
}

// DetailFetcher fetches a single title by canonical id. Implementations
// return upstream.ErrNotFound for ids they cannot serve.
type DetailFetcher interface {
	Provider
	FetchAnime(ctx context.Context, id string, depth models.Depth) (*models.Anime, error)
}

// EpisodeFetcher returns one page of a title's episode list. Pages start at 1.
type EpisodeFetcher interface {
	Provider
	FetchEpisodePage(ctx context.Context, id string, page int) (*models.EpisodePage, error)
}

// EpisodeCounter returns only the total episode count of a title.
type EpisodeCounter interface {
	Provider
	FetchEpisodeCount(ctx context.Context, id string) (int, error)
}

// Lister serves search, top and season listings.
type Lister interface {
	Provider
	List(ctx context.Context, q models.ListQuery) (*models.ListResult, error)
}

// ScheduleFetcher returns the coming week's airing slots.
type ScheduleFetcher interface {
	Provider
	FetchSchedule(ctx context.Context) ([]models.ScheduleEntry, error)
}

// Enricher adds artwork and ratings to an existing title. It never
// provides primary data.
type Enricher interface {
	Provider
	Enrich(ctx context.Context, a *models.Anime) (*models.Enrichment, error)
}
