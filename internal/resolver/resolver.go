// Package resolver answers entity, episode, listing and calendar requests
// from the cache, falling back to providers in chain order and to stale
// cache rows when every provider fails.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vrsandeep/anime-sync/internal/freshness"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/metrics"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/pagecache"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// Outcome is the final state of one resolution.
type Outcome string

const (
	CacheHit         Outcome = "CACHE_HIT"
	FetchOK          Outcome = "FETCH_OK"
	StaleOK          Outcome = "STALE_OK"
	StaleUnavailable Outcome = "STALE_UNAVAILABLE"
)

// Header is the X-Cache value for the outcome.
func (o Outcome) Header() string {
	switch o {
	case CacheHit:
		return "HIT"
	case FetchOK:
		return "MISS"
	case StaleOK:
		return "STALE"
	default:
		return "ERROR"
	}
}

// Enqueuer hands sync work to the background queue.
type Enqueuer interface {
	EnqueueDetailSync(id string) error
	EnqueueEpisodeSync(id string) error
}

// EpisodeSyncer runs an episode sync inline.
type EpisodeSyncer interface {
	EpisodeSync(ctx context.Context, id string) error
}

// Options configures a Resolver. Zero values get defaults.
type Options struct {
	Queue              Enqueuer
	Episodes           EpisodeSyncer
	EpisodeSyncTimeout time.Duration
	// FetchTimeout bounds a provider fetch shared by concurrent requests.
	FetchTimeout time.Duration
	Now          func() time.Time
}

type Resolver struct {
	store              *store.Store
	chain              *providers.Chain
	pages              *pagecache.Cache
	queue              Enqueuer
	episodes           EpisodeSyncer
	episodeSyncTimeout time.Duration
	fetchTimeout       time.Duration
	now                func() time.Time
	group              singleflight.Group
}

func New(st *store.Store, chain *providers.Chain, pages *pagecache.Cache, opts Options) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EpisodeSyncTimeout <= 0 {
		opts.EpisodeSyncTimeout = 20 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = time.Minute
	}
	return &Resolver{
		store:              st,
		chain:              chain,
		pages:              pages,
		queue:              opts.Queue,
		episodes:           opts.Episodes,
		episodeSyncTimeout: opts.EpisodeSyncTimeout,
		fetchTimeout:       opts.FetchTimeout,
		now:                opts.Now,
	}
}

// Providers lists the providers taking part in resolution.
func (r *Resolver) Providers() []models.ProviderInfo {
	return r.chain.Infos()
}

// AnimeResult is a resolved entity and how it was obtained.
type AnimeResult struct {
	Anime   *models.Anime
	Outcome Outcome
}

// GetAnime returns the entity for a canonical id.
func (r *Resolver) GetAnime(ctx context.Context, id string) (*AnimeResult, error) {
	return r.getAnime(ctx, id, true)
}

func (r *Resolver) getAnime(ctx context.Context, id string, scheduleEpisodes bool) (*AnimeResult, error) {
	cached, err := r.store.GetAnime(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := r.now()
	if cached != nil && !freshness.IsStale(cached, now) {
		metrics.CacheLookups.WithLabelValues("anime", "hit").Inc()
		metrics.ResolveOutcomes.WithLabelValues(string(CacheHit)).Inc()
		if scheduleEpisodes && freshness.EpisodesStale(cached, now) {
			r.enqueue("episode", id, r.enqueueEpisodes)
		}
		return &AnimeResult{Anime: cached, Outcome: CacheHit}, nil
	}
	metrics.CacheLookups.WithLabelValues("anime", "miss").Inc()

	// The shared fetch outlives any single caller so one cancelled request
	// does not fail the others waiting on it.
	ch := r.group.DoChan("anime:"+id, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.fetchAnime(fetchCtx, id, cached)
	})
	var v any
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err == nil {
		metrics.ResolveOutcomes.WithLabelValues(string(FetchOK)).Inc()
		return &AnimeResult{Anime: v.(*models.Anime), Outcome: FetchOK}, nil
	}

	if cached != nil {
		logging.Warn().Err(err).Str("anime_id", id).Msg("Providers failed, serving stale cache row")
		metrics.ResolveOutcomes.WithLabelValues(string(StaleOK)).Inc()
		return &AnimeResult{Anime: cached, Outcome: StaleOK}, nil
	}
	metrics.ResolveOutcomes.WithLabelValues(string(StaleUnavailable)).Inc()
	return nil, err
}

// fetchAnime tries every detail provider in order and writes the first
// success through to the cache.
func (r *Resolver) fetchAnime(ctx context.Context, id string, prev *models.Anime) (*models.Anime, error) {
	var errs []error
	for _, p := range r.chain.Details {
		provider := p.GetInfo().ID
		a, err := p.FetchAnime(ctx, id, models.DepthCore)
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider).Str("anime_id", id).Msg("Detail provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", provider, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		fresh := maps.Clone(a.RawPayloads)
		a.ID = id
		a.Merge(prev)
		synced := r.now()
		a.LastFullSyncAt = &synced
		if err := r.store.UpsertAnime(a); err != nil {
			return nil, fmt.Errorf("failed to write anime %s: %w", id, err)
		}
		if err := r.store.SaveProviderPayloads(id, fresh, synced); err != nil {
			logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to save provider payload")
		}
		r.enqueue("detail", id, r.enqueueDetail)
		return a, nil
	}
	return nil, upstream.Exhausted(errs)
}

func (r *Resolver) enqueueDetail(id string) error {
	return r.queue.EnqueueDetailSync(id)
}

func (r *Resolver) enqueueEpisodes(id string) error {
	return r.queue.EnqueueEpisodeSync(id)
}

// enqueue never fails the request.
func (r *Resolver) enqueue(kind, id string, fn func(string) error) {
	if r.queue == nil {
		return
	}
	if err := fn(id); err != nil {
		logging.Warn().Err(err).Str("kind", kind).Str("anime_id", id).Msg("Failed to enqueue sync")
	}
}
