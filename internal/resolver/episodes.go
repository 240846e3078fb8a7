package resolver

import (
	"context"

	"github.com/vrsandeep/anime-sync/internal/freshness"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/models"
)

// EpisodeView is a cached episode with its discussion thread, if any.
type EpisodeView struct {
	models.Episode
	ThreadID int64 `json:"thread_id,omitempty"`
}

// EpisodesResult is the episode list of one entity.
type EpisodesResult struct {
	Anime    *models.Anime
	Episodes []EpisodeView
	Outcome  Outcome
}

// GetEpisodes returns the cached episode list of a title. A title whose
// episodes were never synced is synced inline; afterwards an empty list is
// served like any other and refreshed in the background once stale.
func (r *Resolver) GetEpisodes(ctx context.Context, id string) (*EpisodesResult, error) {
	res, err := r.getAnime(ctx, id, false)
	if err != nil {
		return nil, err
	}

	episodes, err := r.store.GetEpisodes(id)
	if err != nil {
		return nil, err
	}

	switch {
	case len(episodes) == 0 && res.Anime.EpisodesLastSyncAt == nil && r.episodes != nil:
		syncCtx, cancel := context.WithTimeout(ctx, r.episodeSyncTimeout)
		err := r.episodes.EpisodeSync(syncCtx, id)
		cancel()
		if err != nil {
			logging.Warn().Err(err).Str("anime_id", id).Msg("Inline episode sync failed")
			break
		}
		if episodes, err = r.store.GetEpisodes(id); err != nil {
			return nil, err
		}
	case freshness.EpisodesStale(res.Anime, r.now()):
		r.enqueue("episode", id, r.enqueueEpisodes)
	}

	links, err := r.store.GetDiscussionLinks(id)
	if err != nil {
		return nil, err
	}
	views := make([]EpisodeView, len(episodes))
	for i, ep := range episodes {
		views[i] = EpisodeView{Episode: ep}
		if link, ok := links[ep.Number]; ok {
			views[i].ThreadID = link.ThreadID
		}
	}
	return &EpisodesResult{Anime: res.Anime, Episodes: views, Outcome: res.Outcome}, nil
}
