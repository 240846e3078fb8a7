// Package jobs keeps the entity cache warm: a worker queue runs detail
// and episode syncs, and scheduled jobs sweep airing titles, refresh stale
// rows, backfill watchlist episode counts and open discussion threads.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/vrsandeep/anime-sync/internal/forum"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/media"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// Enqueuer accepts background sync work.
type Enqueuer interface {
	EnqueueDetailSync(id string) error
	EnqueueEpisodeSync(id string) error
}

// ImageMirror copies a remote poster into local media storage.
type ImageMirror interface {
	Mirror(ctx context.Context, id, imageURL string) (*media.Image, error)
}

// SyncOptions configure a Syncer. Zero values get defaults.
type SyncOptions struct {
	Queue   Enqueuer
	Mirror  ImageMirror
	Threads forum.ThreadStore
	// ForumCategory is the category new discussion threads are posted in.
	ForumCategory int

	EpisodePageCap     int
	PagePause          time.Duration
	SweepPause         time.Duration
	BackfillPause      time.Duration
	BackfillBatch      int
	StaleBatch         int
	DiscussionLookback time.Duration
	DiscussionBatch    int

	Now func() time.Time
}

// Syncer performs the sync work. Every method logs and returns; none of
// them retry beyond what the upstream client already does.
type Syncer struct {
	store   *store.Store
	chain   *providers.Chain
	queue   Enqueuer
	mirror  ImageMirror
	threads forum.ThreadStore
	opts    SyncOptions
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	// discussionMu serializes find-or-create so one episode gets one thread.
	discussionMu sync.Mutex
}

func NewSyncer(st *store.Store, chain *providers.Chain, opts SyncOptions) *Syncer {
	if opts.EpisodePageCap <= 0 {
		opts.EpisodePageCap = 3
	}
	if opts.BackfillBatch <= 0 {
		opts.BackfillBatch = 25
	}
	if opts.StaleBatch <= 0 {
		opts.StaleBatch = 50
	}
	if opts.DiscussionLookback <= 0 {
		opts.DiscussionLookback = 48 * time.Hour
	}
	if opts.DiscussionBatch <= 0 {
		opts.DiscussionBatch = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{
		store:   st,
		chain:   chain,
		queue:   opts.Queue,
		mirror:  opts.Mirror,
		threads: opts.Threads,
		opts:    opts,
		now:     opts.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handle runs a queued task.
func (s *Syncer) Handle(ctx context.Context, t Task) error {
	switch t.Kind {
	case KindDetailSync:
		return s.DetailSync(ctx, t.AnimeID)
	case KindEpisodeSync:
		return s.EpisodeSync(ctx, t.AnimeID)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

// DetailSync refreshes one title at full depth. Running it twice against
// the same provider data leaves the same row.
func (s *Syncer) DetailSync(ctx context.Context, id string) error {
	prev, err := s.store.GetAnime(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var (
		a    *models.Anime
		errs []error
	)
	for _, p := range s.chain.Details {
		provider := p.GetInfo().ID
		a, err = p.FetchAnime(ctx, id, models.DepthFull)
		if err == nil {
			break
		}
		logging.Debug().Err(err).Str("provider", provider).Str("anime_id", id).Msg("Detail provider failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", provider, err))
		if ctx.Err() != nil {
			break
		}
	}
	if a == nil {
		return upstream.Exhausted(errs)
	}

	fresh := maps.Clone(a.RawPayloads)
	a.ID = id
	a.Merge(prev)
	synced := s.now()
	a.LastFullSyncAt = &synced
	if err := s.store.UpsertAnime(a); err != nil {
		return fmt.Errorf("failed to write anime %s: %w", id, err)
	}
	if err := s.store.SaveProviderPayloads(id, fresh, synced); err != nil {
		logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to save provider payload")
	}

	s.enrich(ctx, a, synced)
	s.mirrorImage(ctx, a)

	if a.Status == models.StatusAiring && s.queue != nil {
		if err := s.queue.EnqueueEpisodeSync(id); err != nil {
			logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to enqueue episode sync")
		}
	}
	logging.Info().Str("anime_id", id).Str("title", a.Title).Msg("Detail sync complete")
	return nil
}

// enrich asks enrichers in order and keeps the first answer.
func (s *Syncer) enrich(ctx context.Context, a *models.Anime, at time.Time) {
	for _, e := range s.chain.Enrichers {
		provider := e.GetInfo().ID
		res, err := e.Enrich(ctx, a)
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider).Str("anime_id", a.ID).Msg("No enrichment")
			continue
		}
		if res.Provider == "" {
			res.Provider = provider
		}
		if err := s.store.SetEnrichment(a.ID, res, at); err != nil {
			logging.Warn().Err(err).Str("anime_id", a.ID).Msg("Failed to save enrichment")
		}
		return
	}
}

// mirrorImage copies the poster only when no local copy exists yet.
func (s *Syncer) mirrorImage(ctx context.Context, a *models.Anime) {
	if s.mirror == nil || a.LocalImageURL != "" || a.ImageURL == "" {
		return
	}
	img, err := s.mirror.Mirror(ctx, a.ID, a.ImageURL)
	if err != nil {
		logging.Warn().Err(err).Str("anime_id", a.ID).Msg("Failed to mirror image")
		return
	}
	if err := s.store.SetLocalImage(a.ID, img.LocalURL, img.ThumbnailURL); err != nil {
		logging.Warn().Err(err).Str("anime_id", a.ID).Msg("Failed to save mirrored image")
	}
}

// EpisodeSync refreshes the episode list of one title. The next episode
// provider is only tried when the current one fails on the first page;
// a later failure keeps the pages already written.
func (s *Syncer) EpisodeSync(ctx context.Context, id string) error {
	anime, err := s.store.GetAnime(id)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.DetailSync(ctx, id); err != nil {
			return fmt.Errorf("episode sync of uncached %s: %w", id, err)
		}
		anime, err = s.store.GetAnime(id)
	}
	if err != nil {
		return err
	}
	// Episodes without their own length take the title's per-episode length.
	fallbackSeconds := anime.EpisodeDurationMinutes * 60

	var errs []error
	for _, p := range s.chain.Episodes {
		provider := p.GetInfo().ID
		pages, err := s.syncEpisodePages(ctx, p, id, fallbackSeconds)
		if err != nil && pages == 0 {
			logging.Debug().Err(err).Str("provider", provider).Str("anime_id", id).Msg("Episode provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", provider, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err != nil {
			logging.Warn().Err(err).Str("provider", provider).Str("anime_id", id).Int("pages", pages).Msg("Episode sync stopped early")
		}
		if err := s.store.TouchEpisodesSynced(id, s.now()); err != nil {
			return err
		}
		logging.Info().Str("anime_id", id).Str("provider", provider).Int("pages", pages).Msg("Episode sync complete")
		return nil
	}
	return upstream.Exhausted(errs)
}

// syncEpisodePages walks pages in ascending order up to the page cap and
// returns how many were written.
func (s *Syncer) syncEpisodePages(ctx context.Context, p providers.EpisodeFetcher, id string, fallbackSeconds int) (int, error) {
	for page := 1; page <= s.opts.EpisodePageCap; page++ {
		if page > 1 {
			if err := s.sleep(ctx, s.opts.PagePause); err != nil {
				return page - 1, err
			}
		}
		res, err := p.FetchEpisodePage(ctx, id, page)
		if err != nil {
			return page - 1, err
		}
		episodes := make([]models.Episode, 0, len(res.Episodes))
		for _, ep := range res.Episodes {
			if ep.Number <= 0 {
				continue
			}
			ep.AnimeID = id
			if ep.DurationSeconds <= 0 {
				ep.DurationSeconds = fallbackSeconds
			}
			episodes = append(episodes, ep)
		}
		if len(episodes) > 0 {
			if _, err := s.store.UpsertEpisodes(id, episodes); err != nil {
				return page - 1, err
			}
		}
		if !res.HasNextPage {
			return page, nil
		}
	}
	return s.opts.EpisodePageCap, nil
}

// WatchlistBackfill looks up total episode counts for watchlist titles
// that have none. A nil ids backfills the next batch from the store. It
// returns the number of titles updated.
func (s *Syncer) WatchlistBackfill(ctx context.Context, ids []string) (int, error) {
	if ids == nil {
		var err error
		ids, err = s.store.ListAnimeIDsMissingEpisodeCount(s.opts.BackfillBatch)
		if err != nil {
			return 0, err
		}
	}

	updated := 0
	for i, id := range ids {
		if i > 0 {
			if err := s.sleep(ctx, s.opts.BackfillPause); err != nil {
				return updated, err
			}
		}
		total, ok := s.countEpisodes(ctx, id)
		if !ok {
			continue
		}
		n, err := s.store.SetKnownTotalEpisodes(id, total)
		if err != nil {
			logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to save episode count")
			continue
		}
		if n > 0 {
			updated++
		}
	}
	return updated, nil
}

func (s *Syncer) countEpisodes(ctx context.Context, id string) (int, bool) {
	for _, c := range s.chain.Counters {
		total, err := c.FetchEpisodeCount(ctx, id)
		if err != nil {
			logging.Debug().Err(err).Str("provider", c.GetInfo().ID).Str("anime_id", id).Msg("Episode count failed, trying next")
			continue
		}
		if total > 0 {
			return total, true
		}
	}
	return 0, false
}

// Sweep queues a detail sync for every airing title and every title on a
// watching list. It returns the number of tasks queued.
func (s *Syncer) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.SweepTargets()
	if err != nil {
		return 0, err
	}
	return s.enqueueDetails(ctx, ids)
}

// RefreshStale queues a detail sync for the stalest cached rows.
func (s *Syncer) RefreshStale(ctx context.Context) (int, error) {
	ids, err := s.store.ListStaleAnimeIDs(s.now(), s.opts.StaleBatch)
	if err != nil {
		return 0, err
	}
	return s.enqueueDetails(ctx, ids)
}

func (s *Syncer) enqueueDetails(ctx context.Context, ids []string) (int, error) {
	if s.queue == nil {
		return 0, errors.New("no sync queue configured")
	}
	queued := 0
	for i, id := range ids {
		if i > 0 {
			if err := s.sleep(ctx, s.opts.SweepPause); err != nil {
				return queued, err
			}
		}
		if err := s.queue.EnqueueDetailSync(id); err != nil {
			logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to enqueue detail sync")
			continue
		}
		queued++
	}
	return queued, nil
}

// CreateEpisodeDiscussions opens a thread for recently aired episodes of
// titles someone is watching. It returns the number of links created.
func (s *Syncer) CreateEpisodeDiscussions(ctx context.Context) (int, error) {
	if s.threads == nil {
		return 0, forum.ErrDisabled
	}
	now := s.now()
	pending, err := s.store.ListEpisodesNeedingDiscussion(now.Add(-s.opts.DiscussionLookback), now, s.opts.DiscussionBatch)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range pending {
		_, ok, err := s.ensureThread(ctx, p)
		if err != nil {
			logging.Warn().Err(err).Str("anime_id", p.AnimeID).Int("episode", p.EpisodeNumber).Msg("Failed to create discussion")
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// EnsureDiscussion returns the discussion link of a cached episode,
// finding or creating the thread first when there is none. The bool
// reports whether a link was created.
func (s *Syncer) EnsureDiscussion(ctx context.Context, animeID string, episode int) (*models.EpisodeDiscussion, bool, error) {
	if s.threads == nil {
		return nil, false, forum.ErrDisabled
	}
	link, err := s.store.GetDiscussionLink(animeID, episode)
	if err == nil {
		return link, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	a, err := s.store.GetAnime(animeID)
	if err != nil {
		return nil, false, err
	}
	episodes, err := s.store.GetEpisodes(animeID)
	if err != nil {
		return nil, false, err
	}
	for _, ep := range episodes {
		if ep.Number != episode {
			continue
		}
		return s.ensureThread(ctx, models.PendingDiscussion{
			AnimeID:       animeID,
			AnimeTitle:    a.Title,
			Slug:          a.Slug,
			EpisodeNumber: episode,
			EpisodeTitle:  ep.Title,
			AiredAt:       ep.AiredAt,
		})
	}
	return nil, false, fmt.Errorf("episode %d of %s: %w", episode, animeID, store.ErrNotFound)
}

func (s *Syncer) ensureThread(ctx context.Context, p models.PendingDiscussion) (*models.EpisodeDiscussion, bool, error) {
	s.discussionMu.Lock()
	defer s.discussionMu.Unlock()

	if link, err := s.store.GetDiscussionLink(p.AnimeID, p.EpisodeNumber); err == nil {
		return link, false, nil
	}

	title := forum.ThreadTitle(p.AnimeTitle, p.EpisodeNumber)
	threadID, found, err := s.threads.FindThread(ctx, title)
	if err != nil {
		return nil, false, err
	}
	if !found {
		threadID, err = s.threads.CreateThread(ctx, forum.NewThread{
			Title:      title,
			Raw:        forum.ThreadBody(p.AnimeTitle, p.EpisodeNumber, p.EpisodeTitle),
			CategoryID: s.opts.ForumCategory,
		})
		if err != nil {
			return nil, false, err
		}
	}

	link := &models.EpisodeDiscussion{
		AnimeID:       p.AnimeID,
		EpisodeNumber: p.EpisodeNumber,
		ThreadID:      threadID,
		AiredAt:       p.AiredAt,
		CreatedAt:     s.now().UTC(),
	}
	created, err := s.store.CreateDiscussionLink(link)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.store.GetDiscussionLink(p.AnimeID, p.EpisodeNumber)
		return existing, false, err
	}
	logging.Info().Str("anime_id", p.AnimeID).Int("episode", p.EpisodeNumber).Int64("thread_id", threadID).Msg("Created episode discussion")
	return link, true, nil
}
