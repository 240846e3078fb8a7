package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/anime-sync/internal/forum"
	"github.com/vrsandeep/anime-sync/internal/media"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/testutil"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeMirror struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *fakeMirror) Mirror(ctx context.Context, id, imageURL string) (*media.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, id+"="+imageURL)
	if m.err != nil {
		return nil, m.err
	}
	return &media.Image{LocalURL: "/media/anime/" + id + ".jpg", ThumbnailURL: "/media/anime/" + id + "_thumb.jpg"}, nil
}

type fakeThreads struct {
	mu       sync.Mutex
	existing map[string]int64
	created  []forum.NewThread
	nextID   int64
}

func (f *fakeThreads) CreateThread(ctx context.Context, t forum.NewThread) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, t)
	return 1000 + f.nextID, nil
}

func (f *fakeThreads) FindThread(ctx context.Context, title string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.existing[title]
	return id, ok, nil
}

type syncFixture struct {
	syncer *Syncer
	store  *store.Store
	queue  *testutil.FakeQueue
	mirror *fakeMirror
	sleeps []time.Duration
}

func newSyncFixture(t *testing.T, ps map[string]providers.Provider, order []string, opts SyncOptions) *syncFixture {
	t.Helper()
	st := store.New(testutil.SetupTestDB(t))
	chain := providers.NewChain(order, order, func(id string) (providers.Provider, bool) {
		p, ok := ps[id]
		return p, ok
	})
	f := &syncFixture{store: st, queue: &testutil.FakeQueue{}, mirror: &fakeMirror{}}
	opts.Queue = f.queue
	if opts.Mirror == nil {
		opts.Mirror = f.mirror
	}
	opts.Now = func() time.Time { return testNow }
	f.syncer = NewSyncer(st, chain, opts)
	f.syncer.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func frieren() *models.Anime {
	eps := 28
	return &models.Anime{
		MALID:             52991,
		Title:             "Sousou no Frieren",
		TitleEnglish:      "Frieren: Beyond Journey's End",
		ImageURL:          "https://cdn.example/frieren.jpg",
		Score:             9.3,
		EpisodeCountTotal: &eps,
		Status:            models.StatusFinished,
		Genres:            []string{"Adventure", "Drama"},
	}
}

func TestDetailSyncIsIdempotent(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.Anime["52991"] = frieren()
	tmdb := testutil.NewFakeProvider("tmdb")
	tmdb.Enrichment = &models.Enrichment{Provider: "tmdb", ExternalID: 209867, BackdropURL: "https://image.tmdb.org/t/p/original/b.jpg", Raw: []byte(`{"id":209867}`)}
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan, "tmdb": tmdb}, []string{"jikan", "tmdb"}, SyncOptions{})
	ctx := context.Background()

	require.NoError(t, f.syncer.DetailSync(ctx, "52991"))
	first, err := f.store.GetAnime("52991")
	require.NoError(t, err)

	require.NoError(t, f.syncer.DetailSync(ctx, "52991"))
	second, err := f.store.GetAnime("52991")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Sousou no Frieren", second.Title)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/b.jpg", second.BackdropURL)
	assert.Equal(t, "/media/anime/52991.jpg", second.LocalImageURL)
	require.NotNil(t, second.LastFullSyncAt)
	assert.True(t, testNow.Equal(*second.LastFullSyncAt))
	assert.Contains(t, second.RawPayloads, "tmdb")

	assert.Equal(t, 2, jikan.CallCount("FetchAnime:52991:1"), "full depth")
	assert.Equal(t, 2, tmdb.CallCount("Enrich:52991"))
	assert.Len(t, f.mirror.calls, 1, "images are mirrored once")
	details, episodes := f.queue.Snapshot()
	assert.Empty(t, details)
	assert.Empty(t, episodes, "finished titles do not queue episode syncs")
}

func TestDetailSyncQueuesEpisodesWhenAiring(t *testing.T) {
	anilist := testutil.NewFakeProvider("anilist")
	anilist.AnimeErr = upstream.ErrUpstreamUnavailable
	jikan := testutil.NewFakeProvider("jikan")
	a := frieren()
	a.Status = models.StatusAiring
	jikan.Anime["52991"] = a
	f := newSyncFixture(t, map[string]providers.Provider{"anilist": anilist, "jikan": jikan}, []string{"anilist", "jikan"}, SyncOptions{})
	f.mirror.err = upstream.ErrBadRequest

	require.NoError(t, f.syncer.DetailSync(context.Background(), "52991"))
	_, episodes := f.queue.Snapshot()
	assert.Equal(t, []string{"52991"}, episodes)

	row, err := f.store.GetAnime("52991")
	require.NoError(t, err)
	assert.Empty(t, row.LocalImageURL, "mirror failures are not fatal")
}

func TestDetailSyncExhausted(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan}, []string{"jikan"}, SyncOptions{})

	err := f.syncer.DetailSync(context.Background(), "404")
	assert.ErrorIs(t, err, upstream.ErrNotFound)
	_, err = f.store.GetAnime("404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func pagesOf(n int) []models.EpisodePage {
	pages := make([]models.EpisodePage, n)
	for i := range pages {
		pages[i] = models.EpisodePage{
			Episodes:    []models.Episode{{Number: i*2 + 1}, {Number: i*2 + 2}, {Number: 0}},
			HasNextPage: true,
			LastPage:    n,
		}
	}
	return pages
}

func TestEpisodeSyncStopsAtPageCap(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.Anime["52991"] = frieren()
	jikan.Pages["52991"] = pagesOf(5)
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan}, []string{"jikan"}, SyncOptions{PagePause: 500 * time.Millisecond})

	require.NoError(t, f.syncer.EpisodeSync(context.Background(), "52991"))
	assert.Equal(t, 3, jikan.CallCount("FetchEpisodePage"))
	assert.Equal(t, []string{"FetchAnime:52991:1", "Enrich:52991", "FetchEpisodePage:52991:1", "FetchEpisodePage:52991:2", "FetchEpisodePage:52991:3"},
		jikan.Calls(), "uncached titles get a detail sync first, pages go in order")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, f.sleeps)

	episodes, err := f.store.GetEpisodes("52991")
	require.NoError(t, err)
	assert.Len(t, episodes, 6)
	row, err := f.store.GetAnime("52991")
	require.NoError(t, err)
	require.NotNil(t, row.EpisodesLastSyncAt)
	assert.True(t, testNow.Equal(*row.EpisodesLastSyncAt))
}

func TestEpisodeSyncFillsMissingDurations(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.Pages["52991"] = []models.EpisodePage{{Episodes: []models.Episode{
		{Number: 1, Title: "The Journey's End", DurationSeconds: 1500},
		{Number: 2, Title: "It Didn't Have to Be Magic..."},
	}}}
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan}, []string{"jikan"}, SyncOptions{})
	a := frieren()
	a.ID = "52991"
	a.EpisodeDurationMinutes = 24
	require.NoError(t, f.store.UpsertAnime(a))

	require.NoError(t, f.syncer.EpisodeSync(context.Background(), "52991"))
	episodes, err := f.store.GetEpisodes("52991")
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, 1500, episodes[0].DurationSeconds, "provider lengths win")
	assert.Equal(t, 24*60, episodes[1].DurationSeconds, "missing lengths come from the title")
}

func TestEpisodeSyncFallsBackOnFirstPage(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.EpisodeErr = upstream.ErrRateLimited
	anilist := testutil.NewFakeProvider("anilist")
	anilist.Pages["52991"] = []models.EpisodePage{{Episodes: []models.Episode{{Number: 1, Title: "The Journey's End"}}}}
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan, "anilist": anilist}, []string{"jikan", "anilist"}, SyncOptions{})
	a := frieren()
	a.ID = "52991"
	require.NoError(t, f.store.UpsertAnime(a))

	require.NoError(t, f.syncer.EpisodeSync(context.Background(), "52991"))
	episodes, err := f.store.GetEpisodes("52991")
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "The Journey's End", episodes[0].Title)

	anilist.EpisodeErr = upstream.ErrUpstreamUnavailable
	err = f.syncer.EpisodeSync(context.Background(), "52991")
	assert.ErrorIs(t, err, upstream.ErrRateLimited)
}

func TestWatchlistBackfill(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.Counts["5114"] = 64
	anilist := testutil.NewFakeProvider("anilist")
	anilist.Counts["21"] = 1100
	f := newSyncFixture(t, map[string]providers.Provider{"jikan": jikan, "anilist": anilist}, []string{"jikan", "anilist"}, SyncOptions{BackfillPause: 400 * time.Millisecond})

	for _, id := range []string{"21", "5114", "99999"} {
		_, err := f.store.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 7, AnimeID: id, Status: models.WatchWatching})
		require.NoError(t, err)
	}

	updated, err := f.syncer.WatchlistBackfill(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 400 * time.Millisecond}, f.sleeps)
	assert.Equal(t, 1, anilist.CallCount("FetchEpisodeCount:5114")+anilist.CallCount("FetchEpisodeCount:21"), "secondary only asked when primary fails")

	entry, err := f.store.GetWatchlistEntry(7, "21")
	require.NoError(t, err)
	assert.Equal(t, 1100, entry.EffectiveTotal())

	missing, err := f.store.ListAnimeIDsMissingEpisodeCount(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"99999"}, missing)
}

func TestSweepAndRefreshStale(t *testing.T) {
	f := newSyncFixture(t, nil, nil, SyncOptions{SweepPause: 100 * time.Millisecond})

	airing := frieren()
	airing.ID = "52991"
	airing.Status = models.StatusAiring
	synced := testNow.Add(-time.Hour)
	airing.LastFullSyncAt = &synced
	require.NoError(t, f.store.UpsertAnime(airing))

	old := frieren()
	old.ID = "1"
	old.Title = "Cowboy Bebop"
	longAgo := testNow.Add(-30 * 24 * time.Hour)
	old.LastFullSyncAt = &longAgo
	require.NoError(t, f.store.UpsertAnime(old))

	_, err := f.store.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: "21", Status: models.WatchWatching})
	require.NoError(t, err)

	n, err := f.syncer.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	details, _ := f.queue.Snapshot()
	assert.ElementsMatch(t, []string{"52991", "21"}, details)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, f.sleeps)

	n, err = f.syncer.RefreshStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	details, _ = f.queue.Snapshot()
	assert.Equal(t, "1", details[len(details)-1])
}

func seedAiredEpisodes(t *testing.T, st *store.Store) {
	t.Helper()
	a := frieren()
	a.ID = "52991"
	require.NoError(t, st.UpsertAnime(a))
	aired := testNow.Add(-6 * time.Hour)
	future := testNow.Add(6 * 24 * time.Hour)
	_, err := st.UpsertEpisodes("52991", []models.Episode{
		{Number: 1, Title: "The Journey's End", AiredAt: &aired},
		{Number: 2, Title: "It Didn't Have to Be Magic", AiredAt: &aired},
		{Number: 3, Title: "Killing Magic", AiredAt: &future},
	})
	require.NoError(t, err)
	_, err = st.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: "52991", Status: models.WatchWatching})
	require.NoError(t, err)
}

func TestCreateEpisodeDiscussions(t *testing.T) {
	threads := &fakeThreads{existing: map[string]int64{
		"[Anime] Sousou no Frieren - Episode 1 Discussion": 55,
	}}
	f := newSyncFixture(t, nil, nil, SyncOptions{Threads: threads, ForumCategory: 9})
	seedAiredEpisodes(t, f.store)

	created, err := f.syncer.CreateEpisodeDiscussions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, threads.created, 1, "existing threads are reused")
	assert.Equal(t, "[Anime] Sousou no Frieren - Episode 2 Discussion", threads.created[0].Title)
	assert.Equal(t, 9, threads.created[0].CategoryID)

	links, err := f.store.GetDiscussionLinks("52991")
	require.NoError(t, err)
	assert.Equal(t, int64(55), links[1].ThreadID)
	assert.Equal(t, int64(1001), links[2].ThreadID)
	assert.NotContains(t, links, 3, "future episodes wait")

	created, err = f.syncer.CreateEpisodeDiscussions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, threads.created, 1)
}

func TestEnsureDiscussion(t *testing.T) {
	threads := &fakeThreads{}
	f := newSyncFixture(t, nil, nil, SyncOptions{Threads: threads})
	seedAiredEpisodes(t, f.store)
	ctx := context.Background()

	link, created, err := f.syncer.EnsureDiscussion(ctx, "52991", 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1001), link.ThreadID)
	assert.Contains(t, threads.created[0].Raw, "Killing Magic")

	again, created, err := f.syncer.EnsureDiscussion(ctx, "52991", 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, link.ThreadID, again.ThreadID)
	assert.Len(t, threads.created, 1)

	_, _, err = f.syncer.EnsureDiscussion(ctx, "52991", 40)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiscussionsNeedAForum(t *testing.T) {
	f := newSyncFixture(t, nil, nil, SyncOptions{})
	_, err := f.syncer.CreateEpisodeDiscussions(context.Background())
	assert.ErrorIs(t, err, forum.ErrDisabled)
	_, _, err = f.syncer.EnsureDiscussion(context.Background(), "1", 1)
	assert.ErrorIs(t, err, forum.ErrDisabled)
}
