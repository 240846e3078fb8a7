package store

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/testutil"
)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.SetupTestDB(t))
}

func sampleAnime(id string, status models.AiringStatus, syncedAt time.Time) *models.Anime {
	return &models.Anime{
		ID:                id,
		MALID:             11061,
		Title:             "Hunter x Hunter (2011)",
		TitleEnglish:      "Hunter x Hunter",
		AlternateTitles:   []string{"HxH"},
		Synopsis:          "Gon sets out to find his father.",
		ImageURL:          "https://cdn.example.com/hxh.jpg",
		Score:             9.04,
		Members:           2900000,
		EpisodeCountTotal: intPtr(148),
		Status:            status,
		Type:              "TV",
		Year:              2011,
		Genres:            []string{"Action", "Adventure"},
		Studios:           []string{"Madhouse"},
		Themes:            []string{},
		LastFullSyncAt:    timePtr(syncedAt),
	}
}

func TestUpsertAndGetAnime(t *testing.T) {
	s := newTestStore(t)
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.GetAnime("11061")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertAnime(sampleAnime("11061", models.StatusFinished, synced)))

	got, err := s.GetAnime("11061")
	require.NoError(t, err)
	assert.Equal(t, "Hunter x Hunter (2011)", got.Title)
	assert.Equal(t, "hunter-x-hunter-2011", got.Slug)
	assert.Equal(t, []string{"HxH"}, got.AlternateTitles)
	assert.Equal(t, []string{"Action", "Adventure"}, got.Genres)
	assert.Equal(t, []string{}, got.Producers)
	require.NotNil(t, got.EpisodeCountTotal)
	assert.Equal(t, 148, *got.EpisodeCountTotal)
	assert.Equal(t, models.StatusFinished, got.Status)
	require.NotNil(t, got.LastFullSyncAt)
	assert.True(t, synced.Equal(*got.LastFullSyncAt))
	assert.Nil(t, got.EpisodesLastSyncAt)
}

func TestUpsertAnimeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	a := sampleAnime("11061", models.StatusFinished, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpsertAnime(a))
	first, err := s.GetAnime("11061")
	require.NoError(t, err)

	require.NoError(t, s.UpsertAnime(a))
	second, err := s.GetAnime("11061")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM anime_cache").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestUpsertAnimeKeepsLocalImage(t *testing.T) {
	s := newTestStore(t)
	a := sampleAnime("11061", models.StatusFinished, time.Now())
	require.NoError(t, s.UpsertAnime(a))
	require.NoError(t, s.SetLocalImage("11061", "/media/anime/11061.jpg", "/media/anime/11061_thumb.jpg"))
	require.NoError(t, s.TouchEpisodesSynced("11061", time.Now()))

	a.Title = "Hunter x Hunter"
	require.NoError(t, s.UpsertAnime(a))

	got, err := s.GetAnime("11061")
	require.NoError(t, err)
	assert.Equal(t, "Hunter x Hunter", got.Title)
	assert.Equal(t, "/media/anime/11061.jpg", got.LocalImageURL)
	assert.Equal(t, "/media/anime/11061_thumb.jpg", got.ThumbnailURL)
	assert.NotNil(t, got.EpisodesLastSyncAt)

	assert.ErrorIs(t, s.SetLocalImage("999", "x", "y"), ErrNotFound)
}

func TestProviderPayloadsAndEnrichment(t *testing.T) {
	s := newTestStore(t)
	a := sampleAnime("11061", models.StatusFinished, time.Now())
	a.TrailerURL = "https://youtube.com/watch?v=jikan"
	require.NoError(t, s.UpsertAnime(a))

	now := time.Now()
	require.NoError(t, s.SaveProviderPayloads("11061", map[string]json.RawMessage{
		"jikan": json.RawMessage(`{"mal_id":11061}`),
	}, now))

	err := s.SetEnrichment("11061", &models.Enrichment{
		Provider:    "tmdb",
		BackdropURL: "https://image.tmdb.org/t/p/original/b.jpg",
		TrailerURL:  "https://youtube.com/watch?v=tmdb",
		Raw:         json.RawMessage(`{"id":46298}`),
	}, now)
	require.NoError(t, err)

	got, err := s.GetAnime("11061")
	require.NoError(t, err)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/b.jpg", got.BackdropURL)
	assert.Equal(t, "https://youtube.com/watch?v=jikan", got.TrailerURL)
	assert.JSONEq(t, `{"mal_id":11061}`, string(got.RawPayloads["jikan"]))
	assert.JSONEq(t, `{"id":46298}`, string(got.RawPayloads["tmdb"]))
}

func TestMatchKeyLookupAndAliases(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertAnime(sampleAnime("11061", models.StatusFinished, time.Now())))

	id, err := s.FindAnimeIDByMatchKey("hunterxhunter2011")
	require.NoError(t, err)
	assert.Equal(t, "11061", id)

	id, err = s.FindAnimeIDByMatchKey("hunterxhunter")
	require.NoError(t, err)
	assert.Equal(t, "11061", id, "english title key")

	_, err = s.FindAnimeIDByMatchKey("hxh")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveSlugAlias("hxh", "11061"))
	id, err = s.FindAnimeIDByMatchKey("hxh")
	require.NoError(t, err)
	assert.Equal(t, "11061", id)
}

func TestUpsertAndGetEpisodes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertAnime(sampleAnime("11061", models.StatusFinished, time.Now())))

	aired := time.Date(2011, 10, 2, 0, 0, 0, 0, time.UTC)
	n, err := s.UpsertEpisodes("11061", []models.Episode{
		{Number: 2, Title: "Hunter x Hunter x Hunter?"},
		{Number: 1, Title: "Departure x And x Friends", AiredAt: &aired},
		{Number: 0, Title: "skipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.UpsertEpisodes("11061", []models.Episode{{Number: 1, Title: "Departure x and x Friends"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	eps, err := s.GetEpisodes("11061")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 1, eps[0].Number)
	assert.Equal(t, "Departure x and x Friends", eps[0].Title)
	require.NotNil(t, eps[0].AiredAt, "missing air date keeps the stored one")
	assert.True(t, aired.Equal(*eps[0].AiredAt))
	assert.Equal(t, 2, eps[1].Number)
}

func TestWatchlistUpsertIsUnique(t *testing.T) {
	s := newTestStore(t)

	first, err := s.UpsertWatchlistEntry(&models.WatchlistEntry{
		UserID: 7, AnimeID: "11061", Status: models.WatchWatching, EpisodesWatched: 3, TotalEpisodes: 148, Title: "HxH",
	})
	require.NoError(t, err)

	second, err := s.UpsertWatchlistEntry(&models.WatchlistEntry{
		UserID: 7, AnimeID: "11061", Status: models.WatchOnHold, EpisodesWatched: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.WatchOnHold, second.Status)
	assert.Equal(t, 10, second.EpisodesWatched)
	assert.Equal(t, 148, second.TotalEpisodes, "zero total keeps the override")
	assert.Equal(t, "HxH", second.Title)

	list, err := s.GetWatchlist(7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, err := s.GetWatchlist(8)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestApplyWatchlistUpdateDefaultsOnlyOnInsert(t *testing.T) {
	s := newTestStore(t)

	created, err := s.ApplyWatchlistUpdate(&WatchlistUpdate{UserID: 7, AnimeID: "11061"})
	require.NoError(t, err)
	assert.Equal(t, models.WatchPlanToWatch, created.Status)
	assert.Equal(t, 0, created.EpisodesWatched)

	five := 5
	updated, err := s.ApplyWatchlistUpdate(&WatchlistUpdate{UserID: 7, AnimeID: "11061", Status: models.WatchWatching, EpisodesWatched: &five})
	require.NoError(t, err)
	assert.Equal(t, models.WatchWatching, updated.Status)
	assert.Equal(t, 5, updated.EpisodesWatched)

	touched, err := s.ApplyWatchlistUpdate(&WatchlistUpdate{UserID: 7, AnimeID: "11061", Title: "HxH"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, touched.ID)
	assert.Equal(t, models.WatchWatching, touched.Status)
	assert.Equal(t, 5, touched.EpisodesWatched)
	assert.Equal(t, "HxH", touched.Title)
}

func TestWatchlistJoinsCacheAndDeletes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertAnime(sampleAnime("11061", models.StatusFinished, time.Now())))
	_, err := s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: "11061", Status: models.WatchWatching})
	require.NoError(t, err)

	e, err := s.GetWatchlistEntry(1, "11061")
	require.NoError(t, err)
	require.NotNil(t, e.CacheEpisodesTotal)
	assert.Equal(t, 148, e.EffectiveTotal())
	assert.Equal(t, "Hunter x Hunter (2011)", e.Title)

	ids, err := s.WatchingAnimeIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"11061"}, ids)

	deleted, err := s.DeleteWatchlistEntry(1, "11061")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteWatchlistEntry(1, "11061")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetWatchlistEntry(1, "11061")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingEpisodeCounts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertAnime(sampleAnime("11061", models.StatusFinished, time.Now())))
	for _, id := range []string{"11061", "52991", "al-999"} {
		_, err := s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: id, Status: models.WatchPlanToWatch})
		require.NoError(t, err)
	}

	ids, err := s.ListAnimeIDsMissingEpisodeCount(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"52991", "al-999"}, ids)

	n, err := s.SetKnownTotalEpisodes("52991", 28)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err = s.ListAnimeIDsMissingEpisodeCount(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"al-999"}, ids)
}

func TestDiscussionLinksAreCreatedOnce(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "52991", EpisodeNumber: 1, ThreadID: 100})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "52991", EpisodeNumber: 1, ThreadID: 200})
	require.NoError(t, err)
	assert.False(t, created)

	link, err := s.GetDiscussionLink("52991", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), link.ThreadID)

	links, err := s.GetDiscussionLinks("52991")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	_, err = s.GetDiscussionLink("52991", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEpisodesNeedingDiscussion(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	frieren := sampleAnime("52991", models.StatusAiring, now)
	frieren.Title = "Sousou no Frieren"
	frieren.TitleEnglish = "Frieren"
	require.NoError(t, s.UpsertAnime(frieren))

	ep := func(n int, aired time.Time) models.Episode {
		return models.Episode{Number: n, Title: "Episode", AiredAt: &aired}
	}
	_, err := s.UpsertEpisodes("52991", []models.Episode{
		ep(1, now.Add(-30*24*time.Hour)),
		ep(2, now.Add(-2*24*time.Hour)),
		ep(3, now.Add(-time.Hour)),
		ep(4, now.Add(6*24*time.Hour)),
	})
	require.NoError(t, err)

	since := now.Add(-7 * 24 * time.Hour)
	pending, err := s.ListEpisodesNeedingDiscussion(since, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "nobody is watching yet")

	_, err = s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: "52991", Status: models.WatchWatching})
	require.NoError(t, err)
	_, err = s.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "52991", EpisodeNumber: 2, ThreadID: 5})
	require.NoError(t, err)

	pending, err = s.ListEpisodesNeedingDiscussion(since, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].EpisodeNumber)
	assert.Equal(t, "Sousou no Frieren", pending[0].AnimeTitle)
	assert.Equal(t, "sousou-no-frieren", pending[0].Slug)
}

func TestStaleQueriesAndSweepTargets(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	fresh := sampleAnime("1", models.StatusFinished, now.Add(-24*time.Hour))
	staleFinished := sampleAnime("2", models.StatusFinished, now.Add(-8*24*time.Hour))
	staleAiring := sampleAnime("3", models.StatusAiring, now.Add(-7*time.Hour))
	freshAiring := sampleAnime("4", models.StatusAiring, now.Add(-time.Hour))
	never := sampleAnime("5", models.StatusUnknown, now)
	never.LastFullSyncAt = nil
	for _, a := range []*models.Anime{fresh, staleFinished, staleAiring, freshAiring, never} {
		require.NoError(t, s.UpsertAnime(a))
	}

	ids, err := s.ListStaleAnimeIDs(now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "2", "3"}, ids)

	ids, err = s.ListStaleAnimeIDs(now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, ids)

	_, err = s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 1, AnimeID: "1", Status: models.WatchWatching})
	require.NoError(t, err)
	_, err = s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 2, AnimeID: "3", Status: models.WatchWatching})
	require.NoError(t, err)
	_, err = s.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: 2, AnimeID: "2", Status: models.WatchDropped})
	require.NoError(t, err)

	targets, err := s.SweepTargets()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, targets)

	stats, err := s.CacheStats(now)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Anime)
	assert.Equal(t, 2, stats.ByStatus["airing"])
	assert.Equal(t, 3, stats.Stale)
	assert.Equal(t, 1, stats.NeverSynced)
	assert.Equal(t, 3, stats.WatchlistEntries)
}
