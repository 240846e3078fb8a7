package api_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/providers/anilist"
	"github.com/vrsandeep/anime-sync/internal/testutil"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

const hxhMedia = `{"data":{"Media":{
	"id":11061,"idMal":11061,
	"title":{"romaji":"HUNTER×HUNTER (2011)","english":"Hunter x Hunter (2011)"},
	"description":"Gon Freecss wants to become a Hunter.",
	"coverImage":{"large":"https://s4.anilist.co/bx11061.jpg"},
	"averageScore":85,"popularity":500000,"episodes":148,"duration":23,
	"status":"FINISHED","format":"TV","source":"MANGA","season":"FALL","seasonYear":2011,
	"startDate":{"year":2011,"month":10,"day":2},
	"genres":["Action","Adventure"],
	"studios":{"nodes":[{"name":"Madhouse"}]}
}}}`

type entityBody struct {
	ID          string                     `json:"id"`
	Discussions []models.EpisodeDiscussion `json:"discussions"`
	Watchlist   *models.WatchlistEntry     `json:"watchlist"`
}

type episodesBody struct {
	AnimeID  string `json:"anime_id"`
	Episodes []struct {
		Number   int    `json:"episode_number"`
		Title    string `json:"title"`
		ThreadID int64  `json:"thread_id"`
	} `json:"episodes"`
}

func bebop() *models.Anime {
	eps := 26
	synced := testNow.Add(-time.Hour)
	return &models.Anime{
		ID:                "1",
		MALID:             1,
		Title:             "Cowboy Bebop",
		Score:             8.75,
		EpisodeCountTotal: &eps,
		Status:            models.StatusFinished,
		LastFullSyncAt:    &synced,
	}
}

func TestGetEntityFromAniList(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, hxhMedia)
	}))
	defer server.Close()
	client := upstream.NewClient(anilist.ID, upstream.Options{
		AllowPrivateHosts: true,
		Policy:            upstream.Policy{MaxAttempts: 1},
	})
	provider := anilist.New(client, server.URL)
	s := setupTestServer(t, []string{anilist.ID}, map[string]providers.Provider{anilist.ID: provider})

	rr := s.do(t, "GET", "/api/entities/11061", anonymous, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "11061", body["id"])
	assert.Equal(t, 8.5, body["score"])
	assert.Equal(t, "https://s4.anilist.co/bx11061.jpg", body["effective_image_url"])
	assert.Nil(t, body["watchlist"])

	row, err := s.app.Store().GetAnime("11061")
	require.NoError(t, err)
	assert.Equal(t, 8.5, row.Score)
	require.NotNil(t, row.LastFullSyncAt)
	assert.True(t, testNow.Equal(*row.LastFullSyncAt))

	rr = s.do(t, "GET", "/api/entities/11061", anonymous, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetEntityMergesUserData(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	s := setupTestServer(t, []string{"jikan"}, map[string]providers.Provider{"jikan": jikan})
	st := s.app.Store()
	require.NoError(t, st.UpsertAnime(bebop()))
	_, err := st.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "1", EpisodeNumber: 2, ThreadID: 202})
	require.NoError(t, err)
	_, err = st.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "1", EpisodeNumber: 1, ThreadID: 201})
	require.NoError(t, err)
	_, err = st.UpsertWatchlistEntry(&models.WatchlistEntry{UserID: alice.userID, AnimeID: "1", Status: models.WatchWatching, EpisodesWatched: 4})
	require.NoError(t, err)

	t.Run("slug resolves from the cache", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities/cowboy-bebop", alice, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

		body := decode[entityBody](t, rr)
		assert.Equal(t, "1", body.ID)
		require.Len(t, body.Discussions, 2)
		assert.Equal(t, int64(201), body.Discussions[0].ThreadID)
		require.NotNil(t, body.Watchlist)
		assert.Equal(t, 4, body.Watchlist.EpisodesWatched)
		assert.Empty(t, jikan.Calls())
	})

	t.Run("other users do not see the entry", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities/1", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Nil(t, decode[map[string]any](t, rr)["watchlist"])
	})
}

func TestGetEntityErrors(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	s := setupTestServer(t, []string{"jikan"}, map[string]providers.Provider{"jikan": jikan})

	t.Run("not found", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities/404", anonymous, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "ERROR", rr.Header().Get("X-Cache"))
	})

	t.Run("unresolvable slug", func(t *testing.T) {
		jikan.ListResult = &models.ListResult{Page: 1}
		rr := s.do(t, "GET", "/api/entities/no-such-show", anonymous, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("providers rate limited", func(t *testing.T) {
		jikan.AnimeErr = upstream.ErrRateLimited
		rr := s.do(t, "GET", "/api/entities/5114", anonymous, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "30", rr.Header().Get("Retry-After"))
		assert.Contains(t, decode[map[string]string](t, rr)["error"], "unavailable")
	})

	t.Run("stale row is served", func(t *testing.T) {
		old := bebop()
		synced := testNow.Add(-30 * 24 * time.Hour)
		old.LastFullSyncAt = &synced
		require.NoError(t, s.app.Store().UpsertAnime(old))
		jikan.AnimeErr = upstream.ErrUpstreamUnavailable

		rr := s.do(t, "GET", "/api/entities/1", anonymous, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "STALE", rr.Header().Get("X-Cache"))
	})
}

func TestListEndpoints(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.ListResult = &models.ListResult{Items: []models.AnimeSummary{{ID: "52991", Title: "Sousou no Frieren"}}, Page: 1}
	s := setupTestServer(t, []string{"jikan"}, map[string]providers.Provider{"jikan": jikan})

	t.Run("invalid season never reaches a provider", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/seasons?year=2024&season=monsoon", anonymous, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decode[map[string]string](t, rr)["error"], "season")
		assert.Empty(t, jikan.Calls())
	})

	t.Run("non numeric year", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/seasons?year=twenty&season=fall", anonymous, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, jikan.Calls())
	})

	t.Run("season", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/seasons?year=2023&season=Fall", anonymous, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		res := decode[models.ListResult](t, rr)
		assert.Equal(t, "jikan", res.Provider)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "52991", res.Items[0].ID)
	})

	t.Run("search", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities?q=frieren&genres=1,2&sort=desc", anonymous, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, 1, jikan.CallCount("List:search"))
	})

	t.Run("bad genre", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities?q=frieren&genres=action", anonymous, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("top", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/entities/top?page=2", anonymous, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, 1, jikan.CallCount("List:top"))
	})

	t.Run("providers", func(t *testing.T) {
		rr := s.do(t, "GET", "/api/providers", anonymous, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		infos := decode[[]models.ProviderInfo](t, rr)
		require.Len(t, infos, 1)
		assert.Equal(t, "jikan", infos[0].ID)
	})
}

func TestGetEpisodes(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	s := setupTestServer(t, []string{"jikan"}, map[string]providers.Provider{"jikan": jikan})
	st := s.app.Store()
	require.NoError(t, st.UpsertAnime(bebop()))
	_, err := st.UpsertEpisodes("1", []models.Episode{{Number: 1, Title: "Asteroid Blues"}, {Number: 2, Title: "Stray Dog Strut"}})
	require.NoError(t, err)
	require.NoError(t, st.TouchEpisodesSynced("1", testNow.Add(-time.Hour)))
	_, err = st.CreateDiscussionLink(&models.EpisodeDiscussion{AnimeID: "1", EpisodeNumber: 1, ThreadID: 99})
	require.NoError(t, err)

	rr := s.do(t, "GET", "/api/entities/1/episodes", anonymous, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

	body := decode[episodesBody](t, rr)
	assert.Equal(t, "1", body.AnimeID)
	require.Len(t, body.Episodes, 2)
	assert.Equal(t, int64(99), body.Episodes[0].ThreadID)
	assert.Equal(t, "Stray Dog Strut", body.Episodes[1].Title)
	assert.Empty(t, jikan.Calls())
}

func TestEnsureDiscussion(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	require.NoError(t, s.app.Store().UpsertAnime(bebop()))

	rr := s.do(t, "POST", "/api/entities/1/episodes/1/discussion", anonymous, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, "POST", "/api/entities/1/episodes/zero/discussion", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, "POST", "/api/entities/1/episodes/1/discussion", alice, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "no forum is configured")
}

func TestGetCalendar(t *testing.T) {
	jikan := testutil.NewFakeProvider("jikan")
	jikan.Schedule = []models.ScheduleEntry{
		{AnimeID: "52991", Title: "Sousou no Frieren", Day: "friday", Time: "14:00"},
		{AnimeID: "21", Title: "One Piece", Day: "sunday", Time: "00:15"},
	}
	s := setupTestServer(t, []string{"jikan"}, map[string]providers.Provider{"jikan": jikan})
	_, err := s.app.Store().UpsertWatchlistEntry(&models.WatchlistEntry{UserID: alice.userID, AnimeID: "21", Status: models.WatchWatching})
	require.NoError(t, err)

	rr := s.do(t, "GET", "/api/calendar", anonymous, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cal := decode[models.Calendar](t, rr)
	assert.Len(t, cal.Days, 7)
	assert.Len(t, cal.Days["friday"], 1)
	assert.Len(t, cal.Days["sunday"], 1)

	rr = s.do(t, "GET", "/api/calendar?watchlist=true", anonymous, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, "GET", "/api/calendar?watchlist=true", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cal = decode[models.Calendar](t, rr)
	assert.Empty(t, cal.Days["friday"])
	require.Len(t, cal.Days["sunday"], 1)
	assert.Equal(t, "One Piece", cal.Days["sunday"][0].Title)

	rr = s.do(t, "GET", "/api/calendar", anonymous, nil)
	cal = decode[models.Calendar](t, rr)
	assert.Len(t, cal.Days["friday"], 1, "filtering leaves the cached calendar intact")
	assert.Equal(t, 1, jikan.CallCount("FetchSchedule"))
}
