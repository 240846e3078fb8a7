package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

func setupTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/tv", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("api_key"))
		assert.Equal(t, "false", q.Get("include_adult"))
		assert.Equal(t, "16", q.Get("with_genres"))
		fmt.Fprint(w, `{"page":1,"results":[
			{"id":1,"name":"Hunter Hunter","genre_ids":[18]},
			{"id":46298,"name":"Hunter x Hunter","original_name":"HUNTER×HUNTER","genre_ids":[16,10759]},
			{"id":5,"name":"Completely Different","genre_ids":[16]}]}`)
	})
	mux.HandleFunc("/tv/46298", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "credits,videos,images,content_ratings", r.URL.Query().Get("append_to_response"))
		fmt.Fprint(w, `{"id":46298,"name":"Hunter x Hunter","backdrop_path":"/bd.jpg",
			"videos":{"results":[{"key":"tease","site":"YouTube","type":"Teaser"},{"key":"main","site":"YouTube","type":"Trailer","official":true}]},
			"content_ratings":{"results":[{"iso_3166_1":"JP","rating":"G"},{"iso_3166_1":"US","rating":"TV-14"}]}}`)
	})
	return httptest.NewServer(mux)
}

func newTestProvider(baseURL string) *TMDBProvider {
	client := upstream.NewClient(ID, upstream.Options{
		AllowPrivateHosts: true,
		Policy:            upstream.Policy{MaxAttempts: 1},
	})
	return New(client, baseURL, "https://image.tmdb.org/t/p", "key", "en-US")
}

func TestEnrich(t *testing.T) {
	server := setupTestServer(t)
	defer server.Close()
	p := newTestProvider(server.URL)

	e, err := p.Enrich(context.Background(), &models.Anime{
		ID:           "11061",
		Title:        "Hunter x Hunter (2011)",
		TitleEnglish: "Hunter x Hunter",
	})
	require.NoError(t, err)
	assert.Equal(t, 46298, e.ExternalID)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/bd.jpg", e.BackdropURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=main", e.TrailerURL)
	assert.Equal(t, "TV-14", e.ContentRating)
	assert.NotEmpty(t, e.Raw)
}

func TestEnrichWithoutKey(t *testing.T) {
	p := New(nil, "", "", "", "")
	_, err := p.Enrich(context.Background(), &models.Anime{Title: "x"})
	assert.ErrorIs(t, err, upstream.ErrBadRequest)
}

func TestBestMatch(t *testing.T) {
	results := []SearchResult{
		{ID: 1, Name: "Frieren", GenreIDs: []int{16}},
		{ID: 2, Name: "Frieren", GenreIDs: []int{16}},
		{ID: 3, Name: "Something Else Entirely", GenreIDs: []int{16}},
	}
	best, ok := bestMatch(results, &models.Anime{Title: "Sousou no Frieren", TitleEnglish: "Frieren: Beyond Journey's End", AlternateTitles: []string{"Frieren"}})
	require.True(t, ok)
	assert.Equal(t, 1, best.ID, "ties keep the first result")

	_, ok = bestMatch(results[2:], &models.Anime{Title: "Frieren"})
	assert.False(t, ok)
}
