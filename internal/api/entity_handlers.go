package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/resolver"
	"github.com/vrsandeep/anime-sync/internal/store"
)

// entityView is the response of GET /api/entities/{id}.
type entityView struct {
	*models.Anime
	EffectiveImageURL string                     `json:"effective_image_url"`
	Discussions       []models.EpisodeDiscussion `json:"discussions"`
	Watchlist         *models.WatchlistEntry     `json:"watchlist"`
}

type episodesView struct {
	AnimeID  string                 `json:"anime_id"`
	Episodes []resolver.EpisodeView `json:"episodes"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Resolver().Providers())
}

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.ListQuery{
		Kind:    models.ListSearch,
		Query:   strings.TrimSpace(q.Get("q")),
		Status:  strings.ToLower(q.Get("status")),
		Type:    strings.ToLower(q.Get("type")),
		OrderBy: strings.ToLower(q.Get("order_by")),
		Sort:    strings.ToLower(q.Get("sort")),
	}
	var err error
	if query.Page, err = intParam(q.Get("page"), "page"); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if query.Genres, err = genresParam(q.Get("genres")); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	s.respondWithList(w, r, query)
}

func (s *Server) handleTopEntities(w http.ResponseWriter, r *http.Request) {
	query := models.ListQuery{
		Kind:   models.ListTop,
		Type:   strings.ToLower(r.URL.Query().Get("type")),
		Status: strings.ToLower(r.URL.Query().Get("status")),
	}
	var err error
	if query.Page, err = intParam(r.URL.Query().Get("page"), "page"); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	s.respondWithList(w, r, query)
}

func (s *Server) handleSeasonEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.ListQuery{
		Kind:   models.ListSeason,
		Season: strings.ToLower(strings.TrimSpace(q.Get("season"))),
	}
	var err error
	if query.Year, err = intParam(q.Get("year"), "year"); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if query.Page, err = intParam(q.Get("page"), "page"); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	s.respondWithList(w, r, query)
}

func (s *Server) respondWithList(w http.ResponseWriter, r *http.Request, query models.ListQuery) {
	res, err := s.app.Resolver().List(r.Context(), query)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

// resolveEntityID turns the {id} path parameter into a canonical id. An
// input no strategy could resolve is reported as not found.
func (s *Server) resolveEntityID(w http.ResponseWriter, r *http.Request) (string, bool) {
	res, err := s.app.Resolver().ResolveID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return "", false
	}
	if !res.Resolved() {
		w.Header().Set("X-Cache", resolver.StaleUnavailable.Header())
		RespondWithError(w, http.StatusNotFound, "Anime not found")
		return "", false
	}
	return res.ID, true
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveEntityID(w, r)
	if !ok {
		return
	}

	res, err := s.app.Resolver().GetAnime(r.Context(), id)
	if err != nil {
		w.Header().Set("X-Cache", resolver.StaleUnavailable.Header())
		respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Cache", res.Outcome.Header())

	links, err := s.app.Store().GetDiscussionLinks(id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	view := entityView{
		Anime:             res.Anime,
		EffectiveImageURL: res.Anime.EffectiveImageURL(),
		Discussions:       make([]models.EpisodeDiscussion, 0, len(links)),
	}
	for _, link := range links {
		view.Discussions = append(view.Discussions, link)
	}
	sort.Slice(view.Discussions, func(i, j int) bool {
		return view.Discussions[i].EpisodeNumber < view.Discussions[j].EpisodeNumber
	})

	if user := getUserFromContext(r); user != nil {
		entry, err := s.app.Store().GetWatchlistEntry(user.ID, id)
		switch {
		case err == nil:
			view.Watchlist = entry
		case !errors.Is(err, store.ErrNotFound):
			logging.Warn().Err(err).Str("anime_id", id).Msg("Failed to load watchlist entry")
		}
	}

	RespondWithJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetEpisodes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveEntityID(w, r)
	if !ok {
		return
	}

	res, err := s.app.Resolver().GetEpisodes(r.Context(), id)
	if err != nil {
		w.Header().Set("X-Cache", resolver.StaleUnavailable.Header())
		respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Cache", res.Outcome.Header())
	RespondWithJSON(w, http.StatusOK, episodesView{AnimeID: id, Episodes: res.Episodes})
}

func (s *Server) handleEnsureDiscussion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveEntityID(w, r)
	if !ok {
		return
	}
	episode, err := strconv.Atoi(chi.URLParam(r, "episode"))
	if err != nil || episode <= 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid episode number")
		return
	}

	link, created, err := s.app.Syncer().EnsureDiscussion(r.Context(), id, episode)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	RespondWithJSON(w, status, link)
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	onlyWatching, _ := strconv.ParseBool(r.URL.Query().Get("watchlist"))
	user := getUserFromContext(r)
	if onlyWatching && user == nil {
		RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	cal, err := s.app.Resolver().Calendar(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if !onlyWatching {
		RespondWithJSON(w, http.StatusOK, cal)
		return
	}

	ids, err := s.app.Store().WatchingAnimeIDs(user.ID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, filterCalendar(cal, ids))
}

// filterCalendar returns a copy of cal holding only entries for ids. The
// cached calendar itself is never modified.
func filterCalendar(cal *models.Calendar, ids []string) *models.Calendar {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := &models.Calendar{
		Days:        make(map[string][]models.ScheduleEntry, len(cal.Days)),
		Provider:    cal.Provider,
		GeneratedAt: cal.GeneratedAt,
	}
	for day, entries := range cal.Days {
		filtered := []models.ScheduleEntry{}
		for _, e := range entries {
			if e.AnimeID != "" && keep[e.AnimeID] {
				filtered = append(filtered, e)
			}
		}
		out.Days[day] = filtered
	}
	return out
}

// intParam parses an optional integer query parameter; empty means zero.
func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &resolver.ValidationError{Field: name, Tag: "number", Message: name + " must be a number"}
	}
	return n, nil
}

// genresParam parses a comma separated list of genre ids.
func genresParam(v string) ([]int, error) {
	if v == "" {
		return nil, nil
	}
	var genres []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := intParam(part, "genres")
		if err != nil {
			return nil, err
		}
		genres = append(genres, n)
	}
	return genres, nil
}
