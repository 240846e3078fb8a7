package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/store"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type watchlistRequest struct {
	AnimeID         string `json:"anime_id" validate:"required,max=64"`
	Status          string `json:"status" validate:"omitempty,oneof=watching completed plan_to_watch on_hold dropped"`
	EpisodesWatched *int   `json:"episodes_watched" validate:"omitempty,min=0,max=100000"`
	TotalEpisodes   int    `json:"total_episodes" validate:"min=0,max=100000"`
	Title           string `json:"title" validate:"max=500"`
	ImageURL        string `json:"image_url" validate:"omitempty,url,max=2048"`
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	entries, err := s.app.Store().GetWatchlist(user.ID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUpsertWatchlist(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload watchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	payload.AnimeID = strings.TrimSpace(payload.AnimeID)
	payload.Status = strings.ToLower(strings.TrimSpace(payload.Status))
	if err := getValidator().Struct(payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, describeValidation(err))
		return
	}

	// Omitted status and progress keep the stored values.
	entry, err := s.app.Store().ApplyWatchlistUpdate(&store.WatchlistUpdate{
		UserID:          user.ID,
		AnimeID:         payload.AnimeID,
		Status:          models.WatchStatus(payload.Status),
		EpisodesWatched: payload.EpisodesWatched,
		TotalEpisodes:   payload.TotalEpisodes,
		Title:           strings.TrimSpace(payload.Title),
		ImageURL:        strings.TrimSpace(payload.ImageURL),
		UpdatedAt:       s.app.Now(),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	deleted, err := s.app.Store().DeleteWatchlistEntry(user.ID, chi.URLParam(r, "animeID"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if !deleted {
		RespondWithError(w, http.StatusNotFound, "Watchlist entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// describeValidation reports the first failing field by its JSON name.
func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request payload"
	}
	fe := fieldErrs[0]
	field := jsonFieldNames[fe.StructField()]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "max":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

var jsonFieldNames = map[string]string{
	"AnimeID":         "anime_id",
	"Status":          "status",
	"EpisodesWatched": "episodes_watched",
	"TotalEpisodes":   "total_episodes",
	"Title":           "title",
	"ImageURL":        "image_url",
}
