// Helper functions for sending standardized JSON responses.

package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/forum"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/resolver"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// defaultRetryAfter is advertised when no provider said how long to wait.
const defaultRetryAfter = 30 * time.Second

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal response")
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps resolver, store and upstream errors onto
// HTTP statuses.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *resolver.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondWithError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, upstream.ErrNotFound), errors.Is(err, store.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, forum.ErrDisabled):
		RespondWithError(w, http.StatusServiceUnavailable, "Discussions are disabled")
	case errors.Is(err, upstream.ErrRateLimited), errors.Is(err, upstream.ErrUpstreamUnavailable):
		wait := upstream.RetryAfter(err)
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		RespondWithError(w, http.StatusServiceUnavailable, "Metadata providers are unavailable, try again later")
	default:
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
