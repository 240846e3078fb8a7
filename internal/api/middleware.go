package api

// This file contains the middleware for trusting forum identity headers,
// role checks and request logging.

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vrsandeep/anime-sync/internal/logging"
)

const (
	headerAPIKey    = "X-Forum-Api-Key"
	headerUserID    = "X-Forum-User-Id"
	headerUserAdmin = "X-Forum-User-Admin"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const userContextKey = contextKey("user")

// User is the forum account a request is made on behalf of.
type User struct {
	ID    int64
	Admin bool
}

// ForumAuthMiddleware trusts the forum's user headers when the request
// carries the shared API key. Requests without a key stay anonymous.
// A wrong key is rejected outright.
func (s *Server) ForumAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		shared := s.app.Config().API.SharedKey
		if shared == "" || subtle.ConstantTimeCompare([]byte(key), []byte(shared)) != 1 {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: Invalid API key")
			return
		}

		rawID := r.Header.Get(headerUserID)
		if rawID == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid user id header")
			return
		}
		admin, _ := strconv.ParseBool(r.Header.Get(headerUserAdmin))

		ctx := context.WithValue(r.Context(), userContextKey, &User{ID: id, Admin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUserMiddleware rejects anonymous requests.
func (s *Server) RequireUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if getUserFromContext(r) == nil {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnlyMiddleware is a middleware that ensures only forum administrators can access a route.
func (s *Server) AdminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := getUserFromContext(r)
		if user == nil {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !user.Admin {
			RespondWithError(w, http.StatusForbidden, "Forbidden: Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getUserFromContext returns nil for anonymous requests.
func getUserFromContext(r *http.Request) *User {
	user, ok := r.Context().Value(userContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := logging.Debug()
			if status >= http.StatusInternalServerError {
				event = logging.Warn()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
