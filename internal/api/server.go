// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrsandeep/anime-sync/internal/core"
	"github.com/vrsandeep/anime-sync/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app *core.App
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/version", s.handleGetVersion)
	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if n := s.app.Config().API.RequestsPerMinute; n > 0 {
			r.Use(httprate.LimitByIP(n, time.Minute))
		}
		r.Use(s.ForumAuthMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/providers", s.handleListProviders)

			r.Get("/entities", s.handleSearchEntities)
			r.Get("/entities/top", s.handleTopEntities)
			r.Get("/seasons", s.handleSeasonEntities)
			r.Get("/entities/{id}", s.handleGetEntity)
			r.Get("/entities/{id}/episodes", s.handleGetEpisodes)
			r.Get("/calendar", s.handleGetCalendar)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireUserMiddleware)

				r.Post("/entities/{id}/episodes/{episode}/discussion", s.handleEnsureDiscussion)

				r.Get("/watchlist", s.handleGetWatchlist)
				r.Post("/watchlist", s.handleUpsertWatchlist)
				r.Delete("/watchlist/{animeID}", s.handleDeleteWatchlist)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.AdminOnlyMiddleware)

				r.Get("/jobs/status", s.handleGetAdminJobsStatus)
				r.Post("/jobs/run", s.handleRunAdminJob)
				r.Get("/cache/stats", s.handleGetCacheStats)
			})
		})

		r.With(s.AdminOnlyMiddleware).Get("/ws/admin/progress", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(s.app.WsHub(), w, r)
		})
	})

	media := s.app.Config().Media
	if media.Dir != "" && strings.HasPrefix(media.BaseURL, "/") {
		FileServer(r, strings.TrimSuffix(media.BaseURL, "/")+"/", http.Dir(media.Dir))
	}

	return r
}

// FileServer conveniently sets up a static file server that doesn't list directories.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	files := http.StripPrefix(path, http.FileServer(noDirFS{root}))
	r.Get(path+"*", func(w http.ResponseWriter, r *http.Request) {
		files.ServeHTTP(w, r)
	})
}

// noDirFS hides directory listings.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
