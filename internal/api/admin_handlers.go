package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/jobs"
)

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store().Ping(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.app.Queue().Len(),
	})
}

func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobName string `json:"job_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.JobName == "" {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := s.app.JobManager().RunJob(payload.JobName, s.app); err != nil {
		status := http.StatusConflict
		if errors.Is(err, jobs.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		RespondWithError(w, status, err.Error())
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + payload.JobName + "' started successfully.",
	})
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.JobManager().GetStatus())
}

func (s *Server) handleGetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Store().CacheStats(s.app.Now())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"store":       stats,
		"page_cache":  s.app.Pages().Len(),
		"queue_depth": s.app.Queue().Len(),
	})
}
