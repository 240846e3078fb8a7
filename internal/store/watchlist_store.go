package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vrsandeep/anime-sync/internal/models"
)

const watchlistSelect = `
	SELECT w.id, w.user_id, w.anime_id, w.status, w.episodes_watched, w.total_episodes,
		w.known_total_episodes, ac.episode_count_total,
		COALESCE(NULLIF(w.title, ''), ac.title, ''),
		COALESCE(NULLIF(w.image_url, ''), NULLIF(ac.local_image_url, ''), ac.image_url, ''),
		w.created_at, w.updated_at
	FROM anime_watchlists w
	LEFT JOIN anime_cache ac ON ac.canonical_id = w.anime_id
`

func scanWatchlistEntry(row rowScanner) (*models.WatchlistEntry, error) {
	var e models.WatchlistEntry
	var status string
	var cacheTotal sql.NullInt64
	if err := row.Scan(&e.ID, &e.UserID, &e.AnimeID, &status, &e.EpisodesWatched, &e.TotalEpisodes,
		&e.KnownTotalEpisodes, &cacheTotal, &e.Title, &e.ImageURL, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = models.WatchStatus(status)
	e.CacheEpisodesTotal = nullInt(cacheTotal)
	return &e, nil
}

// WatchlistUpdate is a partial write to one (user, anime) entry. An empty
// Status, a nil EpisodesWatched, a zero TotalEpisodes and empty display
// fields all keep what is stored.
type WatchlistUpdate struct {
	UserID          int64
	AnimeID         string
	Status          models.WatchStatus
	EpisodesWatched *int
	TotalEpisodes   int
	Title           string
	ImageURL        string
	UpdatedAt       time.Time
}

// UpsertWatchlistEntry writes every field of e to the single row for
// (user, anime). A zero total keeps the stored override, and an empty title
// or image keeps the stored value.
func (s *Store) UpsertWatchlistEntry(e *models.WatchlistEntry) (*models.WatchlistEntry, error) {
	watched := e.EpisodesWatched
	return s.ApplyWatchlistUpdate(&WatchlistUpdate{
		UserID:          e.UserID,
		AnimeID:         e.AnimeID,
		Status:          e.Status,
		EpisodesWatched: &watched,
		TotalEpisodes:   e.TotalEpisodes,
		Title:           e.Title,
		ImageURL:        e.ImageURL,
		UpdatedAt:       e.UpdatedAt,
	})
}

// ApplyWatchlistUpdate creates or updates the single row for (user, anime).
// A new row without a status is plan_to_watch with no progress.
func (s *Store) ApplyWatchlistUpdate(u *WatchlistUpdate) (*models.WatchlistEntry, error) {
	now := u.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	_, err := s.db.Exec(`
		INSERT INTO anime_watchlists (user_id, anime_id, status, episodes_watched, total_episodes, title, image_url, created_at, updated_at)
		VALUES (?1, ?2, COALESCE(NULLIF(?3, ''), ?4), COALESCE(?5, 0), ?6, ?7, ?8, ?9, ?9)
		ON CONFLICT(user_id, anime_id) DO UPDATE SET
			status = COALESCE(NULLIF(?3, ''), anime_watchlists.status),
			episodes_watched = COALESCE(?5, anime_watchlists.episodes_watched),
			total_episodes = CASE WHEN excluded.total_episodes > 0 THEN excluded.total_episodes ELSE anime_watchlists.total_episodes END,
			title = COALESCE(NULLIF(excluded.title, ''), anime_watchlists.title),
			image_url = COALESCE(NULLIF(excluded.image_url, ''), anime_watchlists.image_url),
			updated_at = excluded.updated_at
	`, u.UserID, u.AnimeID, string(u.Status), string(models.WatchPlanToWatch), u.EpisodesWatched,
		u.TotalEpisodes, u.Title, u.ImageURL, now)
	if err != nil {
		return nil, err
	}
	return s.GetWatchlistEntry(u.UserID, u.AnimeID)
}

// GetWatchlist returns a user's entries, most recently updated first.
func (s *Store) GetWatchlist(userID int64) ([]*models.WatchlistEntry, error) {
	rows, err := s.db.Query(watchlistSelect+" WHERE w.user_id = ? ORDER BY w.updated_at DESC, w.id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.WatchlistEntry{}
	for rows.Next() {
		e, err := scanWatchlistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetWatchlistEntry returns one entry or ErrNotFound.
func (s *Store) GetWatchlistEntry(userID int64, animeID string) (*models.WatchlistEntry, error) {
	row := s.db.QueryRow(watchlistSelect+" WHERE w.user_id = ? AND w.anime_id = ?", userID, animeID)
	e, err := scanWatchlistEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// DeleteWatchlistEntry removes an entry and reports whether one existed.
func (s *Store) DeleteWatchlistEntry(userID int64, animeID string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM anime_watchlists WHERE user_id = ? AND anime_id = ?", userID, animeID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListAnimeIDsMissingEpisodeCount returns watchlisted titles for which no
// episode total is known from any source.
func (s *Store) ListAnimeIDsMissingEpisodeCount(limit int) ([]string, error) {
	return s.queryIDs(`
		SELECT DISTINCT w.anime_id
		FROM anime_watchlists w
		LEFT JOIN anime_cache ac ON ac.canonical_id = w.anime_id
		WHERE w.total_episodes = 0 AND w.known_total_episodes = 0
			AND COALESCE(ac.episode_count_total, 0) = 0
		ORDER BY w.anime_id
		LIMIT ?
	`, limit)
}

// SetKnownTotalEpisodes records a provider-reported total on every entry
// of the title and returns the number of entries updated.
func (s *Store) SetKnownTotalEpisodes(animeID string, total int) (int64, error) {
	res, err := s.db.Exec("UPDATE anime_watchlists SET known_total_episodes = ? WHERE anime_id = ?", total, animeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WatchingAnimeIDs returns the titles a user is currently watching.
func (s *Store) WatchingAnimeIDs(userID int64) ([]string, error) {
	return s.queryIDs(
		"SELECT anime_id FROM anime_watchlists WHERE user_id = ? AND status = ? ORDER BY anime_id",
		userID, string(models.WatchWatching),
	)
}

func (s *Store) queryIDs(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
