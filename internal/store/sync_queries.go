package store

import (
	"time"

	"github.com/vrsandeep/anime-sync/internal/freshness"
	"github.com/vrsandeep/anime-sync/internal/models"
)

// ListStaleAnimeIDs returns cached titles whose detail data is older than
// the window of their airing status, never-synced rows and oldest first.
func (s *Store) ListStaleAnimeIDs(now time.Time, limit int) ([]string, error) {
	c := freshness.StaleBefore(now.UTC())
	return s.queryIDs(`
		SELECT canonical_id FROM anime_cache
		WHERE last_full_sync_at IS NULL
			OR (airing_status = ? AND last_full_sync_at < ?)
			OR (airing_status = ? AND last_full_sync_at < ?)
			OR (airing_status NOT IN (?, ?) AND last_full_sync_at < ?)
		ORDER BY last_full_sync_at IS NOT NULL, last_full_sync_at ASC, canonical_id ASC
		LIMIT ?
	`,
		string(models.StatusFinished), c.Finished,
		string(models.StatusAiring), c.Airing,
		string(models.StatusFinished), string(models.StatusAiring), c.Other,
		limit,
	)
}

// SweepTargets returns every airing title plus every title on any user's
// watching list, whether cached or not.
func (s *Store) SweepTargets() ([]string, error) {
	return s.queryIDs(`
		SELECT canonical_id FROM anime_cache WHERE airing_status = ?
		UNION
		SELECT anime_id FROM anime_watchlists WHERE status = ?
		ORDER BY 1
	`, string(models.StatusAiring), string(models.WatchWatching))
}

// CacheStats summarizes the cache for the admin endpoint and the CLI.
type CacheStats struct {
	Anime            int            `json:"anime"`
	ByStatus         map[string]int `json:"by_status"`
	Stale            int            `json:"stale"`
	NeverSynced      int            `json:"never_synced"`
	Episodes         int            `json:"episodes"`
	WatchlistEntries int            `json:"watchlist_entries"`
	Discussions      int            `json:"discussions"`
	SlugAliases      int            `json:"slug_aliases"`
}

// CacheStats counts rows per table and stale titles as of now.
func (s *Store) CacheStats(now time.Time) (*CacheStats, error) {
	stats := &CacheStats{ByStatus: map[string]int{}}

	rows, err := s.db.Query("SELECT airing_status, COUNT(*) FROM anime_cache GROUP BY airing_status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Anime += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.NeverSynced, "SELECT COUNT(*) FROM anime_cache WHERE last_full_sync_at IS NULL"},
		{&stats.Episodes, "SELECT COUNT(*) FROM anime_episodes"},
		{&stats.WatchlistEntries, "SELECT COUNT(*) FROM anime_watchlists"},
		{&stats.Discussions, "SELECT COUNT(*) FROM anime_episode_discussions"},
		{&stats.SlugAliases, "SELECT COUNT(*) FROM anime_slug_aliases"},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	stale, err := s.ListStaleAnimeIDs(now, -1)
	if err != nil {
		return nil, err
	}
	stats.Stale = len(stale)
	return stats, nil
}
