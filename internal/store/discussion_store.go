package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vrsandeep/anime-sync/internal/models"
)

// CreateDiscussionLink persists the thread of an episode. An existing link
// is never overwritten; created reports whether this call inserted the row.
func (s *Store) CreateDiscussionLink(d *models.EpisodeDiscussion) (bool, error) {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO anime_episode_discussions (anime_id, episode_number, thread_id, aired_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(anime_id, episode_number) DO NOTHING
	`, d.AnimeID, d.EpisodeNumber, d.ThreadID, utc(d.AiredAt), createdAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func scanDiscussion(row rowScanner) (*models.EpisodeDiscussion, error) {
	var d models.EpisodeDiscussion
	var airedAt sql.NullTime
	if err := row.Scan(&d.AnimeID, &d.EpisodeNumber, &d.ThreadID, &airedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.AiredAt = nullTime(airedAt)
	return &d, nil
}

// GetDiscussionLinks returns a title's links keyed by episode number.
func (s *Store) GetDiscussionLinks(animeID string) (map[int]models.EpisodeDiscussion, error) {
	rows, err := s.db.Query(`
		SELECT anime_id, episode_number, thread_id, aired_at, created_at
		FROM anime_episode_discussions WHERE anime_id = ?`, animeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make(map[int]models.EpisodeDiscussion)
	for rows.Next() {
		d, err := scanDiscussion(rows)
		if err != nil {
			return nil, err
		}
		links[d.EpisodeNumber] = *d
	}
	return links, rows.Err()
}

// GetDiscussionLink returns the link of one episode or ErrNotFound.
func (s *Store) GetDiscussionLink(animeID string, episode int) (*models.EpisodeDiscussion, error) {
	row := s.db.QueryRow(`
		SELECT anime_id, episode_number, thread_id, aired_at, created_at
		FROM anime_episode_discussions WHERE anime_id = ? AND episode_number = ?`, animeID, episode)
	d, err := scanDiscussion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListEpisodesNeedingDiscussion finds episodes aired in [since, now] that
// belong to a title on someone's watching list and have no link yet.
func (s *Store) ListEpisodesNeedingDiscussion(since, now time.Time, limit int) ([]models.PendingDiscussion, error) {
	rows, err := s.db.Query(`
		SELECT e.anime_id, ac.title, ac.slug, e.episode_number, COALESCE(e.title, ''), e.aired_at
		FROM anime_episodes e
		JOIN anime_cache ac ON ac.canonical_id = e.anime_id
		LEFT JOIN anime_episode_discussions d
			ON d.anime_id = e.anime_id AND d.episode_number = e.episode_number
		WHERE d.id IS NULL
			AND e.aired_at IS NOT NULL AND e.aired_at >= ? AND e.aired_at <= ?
			AND e.anime_id IN (SELECT anime_id FROM anime_watchlists WHERE status = ?)
		ORDER BY e.aired_at ASC, e.anime_id ASC, e.episode_number ASC
		LIMIT ?
	`, since.UTC(), now.UTC(), string(models.WatchWatching), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := []models.PendingDiscussion{}
	for rows.Next() {
		var p models.PendingDiscussion
		var airedAt sql.NullTime
		if err := rows.Scan(&p.AnimeID, &p.AnimeTitle, &p.Slug, &p.EpisodeNumber, &p.EpisodeTitle, &airedAt); err != nil {
			return nil, err
		}
		p.AiredAt = nullTime(airedAt)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}
