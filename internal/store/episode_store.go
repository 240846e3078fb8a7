package store

import (
	"database/sql"

	"github.com/vrsandeep/anime-sync/internal/models"
)

// UpsertEpisodes writes a batch of episodes in one transaction and returns
// how many rows were written. Episodes with a non-positive number are skipped.
func (s *Store) UpsertEpisodes(animeID string, episodes []models.Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO anime_episodes (anime_id, episode_number, title, title_japanese, aired_at, duration_seconds, is_filler, is_recap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anime_id, episode_number) DO UPDATE SET
			title = excluded.title,
			title_japanese = excluded.title_japanese,
			aired_at = COALESCE(excluded.aired_at, anime_episodes.aired_at),
			duration_seconds = excluded.duration_seconds,
			is_filler = excluded.is_filler,
			is_recap = excluded.is_recap
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, ep := range episodes {
		if ep.Number <= 0 {
			continue
		}
		if _, err := stmt.Exec(animeID, ep.Number, ep.Title, ep.TitleJapanese, utc(ep.AiredAt), ep.DurationSeconds, ep.IsFiller, ep.IsRecap); err != nil {
			return 0, err
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// GetEpisodes returns all cached episodes of a title in ascending order.
func (s *Store) GetEpisodes(animeID string) ([]models.Episode, error) {
	rows, err := s.db.Query(`
		SELECT anime_id, episode_number, COALESCE(title, ''), COALESCE(title_japanese, ''),
			aired_at, duration_seconds, is_filler, is_recap
		FROM anime_episodes
		WHERE anime_id = ?
		ORDER BY episode_number ASC
	`, animeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []models.Episode{}
	for rows.Next() {
		var ep models.Episode
		var airedAt sql.NullTime
		if err := rows.Scan(&ep.AnimeID, &ep.Number, &ep.Title, &ep.TitleJapanese, &airedAt, &ep.DurationSeconds, &ep.IsFiller, &ep.IsRecap); err != nil {
			return nil, err
		}
		ep.AiredAt = nullTime(airedAt)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}
