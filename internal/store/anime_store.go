package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/util"
)

const animeColumns = `canonical_id, COALESCE(mal_id, 0), COALESCE(anilist_id, 0), title,
	COALESCE(title_english, ''), COALESCE(title_japanese, ''), alternate_titles, slug,
	COALESCE(synopsis, ''), COALESCE(image_url, ''), COALESCE(local_image_url, ''),
	COALESCE(thumbnail_url, ''), COALESCE(backdrop_url, ''), COALESCE(trailer_url, ''),
	COALESCE(score, 0), COALESCE(scored_by, 0), COALESCE(rank, 0), COALESCE(popularity, 0),
	COALESCE(members, 0), episode_count_total, COALESCE(episode_duration_minutes, 0),
	airing_status, COALESCE(anime_type, ''), COALESCE(source, ''), COALESCE(rating, ''),
	COALESCE(season, ''), COALESCE(year, 0), aired_from, aired_to,
	genres, studios, themes, producers, last_full_sync_at, episodes_last_sync_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnime(row rowScanner) (*models.Anime, error) {
	var a models.Anime
	var alt, genres, studios, themes, producers, status string
	var episodes sql.NullInt64
	var airedFrom, airedTo, fullSync, epSync sql.NullTime
	err := row.Scan(
		&a.ID, &a.MALID, &a.AniListID, &a.Title,
		&a.TitleEnglish, &a.TitleJapanese, &alt, &a.Slug,
		&a.Synopsis, &a.ImageURL, &a.LocalImageURL,
		&a.ThumbnailURL, &a.BackdropURL, &a.TrailerURL,
		&a.Score, &a.ScoredBy, &a.Rank, &a.Popularity,
		&a.Members, &episodes, &a.EpisodeDurationMinutes,
		&status, &a.Type, &a.Source, &a.Rating,
		&a.Season, &a.Year, &airedFrom, &airedTo,
		&genres, &studios, &themes, &producers, &fullSync, &epSync,
	)
	if err != nil {
		return nil, err
	}
	a.Status = models.AiringStatus(status)
	a.AlternateTitles = decodeList(alt)
	a.Genres = decodeList(genres)
	a.Studios = decodeList(studios)
	a.Themes = decodeList(themes)
	a.Producers = decodeList(producers)
	a.EpisodeCountTotal = nullInt(episodes)
	a.AiredFrom = nullTime(airedFrom)
	a.AiredTo = nullTime(airedTo)
	a.LastFullSyncAt = nullTime(fullSync)
	a.EpisodesLastSyncAt = nullTime(epSync)
	return &a, nil
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// UpsertAnime writes the full record. The last write wins for every column
// except the mirrored image paths and the episode sync stamp, which are only
// replaced by non-empty values.
func (s *Store) UpsertAnime(a *models.Anime) error {
	status := a.Status
	if status == "" {
		status = models.StatusUnknown
	}
	slug := a.Slug
	if slug == "" {
		slug = util.Slugify(a.Title)
	}
	query := `
		INSERT INTO anime_cache (
			canonical_id, mal_id, anilist_id, title, title_english, title_japanese,
			alternate_titles, match_key, english_match_key, slug, synopsis, image_url,
			local_image_url, thumbnail_url, backdrop_url, trailer_url, score, scored_by,
			rank, popularity, members, episode_count_total, episode_duration_minutes,
			airing_status, anime_type, source, rating, season, year, aired_from, aired_to,
			genres, studios, themes, producers, last_full_sync_at, episodes_last_sync_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_id) DO UPDATE SET
			mal_id = excluded.mal_id,
			anilist_id = excluded.anilist_id,
			title = excluded.title,
			title_english = excluded.title_english,
			title_japanese = excluded.title_japanese,
			alternate_titles = excluded.alternate_titles,
			match_key = excluded.match_key,
			english_match_key = excluded.english_match_key,
			slug = excluded.slug,
			synopsis = excluded.synopsis,
			image_url = excluded.image_url,
			local_image_url = COALESCE(NULLIF(excluded.local_image_url, ''), anime_cache.local_image_url),
			thumbnail_url = COALESCE(NULLIF(excluded.thumbnail_url, ''), anime_cache.thumbnail_url),
			backdrop_url = excluded.backdrop_url,
			trailer_url = excluded.trailer_url,
			score = excluded.score,
			scored_by = excluded.scored_by,
			rank = excluded.rank,
			popularity = excluded.popularity,
			members = excluded.members,
			episode_count_total = excluded.episode_count_total,
			episode_duration_minutes = excluded.episode_duration_minutes,
			airing_status = excluded.airing_status,
			anime_type = excluded.anime_type,
			source = excluded.source,
			rating = excluded.rating,
			season = excluded.season,
			year = excluded.year,
			aired_from = excluded.aired_from,
			aired_to = excluded.aired_to,
			genres = excluded.genres,
			studios = excluded.studios,
			themes = excluded.themes,
			producers = excluded.producers,
			last_full_sync_at = excluded.last_full_sync_at,
			episodes_last_sync_at = COALESCE(excluded.episodes_last_sync_at, anime_cache.episodes_last_sync_at)
	`
	_, err := s.db.Exec(query,
		a.ID, nullIfZero(a.MALID), nullIfZero(a.AniListID), a.Title, a.TitleEnglish, a.TitleJapanese,
		encodeList(a.AlternateTitles), util.MatchKey(a.Title), util.MatchKey(a.TitleEnglish), slug, a.Synopsis, a.ImageURL,
		a.LocalImageURL, a.ThumbnailURL, a.BackdropURL, a.TrailerURL, a.Score, a.ScoredBy,
		a.Rank, a.Popularity, a.Members, a.EpisodeCountTotal, a.EpisodeDurationMinutes,
		string(status), a.Type, a.Source, a.Rating, a.Season, nullIfZero(a.Year), utc(a.AiredFrom), utc(a.AiredTo),
		encodeList(a.Genres), encodeList(a.Studios), encodeList(a.Themes), encodeList(a.Producers),
		utc(a.LastFullSyncAt), utc(a.EpisodesLastSyncAt),
	)
	return err
}

// GetAnime retrieves a cached record together with its raw provider payloads.
func (s *Store) GetAnime(id string) (*models.Anime, error) {
	row := s.db.QueryRow("SELECT "+animeColumns+" FROM anime_cache WHERE canonical_id = ?", id)
	a, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	payloads, err := s.GetProviderPayloads(id)
	if err != nil {
		return nil, err
	}
	a.RawPayloads = payloads
	return a, nil
}

// SaveProviderPayloads stores the last raw response of each provider.
func (s *Store) SaveProviderPayloads(id string, payloads map[string]json.RawMessage, fetchedAt time.Time) error {
	if len(payloads) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO anime_provider_payloads (canonical_id, provider, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(canonical_id, provider) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for provider, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		if _, err := stmt.Exec(id, provider, string(payload), fetchedAt.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetProviderPayloads returns the stored raw payloads keyed by provider id.
func (s *Store) GetProviderPayloads(id string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query("SELECT provider, payload FROM anime_provider_payloads WHERE canonical_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var provider, payload string
		if err := rows.Scan(&provider, &payload); err != nil {
			return nil, err
		}
		out[provider] = json.RawMessage(payload)
	}
	return out, rows.Err()
}

// SetLocalImage records the mirrored cover and thumbnail paths.
func (s *Store) SetLocalImage(id, localURL, thumbnailURL string) error {
	res, err := s.db.Exec(
		"UPDATE anime_cache SET local_image_url = ?, thumbnail_url = ? WHERE canonical_id = ?",
		localURL, thumbnailURL, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetEnrichment applies secondary metadata. A fresh backdrop replaces the
// old one; a trailer is only filled in when none is known.
func (s *Store) SetEnrichment(id string, e *models.Enrichment, fetchedAt time.Time) error {
	if e == nil {
		return nil
	}
	res, err := s.db.Exec(`
		UPDATE anime_cache SET
			backdrop_url = COALESCE(NULLIF(?, ''), backdrop_url),
			trailer_url = COALESCE(NULLIF(trailer_url, ''), NULLIF(?, ''))
		WHERE canonical_id = ?`,
		e.BackdropURL, e.TrailerURL, id,
	)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if len(e.Raw) > 0 {
		return s.SaveProviderPayloads(id, map[string]json.RawMessage{e.Provider: e.Raw}, fetchedAt)
	}
	return nil
}

// TouchEpisodesSynced stamps the episode list as refreshed.
func (s *Store) TouchEpisodesSynced(id string, at time.Time) error {
	res, err := s.db.Exec("UPDATE anime_cache SET episodes_last_sync_at = ? WHERE canonical_id = ?", at.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// FindAnimeIDByMatchKey looks a normalized title key up in the saved
// aliases first, then in the cached title keys. The most popular match wins.
func (s *Store) FindAnimeIDByMatchKey(key string) (string, error) {
	if key == "" {
		return "", ErrNotFound
	}
	var id string
	err := s.db.QueryRow("SELECT canonical_id FROM anime_slug_aliases WHERE match_key = ?", key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	err = s.db.QueryRow(`
		SELECT canonical_id FROM anime_cache
		WHERE match_key = ? OR english_match_key = ?
		ORDER BY COALESCE(members, 0) DESC, canonical_id ASC
		LIMIT 1`, key, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// SaveSlugAlias remembers which canonical id a title key resolved to.
func (s *Store) SaveSlugAlias(key, id string) error {
	if key == "" {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO anime_slug_aliases (match_key, canonical_id) VALUES (?, ?)
		ON CONFLICT(match_key) DO UPDATE SET canonical_id = excluded.canonical_id
	`, key, id)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
