package jikan

import (
	"time"

	"github.com/goccy/go-json"
)

// --- Structs for unmarshalling Jikan v4 API responses ---

type AnimeResponse struct {
	Data json.RawMessage `json:"data"`
}

type ListResponse struct {
	Pagination Pagination  `json:"pagination"`
	Data       []AnimeData `json:"data"`
}

type EpisodesResponse struct {
	Pagination Pagination    `json:"pagination"`
	Data       []EpisodeData `json:"data"`
}

type Pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
	CurrentPage     int  `json:"current_page"`
}

type AnimeData struct {
	MalID         int       `json:"mal_id"`
	URL           string    `json:"url"`
	Images        Images    `json:"images"`
	Trailer       Trailer   `json:"trailer"`
	Title         string    `json:"title"`
	TitleEnglish  string    `json:"title_english"`
	TitleJapanese string    `json:"title_japanese"`
	TitleSynonyms []string  `json:"title_synonyms"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Episodes      *int      `json:"episodes"`
	Status        string    `json:"status"`
	Aired         Aired     `json:"aired"`
	Duration      string    `json:"duration"`
	Rating        string    `json:"rating"`
	Score         float64   `json:"score"`
	ScoredBy      int       `json:"scored_by"`
	Rank          int       `json:"rank"`
	Popularity    int       `json:"popularity"`
	Members       int       `json:"members"`
	Synopsis      string    `json:"synopsis"`
	Season        string    `json:"season"`
	Year          int       `json:"year"`
	Broadcast     Broadcast `json:"broadcast"`
	Producers     []Named   `json:"producers"`
	Studios       []Named   `json:"studios"`
	Genres        []Named   `json:"genres"`
	Themes        []Named   `json:"themes"`
	Demographics  []Named   `json:"demographics"`
}

type Images struct {
	JPG struct {
		ImageURL      string `json:"image_url"`
		LargeImageURL string `json:"large_image_url"`
	} `json:"jpg"`
	WebP struct {
		ImageURL      string `json:"image_url"`
		LargeImageURL string `json:"large_image_url"`
	} `json:"webp"`
}

type Trailer struct {
	YoutubeID string `json:"youtube_id"`
	URL       string `json:"url"`
}

type Aired struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

type Broadcast struct {
	Day      string `json:"day"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

type Named struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
}

type EpisodeData struct {
	MalID         int        `json:"mal_id"`
	Title         string     `json:"title"`
	TitleJapanese string     `json:"title_japanese"`
	Aired         *time.Time `json:"aired"`
	Filler        bool       `json:"filler"`
	Recap         bool       `json:"recap"`
	// Duration is only sent by some endpoints and mirrors.
	Duration EpisodeDuration `json:"duration"`
}

// EpisodeDuration is an episode length in seconds. Jikan sends it as a
// number of seconds, or as "24:00" / "24 min" strings.
type EpisodeDuration int

func (d *EpisodeDuration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = EpisodeDuration(v)
	case string:
		*d = EpisodeDuration(episodeSeconds(v))
	default:
		*d = 0
	}
	return nil
}
