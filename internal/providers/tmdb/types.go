package tmdb

// --- Structs for unmarshalling TMDB v3 API responses ---

type SearchResponse struct {
	Page         int            `json:"page"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

type SearchResult struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	FirstAirDate string  `json:"first_air_date"`
	GenreIDs     []int   `json:"genre_ids"`
	BackdropPath string  `json:"backdrop_path"`
	PosterPath   string  `json:"poster_path"`
	Popularity   float64 `json:"popularity"`
}

type TVDetails struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	BackdropPath string `json:"backdrop_path"`
	PosterPath   string `json:"poster_path"`
	Videos       struct {
		Results []Video `json:"results"`
	} `json:"videos"`
	ContentRatings struct {
		Results []ContentRating `json:"results"`
	} `json:"content_ratings"`
	Images struct {
		Backdrops []Image `json:"backdrops"`
	} `json:"images"`
}

type Video struct {
	Key      string `json:"key"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

type ContentRating struct {
	Country string `json:"iso_3166_1"`
	Rating  string `json:"rating"`
}

type Image struct {
	FilePath    string  `json:"file_path"`
	VoteAverage float64 `json:"vote_average"`
	Width       int     `json:"width"`
}
