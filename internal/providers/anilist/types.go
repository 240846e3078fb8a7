package anilist

import "github.com/goccy/go-json"

// --- Structs for GraphQL requests and responses ---

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type mediaResponse struct {
	Data struct {
		Media json.RawMessage `json:"Media"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type pageResponse struct {
	Data struct {
		Page struct {
			PageInfo        PageInfo         `json:"pageInfo"`
			Media           []Media          `json:"media"`
			AiringSchedules []AiringSchedule `json:"airingSchedules"`
		} `json:"Page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type airingResponse struct {
	Data struct {
		Media *struct {
			ID int `json:"id"`
			// Duration is the per-episode length in minutes.
			Duration       *int `json:"duration"`
			AiringSchedule struct {
				PageInfo PageInfo     `json:"pageInfo"`
				Nodes    []AiringNode `json:"nodes"`
			} `json:"airingSchedule"`
		} `json:"Media"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type PageInfo struct {
	CurrentPage int  `json:"currentPage"`
	LastPage    int  `json:"lastPage"`
	HasNextPage bool `json:"hasNextPage"`
}

type Title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

type FuzzyDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

type Tag struct {
	Name           string `json:"name"`
	Rank           int    `json:"rank"`
	IsMediaSpoiler bool   `json:"isMediaSpoiler"`
}

type Media struct {
	ID          int      `json:"id"`
	IDMal       *int     `json:"idMal"`
	Title       Title    `json:"title"`
	Synonyms    []string `json:"synonyms"`
	Description string   `json:"description"`
	CoverImage  struct {
		ExtraLarge string `json:"extraLarge"`
		Large      string `json:"large"`
	} `json:"coverImage"`
	BannerImage  string    `json:"bannerImage"`
	AverageScore *int      `json:"averageScore"`
	Popularity   int       `json:"popularity"`
	Favourites   int       `json:"favourites"`
	Episodes     *int      `json:"episodes"`
	Duration     *int      `json:"duration"`
	Status       string    `json:"status"`
	Format       string    `json:"format"`
	Source       string    `json:"source"`
	Season       string    `json:"season"`
	SeasonYear   *int      `json:"seasonYear"`
	StartDate    FuzzyDate `json:"startDate"`
	EndDate      FuzzyDate `json:"endDate"`
	Genres       []string  `json:"genres"`
	IsAdult      bool      `json:"isAdult"`
	Studios      struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	Tags    []Tag `json:"tags"`
	Trailer *struct {
		ID   string `json:"id"`
		Site string `json:"site"`
	} `json:"trailer"`
	NextAiringEpisode *AiringNode `json:"nextAiringEpisode"`
}

type AiringNode struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airingAt"`
}

type AiringSchedule struct {
	AiringAt int64 `json:"airingAt"`
	Episode  int   `json:"episode"`
	Media    Media `json:"media"`
}
