// Package forum talks to the forum that owns episode discussion threads.
// Topics, posts and users stay in the forum; this service only stores the
// thread id it gets back.
package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// ErrDisabled is returned when discussions are requested but no forum is
// configured.
var ErrDisabled = errors.New("forum: disabled")

// NewThread is the first post of a discussion thread.
type NewThread struct {
	Title      string
	Raw        string
	CategoryID int
}

// ThreadStore creates and finds discussion threads.
type ThreadStore interface {
	CreateThread(ctx context.Context, t NewThread) (int64, error)
	// FindThread looks up a thread by exact title.
	FindThread(ctx context.Context, title string) (int64, bool, error)
}

// Discourse is a ThreadStore backed by the Discourse REST API.
type Discourse struct {
	client  *upstream.Client
	baseURL string
}

type createPostRequest struct {
	Title    string `json:"title"`
	Raw      string `json:"raw"`
	Category int    `json:"category,omitempty"`
}

type createPostResponse struct {
	ID      int64 `json:"id"`
	TopicID int64 `json:"topic_id"`
}

type searchResponse struct {
	Topics []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"topics"`
}

// NewClientOptions adds the Discourse API credentials to opts.
func NewClientOptions(opts upstream.Options, apiKey, apiUsername string) upstream.Options {
	h := opts.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Api-Key", apiKey)
	h.Set("Api-Username", apiUsername)
	opts.Headers = h
	return opts
}

func NewDiscourse(client *upstream.Client, baseURL string) *Discourse {
	return &Discourse{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (d *Discourse) CreateThread(ctx context.Context, t NewThread) (int64, error) {
	var res createPostResponse
	req := createPostRequest{Title: t.Title, Raw: t.Raw, Category: t.CategoryID}
	if err := d.client.PostJSON(ctx, d.baseURL+"/posts.json", req, &res); err != nil {
		return 0, fmt.Errorf("failed to create thread %q: %w", t.Title, err)
	}
	if res.TopicID == 0 {
		return 0, fmt.Errorf("%w: discourse returned no topic id", upstream.ErrPartialData)
	}
	return res.TopicID, nil
}

func (d *Discourse) FindThread(ctx context.Context, title string) (int64, bool, error) {
	var res searchResponse
	q := url.Values{"q": {title}}
	if err := d.client.GetJSON(ctx, d.baseURL+"/search.json", q, &res); err != nil {
		return 0, false, fmt.Errorf("failed to search threads: %w", err)
	}
	for _, topic := range res.Topics {
		if strings.EqualFold(strings.TrimSpace(topic.Title), strings.TrimSpace(title)) {
			return topic.ID, true, nil
		}
	}
	return 0, false, nil
}

// ThreadTitle is the title of the discussion thread for one episode.
func ThreadTitle(animeTitle string, episode int) string {
	return fmt.Sprintf("[Anime] %s - Episode %d Discussion", animeTitle, episode)
}

// ThreadBody is the first post of an episode discussion thread.
func ThreadBody(animeTitle string, episode int, episodeTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Discussion thread for episode %d of **%s**", episode, animeTitle)
	if episodeTitle != "" {
		fmt.Fprintf(&b, ": %s", episodeTitle)
	}
	b.WriteString(".\n\nPlease mark spoilers for later episodes.")
	return b.String()
}
