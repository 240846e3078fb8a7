package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// FakeProvider is a scriptable provider with every capability. It records
// each call as "<method>:<arg>".
type FakeProvider struct {
	ID string

	mu          sync.Mutex
	Anime       map[string]*models.Anime
	AnimeErr    error
	Pages       map[string][]models.EpisodePage
	EpisodeErr  error
	Counts      map[string]int
	CountErr    error
	ListResult  *models.ListResult
	ListErr     error
	Schedule    []models.ScheduleEntry
	ScheduleErr error
	Enrichment  *models.Enrichment
	EnrichErr   error

	calls []string
}

// NewFakeProvider returns an empty fake that answers ErrNotFound for
// every unknown entity.
func NewFakeProvider(id string) *FakeProvider {
	return &FakeProvider{
		ID:     id,
		Anime:  map[string]*models.Anime{},
		Pages:  map[string][]models.EpisodePage{},
		Counts: map[string]int{},
	}
}

func (f *FakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns the recorded calls in order.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded calls with the given method prefix.
func (f *FakeProvider) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(method) && c[:len(method)] == method {
			n++
		}
	}
	return n
}

func (f *FakeProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{ID: f.ID, Name: f.ID, Capabilities: []string{"details", "episodes", "count", "list", "schedule", "enrich"}}
}

func (f *FakeProvider) FetchAnime(ctx context.Context, id string, depth models.Depth) (*models.Anime, error) {
	f.record(fmt.Sprintf("FetchAnime:%s:%d", id, depth))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnimeErr != nil {
		return nil, f.AnimeErr
	}
	a, ok := f.Anime[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *FakeProvider) FetchEpisodePage(ctx context.Context, id string, page int) (*models.EpisodePage, error) {
	f.record(fmt.Sprintf("FetchEpisodePage:%s:%d", id, page))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EpisodeErr != nil {
		return nil, f.EpisodeErr
	}
	pages, ok := f.Pages[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	if page < 1 || page > len(pages) {
		return &models.EpisodePage{LastPage: len(pages)}, nil
	}
	p := pages[page-1]
	return &p, nil
}

func (f *FakeProvider) FetchEpisodeCount(ctx context.Context, id string) (int, error) {
	f.record("FetchEpisodeCount:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	n, ok := f.Counts[id]
	if !ok {
		return 0, upstream.ErrNotFound
	}
	return n, nil
}

func (f *FakeProvider) List(ctx context.Context, q models.ListQuery) (*models.ListResult, error) {
	f.record(fmt.Sprintf("List:%s:%s", q.Kind, q.Query))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if f.ListResult == nil {
		return &models.ListResult{Page: q.Page, Provider: f.ID}, nil
	}
	res := *f.ListResult
	res.Items = append([]models.AnimeSummary(nil), f.ListResult.Items...)
	return &res, nil
}

func (f *FakeProvider) FetchSchedule(ctx context.Context) ([]models.ScheduleEntry, error) {
	f.record("FetchSchedule")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScheduleErr != nil {
		return nil, f.ScheduleErr
	}
	return append([]models.ScheduleEntry(nil), f.Schedule...), nil
}

func (f *FakeProvider) Enrich(ctx context.Context, a *models.Anime) (*models.Enrichment, error) {
	f.record("Enrich:" + a.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnrichErr != nil {
		return nil, f.EnrichErr
	}
	if f.Enrichment == nil {
		return nil, upstream.ErrNotFound
	}
	e := *f.Enrichment
	return &e, nil
}

// FakeQueue records enqueued sync tasks.
type FakeQueue struct {
	mu       sync.Mutex
	Details  []string
	Episodes []string
	Err      error
}

func (q *FakeQueue) EnqueueDetailSync(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.Details = append(q.Details, id)
	return nil
}

func (q *FakeQueue) EnqueueEpisodeSync(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.Episodes = append(q.Episodes, id)
	return nil
}

// Snapshot returns copies of the recorded ids.
func (q *FakeQueue) Snapshot() (details, episodes []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.Details...), append([]string(nil), q.Episodes...)
}
