package pagecache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vrsandeep/anime-sync/internal/metrics"
	"github.com/vrsandeep/anime-sync/internal/models"
)

const (
	MinTTL = time.Hour
	MaxTTL = 24 * time.Hour
)

// ClampTTL bounds a listing TTL to [MinTTL, MaxTTL].
func ClampTTL(d time.Duration) time.Duration {
	return min(max(d, MinTTL), MaxTTL)
}

// Cache stores listing pages and the calendar. Failed or empty results are
// never stored.
type Cache struct {
	c           *gocache.Cache
	listTTL     atomic.Int64
	calendarTTL time.Duration
}

// New creates a Cache. listTTL is clamped; calendarTTL is used as given.
func New(listTTL, calendarTTL time.Duration) *Cache {
	c := &Cache{
		c:           gocache.New(ClampTTL(listTTL), 10*time.Minute),
		calendarTTL: calendarTTL,
	}
	c.listTTL.Store(int64(ClampTTL(listTTL)))
	return c
}

// SetListTTL changes the TTL used for future listing writes.
func (c *Cache) SetListTTL(d time.Duration) {
	c.listTTL.Store(int64(ClampTTL(d)))
}

// ListTTL returns the TTL applied to listing writes.
func (c *Cache) ListTTL() time.Duration {
	return time.Duration(c.listTTL.Load())
}

// GetList returns a cached listing page.
func (c *Cache) GetList(q models.ListQuery) (*models.ListResult, bool) {
	v, ok := c.c.Get(ListKey(q).String())
	if !ok {
		metrics.CacheLookups.WithLabelValues("list", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("list", "hit").Inc()
	return v.(*models.ListResult), true
}

// SetList stores a listing page unless it is empty.
func (c *Cache) SetList(q models.ListQuery, res *models.ListResult) bool {
	if res == nil || len(res.Items) == 0 {
		return false
	}
	c.c.Set(ListKey(q).String(), res, c.ListTTL())
	return true
}

// GetCalendar returns the cached weekly schedule.
func (c *Cache) GetCalendar() (*models.Calendar, bool) {
	v, ok := c.c.Get(CalendarKey().String())
	if !ok {
		metrics.CacheLookups.WithLabelValues("calendar", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("calendar", "hit").Inc()
	return v.(*models.Calendar), true
}

// SetCalendar stores the schedule unless no day has entries.
func (c *Cache) SetCalendar(cal *models.Calendar) bool {
	if cal == nil {
		return false
	}
	empty := true
	for _, entries := range cal.Days {
		if len(entries) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return false
	}
	c.c.Set(CalendarKey().String(), cal, c.calendarTTL)
	return true
}

// Flush drops every cached page.
func (c *Cache) Flush() {
	c.c.Flush()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}
