package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vrsandeep/anime-sync/internal/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func syncedAgo(status models.AiringStatus, age time.Duration) *models.Anime {
	t := now.Add(-age)
	return &models.Anime{ID: "1", Status: status, LastFullSyncAt: &t, EpisodesLastSyncAt: &t}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name   string
		status models.AiringStatus
		age    time.Duration
		stale  bool
	}{
		{"finished within a week", models.StatusFinished, 6 * 24 * time.Hour, false},
		{"finished after a week", models.StatusFinished, 7*24*time.Hour + time.Second, true},
		{"airing within six hours", models.StatusAiring, 5 * time.Hour, false},
		{"airing after six hours", models.StatusAiring, 6*time.Hour + time.Second, true},
		{"upcoming within a day", models.StatusUpcoming, 23 * time.Hour, false},
		{"upcoming after a day", models.StatusUpcoming, 25 * time.Hour, true},
		{"unknown after a day", models.StatusUnknown, 25 * time.Hour, true},
		{"unknown within a day", models.StatusUnknown, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stale, IsStale(syncedAgo(tt.status, tt.age), now))
		})
	}
}

func TestIsStaleNeverSynced(t *testing.T) {
	assert.True(t, IsStale(nil, now))
	assert.True(t, IsStale(&models.Anime{Status: models.StatusFinished}, now))
}

func TestIsStaleIsDeterministic(t *testing.T) {
	a := syncedAgo(models.StatusAiring, 3*time.Hour)
	first := IsStale(a, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, IsStale(a, now))
	}
}

func TestAiringGoesStaleBeforeFinished(t *testing.T) {
	for _, age := range []time.Duration{time.Hour, 7 * time.Hour, 2 * 24 * time.Hour, 8 * 24 * time.Hour} {
		airing := IsStale(syncedAgo(models.StatusAiring, age), now)
		finished := IsStale(syncedAgo(models.StatusFinished, age), now)
		if finished {
			assert.True(t, airing, "finished stale implies airing stale at age %s", age)
		}
	}
	// Between 6h and 7d only the airing one is stale.
	assert.True(t, IsStale(syncedAgo(models.StatusAiring, 7*time.Hour), now))
	assert.False(t, IsStale(syncedAgo(models.StatusFinished, 7*time.Hour), now))
}

func TestEpisodesStale(t *testing.T) {
	assert.True(t, EpisodesStale(&models.Anime{Status: models.StatusFinished}, now), "never synced")

	assert.False(t, EpisodesStale(syncedAgo(models.StatusFinished, 3*24*time.Hour), now))
	assert.True(t, EpisodesStale(syncedAgo(models.StatusFinished, 8*24*time.Hour), now))

	assert.False(t, EpisodesStale(syncedAgo(models.StatusAiring, time.Hour), now))
	assert.True(t, EpisodesStale(syncedAgo(models.StatusAiring, 7*time.Hour), now))
	assert.True(t, EpisodesStale(syncedAgo(models.StatusUpcoming, 7*time.Hour), now))
}

func TestEpisodesIndependentOfDetails(t *testing.T) {
	fresh := now.Add(-time.Hour)
	old := now.Add(-12 * time.Hour)
	a := &models.Anime{Status: models.StatusAiring, LastFullSyncAt: &fresh, EpisodesLastSyncAt: &old}
	assert.False(t, IsStale(a, now))
	assert.True(t, EpisodesStale(a, now))
}

func TestStaleBefore(t *testing.T) {
	c := StaleBefore(now)
	assert.Equal(t, now.Add(-7*24*time.Hour), c.Finished)
	assert.Equal(t, now.Add(-6*time.Hour), c.Airing)
	assert.Equal(t, now.Add(-24*time.Hour), c.Other)
}
