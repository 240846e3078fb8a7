package testutil

import (
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// migrationsURL points at the repository's migrations directory no matter
// which package the test runs from.
func migrationsURL(t *testing.T) string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	require.True(t, ok, "cannot locate testutil source")
	return "file://" + filepath.Join(filepath.Dir(self), "..", "..", "migrations")
}

// SetupTestDB returns an in-memory SQLite database carrying the anime cache
// schema: anime_cache with its payload and slug alias tables, anime_episodes,
// anime_watchlists and anime_episode_discussions. Foreign keys stay off so
// tests can seed watchlists and discussion links for uncached titles.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	require.NoError(t, err)
	m, err := migrate.NewWithDatabaseInstance(migrationsURL(t), "sqlite3", driver)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("applying anime cache migrations: %v", err)
	}
	return db
}
