package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"

	// Import the sqlite3 driver. The blank import is used because we only
	// need the driver to be registered with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/vrsandeep/anime-sync/internal/logging"
)

// InitDB opens a connection to the SQLite database at the specified path
// and ensures the connection is valid.
func InitDB(path string) (*sql.DB, error) {
	// WAL lets request handlers read while sync workers write.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key support in SQLite
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign key support: %w", err)
	}

	// Ping the database to verify the connection is alive.
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// RunMigrations applies every pending migration found at the root of
// migrationsFS.
func RunMigrations(database *sql.DB, migrationsFS fs.FS) error {
	source, err := httpfs.New(http.FS(migrationsFS), ".")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(database, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logging.Info().Msg("Applying database migrations from embedded files")
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("an error occurred while applying migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logging.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migrations applied")
	return nil
}
