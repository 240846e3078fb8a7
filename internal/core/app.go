package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vrsandeep/anime-sync/internal/config"
	"github.com/vrsandeep/anime-sync/internal/db"
	"github.com/vrsandeep/anime-sync/internal/forum"
	"github.com/vrsandeep/anime-sync/internal/jobs"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/pagecache"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/resolver"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/websocket"
	"github.com/vrsandeep/anime-sync/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config   *config.Config
	db       *sql.DB
	store    *store.Store
	pages    *pagecache.Cache
	chain    *providers.Chain
	resolver *resolver.Resolver
	queue    *jobs.Queue
	syncer   *jobs.Syncer
	jobs     *jobs.JobManager
	wsHub    *websocket.Hub
	threads  forum.ThreadStore
	cancel   context.CancelFunc
	now      func() time.Time
	Version  string
}

// Deps are the collaborators Assemble cannot build from configuration
// alone. Nil values are allowed.
type Deps struct {
	Chain   *providers.Chain
	Threads forum.ThreadStore
	Mirror  jobs.ImageMirror
	Version string
	// Now replaces the clock of the resolver and syncer; used by tests.
	Now func() time.Time
}

// New sets up and returns a new App instance. It loads the configuration,
// initializes logging and the database, runs migrations and registers the
// configured providers.
func New(version string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database, migrations.FS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	RegisterProviders(cfg)

	app := Assemble(cfg, database, Deps{
		Chain:   providers.BuildChain(cfg.Providers.DetailOrder(), cfg.Providers.EpisodeOrder),
		Threads: NewThreadStore(cfg),
		Mirror:  NewMirror(cfg),
		Version: version,
	})
	logging.Info().Str("version", version).Int("providers", len(app.chain.Infos())).Msg("Core application setup complete")
	return app, nil
}

// Assemble wires every component around an open, migrated database.
func Assemble(cfg *config.Config, database *sql.DB, deps Deps) *App {
	if deps.Chain == nil {
		deps.Chain = &providers.Chain{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	st := store.New(database)
	pages := pagecache.New(cfg.Cache.ListTTL, cfg.Cache.CalendarTTL)

	app := &App{
		config:  cfg,
		db:      database,
		store:   st,
		pages:   pages,
		chain:   deps.Chain,
		wsHub:   websocket.NewHub(),
		threads: deps.Threads,
		now:     deps.Now,
		Version: deps.Version,
	}

	app.queue = jobs.NewQueue(jobs.QueueOptions{
		Size:          cfg.Sync.QueueSize,
		Workers:       cfg.Sync.Workers,
		JobsPerSecond: cfg.Sync.JobsPerSecond,
	}, func(ctx context.Context, t jobs.Task) error {
		return app.syncer.Handle(ctx, t)
	})
	app.syncer = jobs.NewSyncer(st, deps.Chain, jobs.SyncOptions{
		Queue:              app.queue,
		Mirror:             deps.Mirror,
		Threads:            deps.Threads,
		ForumCategory:      cfg.Forum.CategoryID,
		EpisodePageCap:     cfg.Sync.EpisodePageCap,
		PagePause:          cfg.Sync.PagePause,
		SweepPause:         cfg.Sync.SweepPause,
		BackfillPause:      cfg.Sync.BackfillPause,
		BackfillBatch:      cfg.Sync.BackfillBatch,
		StaleBatch:         cfg.Sync.StaleBatch,
		DiscussionLookback: cfg.Sync.DiscussionLookback,
		Now:                deps.Now,
	})
	app.resolver = resolver.New(st, deps.Chain, pages, resolver.Options{
		Queue:    app.queue,
		Episodes: app.syncer,
		Now:      deps.Now,
	})
	app.jobs = jobs.NewManager(app)
	jobs.RegisterJobs(app.jobs, cfg)
	return app
}

// Start runs the websocket hub and the sync workers until Close.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go a.wsHub.Run()
	a.queue.Start(ctx)
}

// ApplyConfig takes over the settings that can change without a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	logging.SetLevel(cfg.Log.Level)
	a.pages.SetListTTL(cfg.Cache.ListTTL)
	logging.Info().Str("log_level", cfg.Log.Level).Dur("list_ttl", a.pages.ListTTL()).Msg("Configuration reloaded")
}

// Close stops the workers and closes the database.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		a.queue.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) Config() *config.Config       { return a.config }
func (a *App) DB() *sql.DB                  { return a.db }
func (a *App) Store() *store.Store          { return a.store }
func (a *App) Pages() *pagecache.Cache      { return a.pages }
func (a *App) Chain() *providers.Chain      { return a.chain }
func (a *App) Resolver() *resolver.Resolver { return a.resolver }
func (a *App) Queue() *jobs.Queue           { return a.queue }
func (a *App) Syncer() *jobs.Syncer         { return a.syncer }
func (a *App) JobManager() *jobs.JobManager { return a.jobs }
func (a *App) WsHub() *websocket.Hub        { return a.wsHub }
func (a *App) Threads() forum.ThreadStore   { return a.threads }
func (a *App) Now() time.Time               { return a.now() }
