package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrsandeep/anime-sync/internal/api"
	"github.com/vrsandeep/anime-sync/internal/config"
	"github.com/vrsandeep/anime-sync/internal/core"
	"github.com/vrsandeep/anime-sync/internal/jobs"
	"github.com/vrsandeep/anime-sync/internal/logging"
)

var version = "dev"

func main() {
	// Initialize the core application components
	app, err := core.New(version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error during application setup: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	scheduler := jobs.StartJobs(app)
	defer scheduler.Stop()

	// Log level and list cache TTL follow config.yml edits.
	config.Watch(app.ApplyConfig)

	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config().Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine so it doesn't block.
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("Starting web server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Could not start server")
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Shutting down server...")

	// Give in-flight requests a moment to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}
	logging.Info().Msg("Server exiting")
}
