package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/anime-sync/internal/jobs"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sync every airing and watched title now",
		Long: "Queues a detail sync for every airing title and every title on a watching list, " +
			"then waits for the queue to drain. Only one sweep runs per database at a time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			unlock, err := jobs.TryLockSweep(app.Config().Database.Path)
			if err != nil {
				return err
			}
			defer unlock()

			runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			app.Start(runCtx)

			queued, err := app.Syncer().Sweep(runCtx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued %d detail syncs.\n", queued)

			if err := app.Queue().Wait(runCtx); err != nil {
				return fmt.Errorf("waiting for syncs: %w", err)
			}
			fmt.Fprintln(out, "Sweep complete.")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Give up waiting for queued syncs after this long")
	return cmd
}
