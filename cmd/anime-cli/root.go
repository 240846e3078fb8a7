package main

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/anime-sync/internal/core"
)

// commandContext builds the application once, on first use, so commands
// that fail argument validation never touch the database.
type commandContext struct {
	once sync.Once
	app  *core.App
	err  error
	open func() (*core.App, error)
}

func newCommandContext() *commandContext {
	return &commandContext{open: func() (*core.App, error) { return core.New(version) }}
}

func (c *commandContext) ensureApp() (*core.App, error) {
	c.once.Do(func() {
		c.app, c.err = c.open()
	})
	return c.app, c.err
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "anime-cli",
		Short:         "Operate the anime metadata cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newStaleCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
