package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync for one title in the foreground",
	}

	syncCmd.AddCommand(&cobra.Command{
		Use:   "detail <id>",
		Short: "Fetch full details of a title from the providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			id, err := resolveArg(cmd, app, args[0])
			if err != nil {
				return err
			}
			if err := app.Syncer().DetailSync(cmd.Context(), id); err != nil {
				return err
			}
			a, err := app.Store().GetAnime(id)
			if err != nil {
				return err
			}
			episodes := "?"
			if a.EpisodeCountTotal != nil {
				episodes = strconv.Itoa(*a.EpisodeCountTotal)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Score", "Episodes", "Synced"},
				[][]string{{a.ID, a.Title, string(a.Status), strconv.FormatFloat(a.Score, 'f', 2, 64), episodes, formatStamp(a.LastFullSyncAt)}},
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	})

	syncCmd.AddCommand(&cobra.Command{
		Use:   "episodes <id>",
		Short: "Fetch the episode list of a title from the providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			id, err := resolveArg(cmd, app, args[0])
			if err != nil {
				return err
			}
			if err := app.Syncer().EpisodeSync(cmd.Context(), id); err != nil {
				return err
			}
			episodes, err := app.Store().GetEpisodes(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached %d episodes for %s.\n", len(episodes), id)
			return nil
		},
	})

	return syncCmd
}
