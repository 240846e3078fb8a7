package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStaleCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List cached titles whose details are past their freshness window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			ids, err := app.Store().ListStaleAnimeIDs(app.Now(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No stale titles.")
				return nil
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				a, err := app.Store().GetAnime(id)
				if err != nil {
					return err
				}
				rows = append(rows, []string{a.ID, a.Title, string(a.Status), formatStamp(a.LastFullSyncAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Status", "Last sync"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of titles to list")
	return cmd
}
