package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			stats, err := app.Store().CacheStats(app.Now())
			if err != nil {
				return err
			}

			rows := [][]string{{"Titles", strconv.Itoa(stats.Anime)}}
			statuses := make([]string, 0, len(stats.ByStatus))
			for status := range stats.ByStatus {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			for _, status := range statuses {
				rows = append(rows, []string{"  " + status, strconv.Itoa(stats.ByStatus[status])})
			}
			rows = append(rows,
				[]string{"Stale", strconv.Itoa(stats.Stale)},
				[]string{"Never synced", strconv.Itoa(stats.NeverSynced)},
				[]string{"Episodes", strconv.Itoa(stats.Episodes)},
				[]string{"Watchlist entries", strconv.Itoa(stats.WatchlistEntries)},
				[]string{"Discussion links", strconv.Itoa(stats.Discussions)},
				[]string{"Slug aliases", strconv.Itoa(stats.SlugAliases)},
			)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Cache", "Rows"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
