package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/anime-sync/internal/core"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <slug|title|id>",
		Short: "Show which canonical id an input resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			res, err := app.Resolver().ResolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Input", "ID", "Strategy"},
				[][]string{{res.Input, res.ID, string(res.Strategy)}},
				nil,
			))
			return nil
		},
	}
}

// resolveArg maps a command argument to a canonical id and fails when no
// strategy could.
func resolveArg(cmd *cobra.Command, app *core.App, input string) (string, error) {
	res, err := app.Resolver().ResolveID(cmd.Context(), input)
	if err != nil {
		return "", err
	}
	if !res.Resolved() {
		return "", fmt.Errorf("could not resolve %q to an anime id", input)
	}
	return res.ID, nil
}
