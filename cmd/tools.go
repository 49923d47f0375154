package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"imgpress/internal/tui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Check that pngquant and oxipng are available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, log, err := setup(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		gw := newGateway(s, log)
		versions := gw.Versions(cmd.Context())

		names := make([]string, 0, len(versions))
		for name := range versions {
			names = append(names, name)
		}
		slices.Sort(names)

		rows := make([]tui.SummaryRow, 0, len(names))
		for _, name := range names {
			rows = append(rows, tui.SummaryRow{Label: name, Value: versions[name]})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(rows))

		if _, err := gw.Prepare(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PNG tools ready.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
