package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imgpress/internal/events"
	"imgpress/internal/guard"
	"imgpress/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run control API and event stream over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, log, err := setup(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus := events.NewBus()
		g := guard.New(newEngine(s, log), bus, log)
		defer g.Close()

		return server.New(ctx, g, bus, log).ListenAndServe(ctx, s.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
