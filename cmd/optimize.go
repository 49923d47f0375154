package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"imgpress/internal/events"
	"imgpress/internal/guard"
	"imgpress/internal/processor"
	"imgpress/internal/tui"
)

var optimizeNoTUI bool

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] <path>...",
	Short: "Optimize PNG and JPEG files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showUI := !optimizeNoTUI && isatty.IsTerminal(os.Stdout.Fd())

		s, log, err := setup(cmd, logOutput(showUI))
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		tasks := make([]processor.RawTask, 0, len(args))
		for _, arg := range args {
			tasks = append(tasks, processor.RawTask{Path: arg, Root: arg})
		}
		cfg := s.RunConfig(tasks)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus := events.NewBus()
		g := guard.New(newEngine(s, log), bus, log)
		defer g.Close()

		var (
			updates     <-chan events.Event
			unsubscribe = func() {}
		)
		if showUI {
			updates, unsubscribe = bus.Subscribe(1024)
		}

		h, err := g.Start(ctx, cfg)
		if err != nil {
			unsubscribe()
			return err
		}

		if showUI {
			program := tea.NewProgram(tui.NewModel(updates, g.Cancel))
			uiDone := make(chan struct{})
			go func() {
				_, _ = program.Run()
				close(uiDone)
			}()
			<-h.Done()
			unsubscribe()
			<-uiDone
		}

		res, err := h.Wait()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tui.RenderSummary(tui.ResultRows(res)))
		switch {
		case s.OutputDir != "":
			outPath := s.OutputDir
			if abs, absErr := filepath.Abs(outPath); absErr == nil {
				outPath = abs
			}
			fmt.Fprintf(out, "Optimized files written to: %s\n", outPath)
		case s.InPlace:
			fmt.Fprintln(out, "In-place optimization complete.")
		default:
			fmt.Fprintf(out, "Optimized copies written next to their sources (%s suffix).\n", processor.OptimizedMarker)
		}
		if res.Canceled {
			fmt.Fprintln(out, "Run was canceled; remaining files were left untouched.")
		}
		return nil
	},
}

func init() {
	optimizeCmd.Flags().BoolVar(&optimizeNoTUI, "no-tui", false, "disable the live progress view")

	rootCmd.AddCommand(optimizeCmd)
}
