package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imgpress/internal/codec"
	"imgpress/internal/config"
	"imgpress/internal/logging"
	"imgpress/internal/processor"
	"imgpress/internal/tools"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "imgpress",
	Short: "imgpress - batch PNG/JPEG optimizer",
	Long: "imgpress shrinks PNG and JPEG files in parallel with pngquant, oxipng and a JPEG re-encode,\n" +
		"optionally writing WebP and AVIF variants next to each result.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// setup resolves settings for cmd and builds the logger they describe,
// writing to logOut.
func setup(cmd *cobra.Command, logOut io.Writer) (config.Settings, *zap.Logger, error) {
	s, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return config.Settings{}, nil, err
	}
	log, err := logging.New(logging.Options{Level: s.LogLevel, Format: s.LogFormat, Output: logOut})
	if err != nil {
		return config.Settings{}, nil, err
	}
	return s, log, nil
}

func newEngine(s config.Settings, log *zap.Logger) *processor.Engine {
	dec := codec.Decoder{Log: log}
	return &processor.Engine{
		Codecs: processor.Codecs{
			Decoder: dec,
			WebP:    codec.NewWebPEncoder(),
			AVIF:    codec.NewAVIFEncoder(),
			JPEG:    codec.JPEGRecompressor{Decoder: dec},
		},
		Tools:   newGateway(s, log),
		Workers: s.Workers,
		Log:     log,
	}
}

func newGateway(s config.Settings, log *zap.Logger) tools.Gateway {
	return tools.Gateway{Pngquant: s.Pngquant, Oxipng: s.Oxipng, Log: log}
}

// logOutput is where command logs go. The live progress view owns the
// terminal, so logs are dropped while it runs.
func logOutput(showUI bool) io.Writer {
	if showUI {
		return io.Discard
	}
	return os.Stderr
}
