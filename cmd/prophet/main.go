package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thinkscotty/prophet/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	cfg        config.Config
)

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "prophet",
		Short:         "Multi-source ingestion and prediction question synthesis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			setupLogger(cfg.Logging.Level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")

	root.AddCommand(
		serveCommand(),
		scrapeCommand(),
		generateCommand(),
		sourcesCommand(),
		snapshotsCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			// Overrides the root hook so no config is needed.
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Prophet %s (built %s)\n", version, buildTime)
			},
		},
	)
	return root
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
