package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docflow/edms/pkg/config"
)

var (
	configPath string
	listenAddr string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "edms-server",
	Short: "Document lifecycle server",
	Long: `edms-server hosts the document lifecycle API: status transitions,
version management, permission checks and the audit trail.

Configuration is read from --config (YAML), then EDMS_* environment
variables, then command-line flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "edms.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

// loadConfig resolves the effective configuration.
// Priority: flags > EDMS_* env vars > config file > defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cfg.Server.Listen = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	// glog writes fatal startup errors; keep it on stderr.
	_ = flag.Set("logtostderr", "true")

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
