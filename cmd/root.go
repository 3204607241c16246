package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/config"
	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "starload",
	Short: "Starload: star-schema warehouse loader for e-commerce transactions",
	Long: `Starload reads an e-commerce transaction CSV, cleans it, and loads it
into a star schema (customer, date, product and country dimensions around a
sales fact table) in PostgreSQL, MySQL, SQLite or MongoDB.

Run "starload init" to create a config, then "starload load".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.starload/starload.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
}

func configPath() string {
	if cfgFile == "" {
		return config.ExpandHome(config.DefaultPath)
	}
	return cfgFile
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newEngine loads the config and builds an engine with file logging. With
// quiet set, log lines go to the log file only. The returned func flushes
// metrics and must be called when the command finishes.
func newEngine(quiet bool) (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var console io.Writer = os.Stderr
	if quiet {
		console = io.Discard
	}
	logger, err := logging.SetupTo(console, cfg.Logging.Level, cfg.Logging.Directory, cfg.Logging.RetentionDays)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(console, nil))
		logger.Warn("file logging unavailable", "error", err)
	}

	eng := engine.New(cfg, logger)
	flush, err := eng.SetupMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("setting up metrics: %w", err)
	}
	return eng, flush, nil
}
