package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/bootstrap"
	"github.com/nexastudio/creditmeter/config"
)

var (
	// Global flags
	cfgFile string
	envFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "creditmeter",
	Short: "Usage and credit metering for NEXA Studio",
	Long: `creditmeter meters AI actions against monthly credit allotments.

It prices each tracked action from the event catalog, enforces the
organization's plan allotment and keeps an append-only usage ledger.

Quick start:
  creditmeter migrate   # Create the schema
  creditmeter seed      # Load the event and plan catalogs
  creditmeter serve     # Start the HTTP API

Reports:
  creditmeter usage breakdown --org=<id>
  creditmeter usage trends --org=<id>
  creditmeter usage history --org=<id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "creditmeter.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

// loadDotEnv loads path into the environment. A missing file is not an error.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// cliLogger discards logs unless --verbose is set.
func cliLogger(cfg *config.Config) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	logCfg := cfg.Logging
	logCfg.Format = "console"
	return bootstrap.SetupLogger(logCfg, os.Stderr)
}

// session is an open database plus the services built on it.
type session struct {
	cfg      *config.Config
	stores   *bootstrap.Stores
	services *bootstrap.Services
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return nil, fmt.Errorf("the memory driver keeps no data between commands; configure sqlite or postgres")
	}

	logger := cliLogger(cfg)
	stores, err := bootstrap.OpenStores(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	services, err := bootstrap.BuildServices(ctx, cfg, bootstrap.ServiceDeps{
		Stores: stores,
		Origin: "cli",
		Logger: logger,
	})
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &session{cfg: cfg, stores: stores, services: services}, nil
}

func (s *session) Close() error {
	return s.stores.Close()
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
