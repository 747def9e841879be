package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/bootstrap"
	"github.com/nexastudio/creditmeter/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering HTTP API",
	Long: `Start the creditmeter HTTP API.

The server will:
  - Load configuration from creditmeter.yaml (or --config)
  - Or load configuration from CREDITMETER_* environment variables
  - Open the database and seed empty catalogs
  - Subscribe to catalog invalidations when Redis is enabled
  - Serve /v1 and /healthz (and /metrics when enabled)

With --hot-reload the config file is watched and SIGHUP triggers a reload.
Enforcement mode, log level and catalog files are applied without restart.

Examples:
  creditmeter serve
  creditmeter serve --config /etc/creditmeter/config.yaml --hot-reload

  # Docker (env vars only):
  CREDITMETER_DATABASE_DRIVER=postgres CREDITMETER_DATABASE_DSN=postgres://... creditmeter serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", false, "watch the config file and reload on change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var (
		a   *bootstrap.App
		err error
	)

	if hasConfigFile && hotReload {
		cfg, loadErr := config.Load(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("load config: %w", loadErr)
		}
		holder, holderErr := config.NewHolder(cfgFile, bootstrap.SetupLogger(cfg.Logging, os.Stdout))
		if holderErr != nil {
			return holderErr
		}
		if err := holder.WatchFile(); err != nil {
			return err
		}
		holder.WatchSignals()
		a, err = bootstrap.New(nil, bootstrap.Options{Holder: holder})
	} else {
		if hotReload {
			fmt.Fprintln(os.Stderr, "hot reload needs a config file; continuing without it")
		}
		cfg, loadErr := loadConfig()
		if loadErr != nil {
			return loadErr
		}
		a, err = bootstrap.New(cfg, bootstrap.Options{})
	}
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	return a.Run(cmd.Context())
}
