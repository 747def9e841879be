package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/bootstrap"
)

var (
	seedEventsFile string
	seedPlansFile  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the event and plan catalogs",
	Long: `Upsert event and plan definitions into the database.

Without flags the files from the catalog config section are used, and the
built-in NEXA Studio catalogs when those are empty too.

Examples:
  creditmeter seed
  creditmeter seed --events=catalog/events.yaml --plans=catalog/plans.yaml`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedEventsFile, "events", "", "event catalog YAML file")
	seedCmd.Flags().StringVar(&seedPlansFile, "plans", "", "plan catalog YAML file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stores, err := bootstrap.OpenStores(cfg.Database, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer stores.Close()

	catalogCfg := cfg.Catalog
	if seedEventsFile != "" {
		catalogCfg.EventsFile = seedEventsFile
	}
	if seedPlansFile != "" {
		catalogCfg.PlansFile = seedPlansFile
	}

	events, plans, err := bootstrap.SeedCatalogs(context.Background(), stores, catalogCfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout(cmd), "Seeded %d event definitions and %d plans\n", events, plans)
	return nil
}
