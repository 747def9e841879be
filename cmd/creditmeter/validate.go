package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/adapters/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and catalog files",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	events, err := catalog.LoadEventsFile(cfg.Catalog.EventsFile)
	if err != nil {
		return fmt.Errorf("event catalog invalid: %w", err)
	}
	plans, err := catalog.LoadPlansFile(cfg.Catalog.PlansFile)
	if err != nil {
		return fmt.Errorf("plan catalog invalid: %w", err)
	}

	out := stdout(cmd)
	fmt.Fprintln(out, "Configuration valid")
	fmt.Fprintf(out, "  Database:    %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  Listen:      %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "  Enforcement: %s\n", cfg.Metering.Enforcement)
	fmt.Fprintf(out, "  Timezone:    %s\n", cfg.Metering.Timezone)
	fmt.Fprintf(out, "  Redis:       %t\n", cfg.Redis.Enabled)
	fmt.Fprintf(out, "  Events:      %d\n", len(events))
	fmt.Fprintf(out, "  Plans:       %d\n", len(plans))
	return nil
}
