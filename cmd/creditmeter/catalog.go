package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/domain/event"
)

var eventsCategory string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the event catalog",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List event definitions",
	RunE:  runEventsList,
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Inspect the plan catalog",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans by price",
	RunE:  runPlansList,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansListCmd)

	eventsListCmd.Flags().StringVar(&eventsCategory, "category", "", "only this category")
}

func runEventsList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var defs []event.Definition
	if eventsCategory != "" {
		defs = s.services.Events.ByCategory(cmd.Context(), eventsCategory)
	} else {
		defs = s.services.Events.All(cmd.Context())
	}

	if len(defs) == 0 {
		fmt.Fprintln(stdout(cmd), "No events found")
		return nil
	}

	w := tabwriter.NewWriter(stdout(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCATEGORY\tBASE\tMULTIPLIERS\tDESCRIPTION")
	fmt.Fprintln(w, "-----\t--------\t----\t-----------\t-----------")
	for _, d := range defs {
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%s\n", d.EventType, d.Category, d.BaseCredits, multiplierSummary(d.Multipliers), d.Description)
	}
	w.Flush()
	return nil
}

func multiplierSummary(m event.Multipliers) string {
	var s string
	if m.Complexity != nil {
		s = "complexity"
	}
	if n := len(m.Features); n > 0 {
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("%d features", n)
	}
	if s == "" {
		return "-"
	}
	return s
}

func runPlansList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	plans := s.services.Plans.SortedByPrice(cmd.Context())
	if len(plans) == 0 {
		fmt.Fprintln(stdout(cmd), "No plans found")
		return nil
	}

	w := tabwriter.NewWriter(stdout(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tNAME\tCREDITS\tMONTHLY\tANNUAL\tOVERAGE")
	fmt.Fprintln(w, "----\t----\t-------\t-------\t------\t-------")
	for _, p := range plans {
		credits := fmt.Sprintf("%d", p.MonthlyCredits)
		if p.MonthlyCredits < 0 {
			credits = "unlimited"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t$%s\t$%s\t%s\n",
			p.PlanType, p.DisplayName, credits,
			p.Pricing.Monthly.StringFixed(2), p.Pricing.Annual.StringFixed(2), p.OverageRate.String())
	}
	w.Flush()
	return nil
}
