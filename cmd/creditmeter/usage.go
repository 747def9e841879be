package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/usage"
)

var (
	usageOrg    string
	usageMonth  string
	usageMonths int
	usageJSON   bool

	historyPage      int
	historyLimit     int
	historyEvent     string
	historyUser      string
	historyCategory  string
	historyMinCredit int64
	historyMaxCredit int64
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Usage reports",
	Long: `Report an organization's credit usage.

Examples:
  creditmeter usage breakdown --org=org_1 --month=2024-03
  creditmeter usage trends --org=org_1 --months=6
  creditmeter usage history --org=org_1 --category=data_transfer
  creditmeter usage dashboard --org=org_1 --json`,
}

var usageBreakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Show one month of usage",
	RunE:  runUsageBreakdown,
}

var usageTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show month-over-month usage",
	RunE:  runUsageTrends,
}

var usageHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List tracked events",
	RunE:  runUsageHistory,
}

var usageDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the usage dashboard",
	RunE:  runUsageDashboard,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageBreakdownCmd)
	usageCmd.AddCommand(usageTrendsCmd)
	usageCmd.AddCommand(usageHistoryCmd)
	usageCmd.AddCommand(usageDashboardCmd)

	usageCmd.PersistentFlags().StringVar(&usageOrg, "org", "", "organization ID (required)")
	usageCmd.PersistentFlags().BoolVar(&usageJSON, "json", false, "print JSON")
	usageCmd.MarkPersistentFlagRequired("org")

	usageBreakdownCmd.Flags().StringVar(&usageMonth, "month", "", "month as YYYY-MM (default current)")
	usageDashboardCmd.Flags().StringVar(&usageMonth, "month", "", "month as YYYY-MM (default current)")
	usageTrendsCmd.Flags().IntVar(&usageMonths, "months", app.DefaultTrendMonths, "number of months")

	usageHistoryCmd.Flags().IntVar(&historyPage, "page", 1, "page number")
	usageHistoryCmd.Flags().IntVar(&historyLimit, "limit", usage.DefaultPageSize, "events per page")
	usageHistoryCmd.Flags().StringVar(&historyEvent, "event", "", "filter by event type")
	usageHistoryCmd.Flags().StringVar(&historyUser, "user", "", "filter by user ID")
	usageHistoryCmd.Flags().StringVar(&historyCategory, "category", "", "filter by event category")
	usageHistoryCmd.Flags().Int64Var(&historyMinCredit, "min-credits", 0, "minimum credits per event")
	usageHistoryCmd.Flags().Int64Var(&historyMaxCredit, "max-credits", 0, "maximum credits per event")
}

func parseMonthFlag(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	m, err := usage.ParseMonth(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --month %q, want YYYY-MM", s)
	}
	return m, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runUsageBreakdown(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tracker := s.services.Tracker
	month, err := parseMonthFlag(usageMonth, tracker.Location())
	if err != nil {
		return err
	}

	b, err := tracker.GetUsageBreakdown(cmd.Context(), usageOrg, month)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if usageJSON {
		return printJSON(out, b)
	}

	fmt.Fprintf(out, "Month:     %s\n", b.Month)
	fmt.Fprintf(out, "Allotment: %s\n", b.TotalCredits)
	fmt.Fprintf(out, "Used:      %d (%.1f%%)\n", b.UsedCredits, b.PercentageUsed)
	fmt.Fprintf(out, "Remaining: %s\n\n", b.RemainingCredits)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCREDITS\tSHARE")
	fmt.Fprintln(w, "-----\t-------\t-----")
	for _, e := range b.TopEvents {
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", e.EventType, e.Credits, e.Percentage)
	}
	w.Flush()

	if len(b.UserBreakdown) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tEVENTS\tCREDITS")
		fmt.Fprintln(w, "----\t------\t-------")
		for _, name := range sortedKeys(b.UserBreakdown) {
			tally := b.UserBreakdown[name]
			fmt.Fprintf(w, "%s\t%d\t%d\n", name, tally.Count, tally.Credits)
		}
		w.Flush()
	}
	return nil
}

func runUsageTrends(cmd *cobra.Command, args []string) error {
	if usageMonths < 1 || usageMonths > 24 {
		return fmt.Errorf("--months must be between 1 and 24")
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	trends, err := s.services.Tracker.GetUsageTrends(cmd.Context(), usageOrg, usageMonths)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if usageJSON {
		return printJSON(out, trends)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tCREDITS\tGROWTH")
	fmt.Fprintln(w, "-----\t-------\t------")
	for _, m := range trends.MonthlyTrends {
		fmt.Fprintf(w, "%s\t%d\t%+.1f%%\n", m.Month, m.Credits, m.Growth)
	}
	w.Flush()

	fmt.Fprintf(out, "\nForecast: %d credits next month (confidence %d%%)\n",
		trends.Forecast.NextMonthEstimate, trends.Forecast.Confidence)
	return nil
}

func runUsageHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	hq := app.HistoryQuery{
		Query: usage.Query{
			EventType: historyEvent,
			UserID:    historyUser,
			Page:      historyPage,
			Limit:     historyLimit,
		},
		Category: historyCategory,
	}
	if cmd.Flags().Changed("min-credits") {
		hq.MinCredits = &historyMinCredit
	}
	if cmd.Flags().Changed("max-credits") {
		hq.MaxCredits = &historyMaxCredit
	}

	page, err := s.services.Tracker.GetUsageHistory(cmd.Context(), usageOrg, hq)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if usageJSON {
		return printJSON(out, page)
	}

	if len(page.Events) == 0 {
		fmt.Fprintln(out, "No events found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVENT\tCATEGORY\tCREDITS\tUSER\tCREATED")
	fmt.Fprintln(w, "--\t-----\t--------\t-------\t----\t-------")
	for _, e := range page.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.EventType, e.Category, e.CreditsConsumed, e.User.Name,
			e.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	p := page.Pagination
	fmt.Fprintf(out, "\nPage %d of %d (%d events, %d credits, %d users)\n",
		p.Page, p.TotalPages, p.Total, page.Summary.TotalCredits, page.Summary.UniqueUsers)
	return nil
}

func runUsageDashboard(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tracker := s.services.Tracker
	month, err := parseMonthFlag(usageMonth, tracker.Location())
	if err != nil {
		return err
	}

	d, err := tracker.GetDashboard(cmd.Context(), usageOrg, month)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if usageJSON {
		return printJSON(out, d)
	}

	o := d.Overview
	fmt.Fprintf(out, "Organization:  %s (%s)\n", d.Meta.OrganizationID, d.Limits.PlanType)
	fmt.Fprintf(out, "Month:         %s\n", d.Meta.ReportMonth)
	fmt.Fprintf(out, "Used:          %d of %s (%.1f%%)\n", o.UsedCredits, o.TotalCredits, o.PercentageUsed)
	fmt.Fprintf(out, "Remaining:     %s\n", o.RemainingCredits)
	fmt.Fprintf(out, "Events:        %d\n", d.Events.TotalEvents)
	fmt.Fprintf(out, "Users:         %d\n", d.Users.TotalUsers)
	fmt.Fprintf(out, "Daily average: %.2f\n", d.Analytics.DailyAverage)
	if o.IsOverLimit {
		fmt.Fprintln(out, "Status:        over limit")
	} else if o.IsNearLimit {
		fmt.Fprintln(out, "Status:        near limit")
	}
	if r := d.Recommendation; r.ShouldUpgrade {
		fmt.Fprintf(out, "Upgrade:       %s (%s)\n", r.RecommendedPlan, r.Reason)
	}
	return nil
}

func sortedKeys(m map[string]usage.Tally) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
