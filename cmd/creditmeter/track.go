package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/event"
)

var (
	trackOrg       string
	trackUser      string
	trackEvent     string
	trackData      string
	trackOverride  int64
	trackSession   int64
	trackSkipLimit bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Charge one action to an organization",
	Long: `Charge one action to an organization, as the API would.

Examples:
  creditmeter track --org=org_1 --user=u_1 --event=structuring_diagnose --data='{"complexity":"high"}'
  creditmeter track --org=org_1 --user=u_1 --event=visuals_sketch --override=0 --skip-limit`,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)

	trackCmd.Flags().StringVar(&trackOrg, "org", "", "organization ID (required)")
	trackCmd.Flags().StringVar(&trackUser, "user", "", "user ID (required)")
	trackCmd.Flags().StringVar(&trackEvent, "event", "", "event type (required)")
	trackCmd.Flags().StringVar(&trackData, "data", "", "event data as a JSON object")
	trackCmd.Flags().Int64Var(&trackOverride, "override", -1, "charge exactly this many credits")
	trackCmd.Flags().Int64Var(&trackSession, "session", 0, "session ID")
	trackCmd.Flags().BoolVar(&trackSkipLimit, "skip-limit", false, "charge without checking the allotment")
	trackCmd.MarkFlagRequired("org")
	trackCmd.MarkFlagRequired("user")
	trackCmd.MarkFlagRequired("event")
}

func runTrack(cmd *cobra.Command, args []string) error {
	data, err := parseEventData(trackData)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	params := app.TrackParams{
		OrganizationID: trackOrg,
		UserID:         trackUser,
		EventType:      trackEvent,
		EventData:      data,
		SkipLimitCheck: trackSkipLimit,
	}
	if cmd.Flags().Changed("override") {
		params.CreditsOverride = &trackOverride
	}
	if cmd.Flags().Changed("session") {
		params.SessionID = &trackSession
	}

	res := s.services.Tracker.TrackUsage(cmd.Context(), params)
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Kind(), res.Error)
	}

	out := stdout(cmd)
	fmt.Fprintf(out, "Event:     %s\n", res.UsageEventID)
	fmt.Fprintf(out, "Charged:   %d credits\n", res.CreditsConsumed)
	fmt.Fprintf(out, "Remaining: %s\n", res.RemainingCredits)
	if w := res.LimitWarning; w != nil && w.RecommendedAction != "" {
		fmt.Fprintf(out, "Warning:   %.1f%% used, %s\n", w.PercentageUsed, w.RecommendedAction)
	}
	return nil
}

// parseEventData decodes a JSON object, keeping numbers as json.Number.
func parseEventData(raw string) (event.Data, error) {
	if raw == "" {
		return event.Data{}, nil
	}
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var data event.Data
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid --data: %w", err)
	}
	if data == nil {
		data = event.Data{}
	}
	return data, nil
}
