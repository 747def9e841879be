package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/quota"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// DefaultTrendMonths is the trend window when none is given.
const DefaultTrendMonths = 3

// TopUsersLimit caps the dashboard's top users list.
const TopUsersLimit = 5

// resolveOrg loads an organization and its allotment.
// A missing organization has allotment 0 and found == false.
func (t *Tracker) resolveOrg(ctx context.Context, orgID string) (org ports.Organization, allotment int64, found bool, err error) {
	org, err = t.orgs.Get(ctx, orgID)
	if errors.Is(err, ports.ErrNotFound) {
		return ports.Organization{ID: orgID}, 0, false, nil
	}
	if err != nil {
		return ports.Organization{}, 0, false, fmt.Errorf("get organization: %w", err)
	}
	return org, t.plans.Allotment(ctx, org), true, nil
}

// monthOf returns month in the tracker's calendar, or the current month when zero.
func (t *Tracker) monthOf(month time.Time) time.Time {
	if month.IsZero() {
		return t.now()
	}
	return month.In(t.loc)
}

// GetUsageBreakdown reports one calendar month of an organization's usage.
// A zero month means the current one.
func (t *Tracker) GetUsageBreakdown(ctx context.Context, orgID string, month time.Time) (usage.Breakdown, error) {
	_, allotment, _, err := t.resolveOrg(ctx, orgID)
	if err != nil {
		return usage.Breakdown{}, err
	}
	return t.breakdown(ctx, orgID, month, allotment)
}

func (t *Tracker) breakdown(ctx context.Context, orgID string, month time.Time, allotment int64) (usage.Breakdown, error) {
	start, end := usage.MonthBounds(t.monthOf(month))

	// Newest first: among equal-credit event types the most recent one ranks first.
	events, err := t.ledger.ListEvents(ctx, orgID, start, end)
	if err != nil {
		return usage.Breakdown{}, fmt.Errorf("list events: %w", err)
	}
	users, err := t.users.Lookup(ctx, userIDs(events))
	if err != nil {
		return usage.Breakdown{}, fmt.Errorf("lookup users: %w", err)
	}

	return usage.BuildBreakdown(events, users, allotment, start, end), nil
}

func userIDs(events []usage.Event) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range events {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	return ids
}

// GetUsageTrends reports monthly totals for the last months calendar months,
// oldest first, with a naive forecast.
func (t *Tracker) GetUsageTrends(ctx context.Context, orgID string, months int) (usage.Trends, error) {
	if months <= 0 {
		months = DefaultTrendMonths
	}

	window := usage.MonthsBack(t.now(), months)
	totals := make([]int64, len(window))
	for i, m := range window {
		start, end := usage.MonthBounds(m)
		sum, err := t.ledger.SumCredits(ctx, orgID, start, end)
		if err != nil {
			return usage.Trends{}, fmt.Errorf("sum credits for %s: %w", m.Format(usage.MonthLayout), err)
		}
		totals[i] = sum
	}

	return usage.BuildTrends(window, totals), nil
}

// HistoryQuery filters an organization's event history.
type HistoryQuery struct {
	usage.Query
	Category string // restricts to the event types of a catalog category
}

// HistoryUser identifies who triggered a history entry.
type HistoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// HistoryEntry is one ledger event enriched with catalog details.
type HistoryEntry struct {
	ID              string      `json:"id"`
	EventType       string      `json:"eventType"`
	EventName       string      `json:"eventName"`
	Category        string      `json:"category"`
	CreditsConsumed int64       `json:"creditsConsumed"`
	User            HistoryUser `json:"user"`
	SessionID       *int64      `json:"sessionId,omitempty"`
	EventData       event.Data  `json:"eventData"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Pagination describes the position of a page in the filtered set.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// HistoryPage is one page of event history, newest first.
type HistoryPage struct {
	Events     []HistoryEntry `json:"events"`
	Pagination Pagination     `json:"pagination"`
	Summary    usage.Summary  `json:"summary"`
}

// GetUsageHistory returns one page of an organization's filtered event history.
func (t *Tracker) GetUsageHistory(ctx context.Context, orgID string, hq HistoryQuery) (HistoryPage, error) {
	q := hq.Query.Normalize()
	q.OrganizationID = orgID

	if hq.Category != "" {
		q.EventTypes = t.events.TypesInCategory(ctx, hq.Category)
		if len(q.EventTypes) == 0 {
			return HistoryPage{
				Events:     []HistoryEntry{},
				Pagination: Pagination{Page: q.Page, Limit: q.Limit},
			}, nil
		}
	}

	page, err := t.ledger.Query(ctx, q)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("query events: %w", err)
	}

	users, err := t.users.Lookup(ctx, userIDs(page.Events))
	if err != nil {
		return HistoryPage{}, fmt.Errorf("lookup users: %w", err)
	}

	entries := make([]HistoryEntry, len(page.Events))
	for i, e := range page.Events {
		entries[i] = t.historyEntry(ctx, e, users)
	}

	totalPages := page.TotalPages()
	return HistoryPage{
		Events: entries,
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Summary.TotalEvents,
			TotalPages: totalPages,
			HasNext:    page.Page < totalPages,
			HasPrev:    page.Page > 1,
		},
		Summary: page.Summary,
	}, nil
}

func (t *Tracker) historyEntry(ctx context.Context, e usage.Event, users map[string]usage.User) HistoryEntry {
	entry := HistoryEntry{
		ID:              e.ID,
		EventType:       e.EventType,
		EventName:       e.EventType,
		Category:        "unknown",
		CreditsConsumed: e.CreditsConsumed,
		User:            HistoryUser{ID: e.UserID, Name: e.UserID},
		SessionID:       e.SessionID,
		EventData:       e.EventData,
		CreatedAt:       e.CreatedAt,
	}
	if def, ok := t.events.Get(ctx, e.EventType); ok {
		entry.EventName = def.Description
		entry.Category = def.Category
	}
	if u, ok := users[e.UserID]; ok {
		entry.User.Name = u.DisplayName()
		entry.User.Email = u.Email
	}
	return entry
}

// TopUser is one row of the dashboard's top users list.
type TopUser struct {
	Name       string  `json:"name"`
	Credits    int64   `json:"credits"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DashboardOverview summarizes the month against the allotment.
type DashboardOverview struct {
	TotalCredits     usage.Credits `json:"totalCredits"`
	UsedCredits      int64         `json:"usedCredits"`
	RemainingCredits usage.Credits `json:"remainingCredits"`
	PercentageUsed   float64       `json:"percentageUsed"`
	IsNearLimit      bool          `json:"isNearLimit"`
	IsOverLimit      bool          `json:"isOverLimit"`
	WarningThreshold float64       `json:"warningThreshold"`
}

// DashboardEvents slices the month by event type.
type DashboardEvents struct {
	Breakdown   map[string]usage.Tally `json:"breakdown"`
	TopEvents   []usage.TopEvent       `json:"topEvents"`
	TotalEvents int64                  `json:"totalEvents"`
}

// DashboardUsers slices the month by user.
type DashboardUsers struct {
	Breakdown  map[string]usage.Tally `json:"breakdown"`
	TopUsers   []TopUser              `json:"topUsers"`
	TotalUsers int                    `json:"totalUsers"`
}

// DashboardAnalytics holds the time series and derived averages.
type DashboardAnalytics struct {
	DailyUsage         []usage.DailyUsage   `json:"dailyUsage"`
	MonthlyTrends      []usage.MonthlyTrend `json:"monthlyTrends"`
	Forecast           usage.Forecast       `json:"forecast"`
	DailyAverage       float64              `json:"dailyAverage"`
	AvgCreditsPerEvent float64              `json:"avgCreditsPerEvent"`
}

// DashboardLimits describes the organization's plan.
type DashboardLimits struct {
	PlanType    string `json:"planType"`
	IsUnlimited bool   `json:"isUnlimited"`
	DaysInMonth int    `json:"daysInMonth"`
}

// DashboardMeta identifies the report.
type DashboardMeta struct {
	OrganizationID string    `json:"organizationId"`
	ReportMonth    string    `json:"reportMonth"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Dashboard is the combined usage report for one organization and month.
type Dashboard struct {
	Overview       DashboardOverview   `json:"overview"`
	Events         DashboardEvents     `json:"events"`
	Users          DashboardUsers      `json:"users"`
	Analytics      DashboardAnalytics  `json:"analytics"`
	Limits         DashboardLimits     `json:"limits"`
	Recommendation plan.Recommendation `json:"recommendation"`
	Meta           DashboardMeta       `json:"meta"`
}

// GetDashboard builds the dashboard for month (zero means the current month).
func (t *Tracker) GetDashboard(ctx context.Context, orgID string, month time.Time) (Dashboard, error) {
	org, allotment, _, err := t.resolveOrg(ctx, orgID)
	if err != nil {
		return Dashboard{}, err
	}

	m := t.monthOf(month)
	b, err := t.breakdown(ctx, orgID, m, allotment)
	if err != nil {
		return Dashboard{}, err
	}
	trends, err := t.GetUsageTrends(ctx, orgID, DefaultTrendMonths)
	if err != nil {
		return Dashboard{}, err
	}

	var totalEvents int64
	for _, tally := range b.EventBreakdown {
		totalEvents += tally.Count
	}

	var avgPerEvent float64
	if totalEvents > 0 {
		avgPerEvent = round2(float64(b.UsedCredits) / float64(totalEvents))
	}

	days := elapsedDays(t.now(), m)
	var dailyAvg float64
	if days > 0 {
		dailyAvg = round2(float64(b.UsedCredits) / float64(days))
	}

	return Dashboard{
		Overview: DashboardOverview{
			TotalCredits:     b.TotalCredits,
			UsedCredits:      b.UsedCredits,
			RemainingCredits: b.RemainingCredits,
			PercentageUsed:   b.PercentageUsed,
			IsNearLimit:      b.PercentageUsed >= quota.NearLimitPct,
			IsOverLimit:      b.PercentageUsed >= quota.OverLimitPct,
			WarningThreshold: quota.NearLimitPct,
		},
		Events: DashboardEvents{
			Breakdown:   b.EventBreakdown,
			TopEvents:   b.TopEvents,
			TotalEvents: totalEvents,
		},
		Users: DashboardUsers{
			Breakdown:  b.UserBreakdown,
			TopUsers:   topUsers(b.UserBreakdown, b.UsedCredits, TopUsersLimit),
			TotalUsers: len(b.UserBreakdown),
		},
		Analytics: DashboardAnalytics{
			DailyUsage:         b.DailyUsage,
			MonthlyTrends:      trends.MonthlyTrends,
			Forecast:           trends.Forecast,
			DailyAverage:       dailyAvg,
			AvgCreditsPerEvent: avgPerEvent,
		},
		Limits: DashboardLimits{
			PlanType:    org.PlanType,
			IsUnlimited: b.TotalCredits.Unlimited(),
			DaysInMonth: usage.DaysInMonth(m),
		},
		Recommendation: t.plans.UpgradeRecommendation(ctx, org.PlanType, b.UsedCredits),
		Meta: DashboardMeta{
			OrganizationID: orgID,
			ReportMonth:    b.Month,
			GeneratedAt:    t.now(),
		},
	}, nil
}

// topUsers ranks users by credits, descending, ties by name.
func topUsers(byUser map[string]usage.Tally, used int64, limit int) []TopUser {
	out := make([]TopUser, 0, len(byUser))
	for name, tally := range byUser {
		var pct float64
		if used > 0 {
			pct = float64(tally.Credits) / float64(used) * 100
		}
		out = append(out, TopUser{Name: name, Credits: tally.Credits, Count: tally.Count, Percentage: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Credits != out[j].Credits {
			return out[i].Credits > out[j].Credits
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// elapsedDays counts the days of month m that have started by now.
// Past months count in full; future months count zero.
func elapsedDays(now, m time.Time) int {
	start, end := usage.MonthBounds(m)
	switch {
	case now.Before(start):
		return 0
	case now.After(end):
		return usage.DaysInMonth(m)
	default:
		return now.Day()
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
