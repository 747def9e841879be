package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/usage"
)

func aprilAt(day, hour int) time.Time {
	return time.Date(2024, 4, day, hour, 0, 0, 0, time.UTC)
}

func TestGetUsageBreakdown(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "basic", 10, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u2", "complex", 19, aprilAt(2, 9))
	f.seed(t, "3", "org-1", "u1", "basic", 10, aprilAt(2, 10))
	f.seed(t, "4", "org-1", "u3", "typed", 1, time.Date(2024, 4, 30, 23, 59, 59, 999_000_000, time.UTC))
	f.seed(t, "5", "org-1", "u1", "basic", 50, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	f.seed(t, "6", "org-2", "u1", "basic", 50, aprilAt(3, 0))

	b, err := f.tracker.GetUsageBreakdown(context.Background(), "org-1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "2024-04", b.Month)
	assert.Equal(t, usage.Credits(100), b.TotalCredits)
	assert.Equal(t, int64(40), b.UsedCredits)
	assert.Equal(t, usage.Credits(60), b.RemainingCredits)
	assert.InDelta(t, 40.0, b.PercentageUsed, 1e-9)

	assert.Equal(t, usage.Tally{Count: 2, Credits: 20}, b.EventBreakdown["basic"])
	assert.Equal(t, usage.Tally{Count: 2, Credits: 20}, b.UserBreakdown["Ada Lovelace"])
	assert.Equal(t, usage.Tally{Count: 1, Credits: 19}, b.UserBreakdown["bob@example.com"])
	assert.Equal(t, usage.Tally{Count: 1, Credits: 1}, b.UserBreakdown["u3"])

	require.Len(t, b.DailyUsage, 30)
	assert.Equal(t, int64(29), b.DailyUsage[1].Credits)
	assert.Equal(t, int64(1), b.DailyUsage[29].Credits)

	require.Len(t, b.TopEvents, 3)
	assert.Equal(t, "basic", b.TopEvents[0].EventType)
	assert.Equal(t, "complex", b.TopEvents[1].EventType)
}

func TestGetUsageBreakdown_TiesFavorMostRecent(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "complex", 5, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u1", "basic", 5, aprilAt(2, 0))

	b, err := f.tracker.GetUsageBreakdown(context.Background(), "org-1", time.Time{})
	require.NoError(t, err)

	require.Len(t, b.TopEvents, 2)
	assert.Equal(t, "basic", b.TopEvents[0].EventType)
	assert.Equal(t, "complex", b.TopEvents[1].EventType)
}

func TestGetUsageBreakdown_SameInstantTiesFavorLastInserted(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "complex", 5, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u1", "basic", 5, aprilAt(1, 0))
	f.seed(t, "3", "org-1", "u1", "typed", 5, aprilAt(1, 0))

	b, err := f.tracker.GetUsageBreakdown(context.Background(), "org-1", time.Time{})
	require.NoError(t, err)

	require.Len(t, b.TopEvents, 3)
	assert.Equal(t, "typed", b.TopEvents[0].EventType)
	assert.Equal(t, "basic", b.TopEvents[1].EventType)
	assert.Equal(t, "complex", b.TopEvents[2].EventType)
}

func TestGetUsageBreakdown_PastMonthAndMissingOrg(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "ghost", "u1", "basic", 7, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))

	b, err := f.tracker.GetUsageBreakdown(context.Background(), "ghost", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "2024-02", b.Month)
	assert.Equal(t, usage.Credits(0), b.TotalCredits)
	assert.Equal(t, int64(7), b.UsedCredits)
	assert.Equal(t, usage.Credits(0), b.RemainingCredits)
	assert.Len(t, b.DailyUsage, 29)
}

func TestGetUsageBreakdown_Unlimited(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-unl", "u1", "basic", 700, aprilAt(1, 0))

	b, err := f.tracker.GetUsageBreakdown(context.Background(), "org-unl", time.Time{})
	require.NoError(t, err)

	assert.True(t, b.TotalCredits.Unlimited())
	assert.True(t, b.RemainingCredits.Unlimited())
	assert.Equal(t, 0.0, b.PercentageUsed)
}

func TestGetUsageTrends(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "feb", "org-1", "u1", "basic", 100, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))
	f.seed(t, "mar", "org-1", "u1", "basic", 150, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	f.seed(t, "apr", "org-1", "u1", "basic", 120, aprilAt(10, 0))

	trends, err := f.tracker.GetUsageTrends(context.Background(), "org-1", 0)
	require.NoError(t, err)

	require.Len(t, trends.MonthlyTrends, 3)
	assert.Equal(t, "2024-02", trends.MonthlyTrends[0].Month)
	assert.Equal(t, int64(150), trends.MonthlyTrends[1].Credits)
	assert.InDelta(t, 50.0, trends.MonthlyTrends[1].Growth, 1e-9)
	assert.InDelta(t, -20.0, trends.MonthlyTrends[2].Growth, 1e-9)
	assert.Equal(t, int64(132), trends.Forecast.NextMonthEstimate)
	assert.Equal(t, int64(80), trends.Forecast.Confidence)

	six, err := f.tracker.GetUsageTrends(context.Background(), "org-1", 6)
	require.NoError(t, err)
	assert.Len(t, six.MonthlyTrends, 6)
	assert.Equal(t, "2023-11", six.MonthlyTrends[0].Month)
}

func TestGetUsageHistory(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "basic", 10, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u2", "complex", 19, aprilAt(2, 0))
	f.seed(t, "3", "org-1", "u1", "typed", 1, aprilAt(3, 0))
	f.seed(t, "4", "org-1", "u9", "retired", 4, aprilAt(4, 0))
	f.seed(t, "5", "org-2", "u1", "basic", 10, aprilAt(5, 0))

	page, err := f.tracker.GetUsageHistory(context.Background(), "org-1", app.HistoryQuery{
		Query: usage.Query{Limit: 2},
	})
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	assert.Equal(t, "4", page.Events[0].ID)
	assert.Equal(t, "retired", page.Events[0].EventName)
	assert.Equal(t, "unknown", page.Events[0].Category)
	assert.Equal(t, "u9", page.Events[0].User.Name)
	assert.Equal(t, "Typed action", page.Events[1].EventName)
	assert.Equal(t, "Ada Lovelace", page.Events[1].User.Name)

	assert.Equal(t, app.Pagination{Page: 1, Limit: 2, Total: 4, TotalPages: 2, HasNext: true}, page.Pagination)
	assert.Equal(t, usage.Summary{TotalCredits: 34, TotalEvents: 4, UniqueUsers: 3}, page.Summary)
}

func TestGetUsageHistory_Category(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "basic", 10, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u2", "complex", 19, aprilAt(2, 0))
	f.seed(t, "3", "org-1", "u1", "typed", 1, aprilAt(3, 0))

	page, err := f.tracker.GetUsageHistory(context.Background(), "org-1", app.HistoryQuery{Category: "ai_analysis"})
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	assert.Equal(t, "typed", page.Events[0].EventType)
	assert.Equal(t, "complex", page.Events[1].EventType)
	assert.Equal(t, "bob@example.com", page.Events[1].User.Name)
	assert.Equal(t, int64(20), page.Summary.TotalCredits)

	empty, err := f.tracker.GetUsageHistory(context.Background(), "org-1", app.HistoryQuery{Category: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, empty.Events)
	assert.NotNil(t, empty.Events)
	assert.Equal(t, 50, empty.Pagination.Limit)
	assert.Equal(t, int64(0), empty.Summary.TotalEvents)
}

func TestGetDashboard(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "basic", 30, aprilAt(1, 0))
	f.seed(t, "2", "org-1", "u1", "basic", 30, aprilAt(2, 0))
	f.seed(t, "3", "org-1", "u2", "complex", 25, aprilAt(3, 0))

	d, err := f.tracker.GetDashboard(context.Background(), "org-1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(85), d.Overview.UsedCredits)
	assert.True(t, d.Overview.IsNearLimit)
	assert.False(t, d.Overview.IsOverLimit)
	assert.Equal(t, 80.0, d.Overview.WarningThreshold)

	assert.Equal(t, int64(3), d.Events.TotalEvents)
	assert.Equal(t, 28.33, d.Analytics.AvgCreditsPerEvent)
	// 85 credits over the 15 elapsed days of April
	assert.Equal(t, 5.67, d.Analytics.DailyAverage)
	assert.Len(t, d.Analytics.MonthlyTrends, 3)

	require.Len(t, d.Users.TopUsers, 2)
	assert.Equal(t, "Ada Lovelace", d.Users.TopUsers[0].Name)
	assert.Equal(t, int64(60), d.Users.TopUsers[0].Credits)
	assert.Equal(t, 2, d.Users.TotalUsers)

	assert.Equal(t, "starter", d.Limits.PlanType)
	assert.False(t, d.Limits.IsUnlimited)
	assert.Equal(t, 30, d.Limits.DaysInMonth)

	assert.True(t, d.Recommendation.ShouldUpgrade)
	assert.Equal(t, "pro", d.Recommendation.RecommendedPlan)

	assert.Equal(t, "org-1", d.Meta.OrganizationID)
	assert.Equal(t, "2024-04", d.Meta.ReportMonth)
}

func TestGetDashboard_PastMonthUsesAllDays(t *testing.T) {
	f := newFixture(t, app.EnforcementSoft)
	f.seed(t, "1", "org-1", "u1", "basic", 62, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	d, err := f.tracker.GetDashboard(context.Background(), "org-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 2.0, d.Analytics.DailyAverage)
	assert.Equal(t, 31, d.Limits.DaysInMonth)
}
