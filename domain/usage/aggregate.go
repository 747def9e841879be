package usage

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TopEventsLimit caps the topEvents list of a breakdown.
const TopEventsLimit = 5

// Tally counts events and credits for one slice of a report.
type Tally struct {
	Count   int64 `json:"count"`
	Credits int64 `json:"credits"`
}

// DailyUsage is the credit total for one calendar day.
type DailyUsage struct {
	Date    string `json:"date"`
	Credits int64  `json:"credits"`
}

// TopEvent is an event type ranked by credit consumption.
type TopEvent struct {
	EventType  string  `json:"eventType"`
	Credits    int64   `json:"credits"`
	Percentage float64 `json:"percentage"`
}

// Breakdown is a usage report for one calendar month (value type).
type Breakdown struct {
	Month            string           `json:"month"`
	TotalCredits     Credits          `json:"totalCredits"`
	UsedCredits      int64            `json:"usedCredits"`
	RemainingCredits Credits          `json:"remainingCredits"`
	PercentageUsed   float64          `json:"percentageUsed"`
	EventBreakdown   map[string]Tally `json:"eventBreakdown"`
	UserBreakdown    map[string]Tally `json:"userBreakdown"`
	DailyUsage       []DailyUsage     `json:"dailyUsage"`
	TopEvents        []TopEvent       `json:"topEvents"`
}

// AllotmentCredits converts a plan allotment (negative = unlimited) to Credits.
func AllotmentCredits(allotment int64) Credits {
	if allotment < 0 {
		return UnlimitedCredits
	}
	return Credits(allotment)
}

// Remaining returns the credits left under allotment after used.
// This is a PURE function.
func Remaining(allotment, used int64) Credits {
	if allotment < 0 {
		return UnlimitedCredits
	}
	if used >= allotment {
		return 0
	}
	return Credits(allotment - used)
}

// PercentUsed returns used as a percentage of allotment.
// Unlimited and zero allotments report 0.
func PercentUsed(allotment, used int64) float64 {
	if allotment <= 0 {
		return 0
	}
	return float64(used) / float64(allotment) * 100
}

// SumCredits totals the credits of events.
func SumCredits(events []Event) int64 {
	var total int64
	for _, e := range events {
		total += e.CreditsConsumed
	}
	return total
}

// BuildBreakdown aggregates the events of the month [start, end].
// Events outside the window are ignored. users maps user IDs to display identities.
// This is a PURE function.
func BuildBreakdown(events []Event, users map[string]User, allotment int64, start, end time.Time) Breakdown {
	var windowed []Event
	for _, e := range events {
		if InWindow(e.CreatedAt, start, end) {
			windowed = append(windowed, e)
		}
	}

	used := SumCredits(windowed)

	byEvent := make(map[string]Tally)
	var order []string
	byUser := make(map[string]Tally)

	for _, e := range windowed {
		t, seen := byEvent[e.EventType]
		if !seen {
			order = append(order, e.EventType)
		}
		t.Count++
		t.Credits += e.CreditsConsumed
		byEvent[e.EventType] = t

		key := userKey(users, e.UserID)
		u := byUser[key]
		u.Count++
		u.Credits += e.CreditsConsumed
		byUser[key] = u
	}

	return Breakdown{
		Month:            start.Format(MonthLayout),
		TotalCredits:     AllotmentCredits(allotment),
		UsedCredits:      used,
		RemainingCredits: Remaining(allotment, used),
		PercentageUsed:   PercentUsed(allotment, used),
		EventBreakdown:   byEvent,
		UserBreakdown:    byUser,
		DailyUsage:       Daily(windowed, start, end),
		TopEvents:        RankEvents(byEvent, order, used, TopEventsLimit),
	}
}

func userKey(users map[string]User, id string) string {
	if u, ok := users[id]; ok {
		return u.DisplayName()
	}
	return id
}

// Daily returns one entry per calendar day in [start, end], ascending,
// including days without events. Days are taken in start's location.
// This is a PURE function.
func Daily(events []Event, start, end time.Time) []DailyUsage {
	loc := start.Location()
	totals := make(map[string]int64)
	for _, e := range events {
		totals[e.CreatedAt.In(loc).Format(DayLayout)] += e.CreditsConsumed
	}

	var out []DailyUsage
	for day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc); !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(DayLayout)
		out = append(out, DailyUsage{Date: key, Credits: totals[key]})
	}
	return out
}

// RankEvents orders event types by credits, descending, keeping first-seen
// order for ties, and returns at most limit entries.
// This is a PURE function.
func RankEvents(byEvent map[string]Tally, order []string, used int64, limit int) []TopEvent {
	ranked := make([]TopEvent, 0, len(order))
	for _, et := range order {
		t := byEvent[et]
		var pct float64
		if used > 0 {
			pct = float64(t.Credits) / float64(used) * 100
		}
		ranked = append(ranked, TopEvent{EventType: et, Credits: t.Credits, Percentage: pct})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Credits > ranked[j].Credits })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// MonthlyTrend is the credit total of one month and its growth over the prior month.
type MonthlyTrend struct {
	Month   string  `json:"month"`
	Credits int64   `json:"credits"`
	Growth  float64 `json:"growth"`
}

// Forecast is a naive projection of next month's consumption.
type Forecast struct {
	NextMonthEstimate int64 `json:"nextMonthEstimate"`
	Confidence        int64 `json:"confidence"`
}

// Trends is a month-over-month report (value type).
type Trends struct {
	MonthlyTrends []MonthlyTrend `json:"monthlyTrends"`
	Forecast      Forecast       `json:"forecast"`
}

// BuildTrends computes growth and a forecast from per-month totals, oldest first.
// months and totals must have equal length.
// This is a PURE function.
func BuildTrends(months []time.Time, totals []int64) Trends {
	trends := make([]MonthlyTrend, 0, len(months))
	for i, m := range months {
		var growth float64
		if i > 0 {
			prev := totals[i-1]
			growth = float64(totals[i]-prev) / math.Max(1, float64(prev)) * 100
		}
		trends = append(trends, MonthlyTrend{
			Month:   m.Format(MonthLayout),
			Credits: totals[i],
			Growth:  growth,
		})
	}

	return Trends{MonthlyTrends: trends, Forecast: forecast(trends)}
}

func forecast(trends []MonthlyTrend) Forecast {
	if len(trends) == 0 {
		return Forecast{Confidence: 100}
	}

	tail := trends
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	var sum float64
	for _, t := range tail {
		sum += t.Growth
	}
	avg := sum / float64(len(tail))

	last := float64(trends[len(trends)-1].Credits)
	estimate := math.Max(0, last*(1+avg/100))
	confidence := math.Max(0, math.Min(100, 100-math.Abs(avg)*2))

	return Forecast{
		NextMonthEstimate: decimal.NewFromFloat(estimate).Round(0).IntPart(),
		Confidence:        decimal.NewFromFloat(confidence).Round(0).IntPart(),
	}
}
