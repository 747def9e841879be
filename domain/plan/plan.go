// Package plan provides subscription plan value types and pure functions.
package plan

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Unlimited is the allotment sentinel for plans without a monthly cap.
const Unlimited int64 = -1

// LimitKeyAICalls is the organization usage-limit key holding the monthly allotment.
const LimitKeyAICalls = "ai_calls_per_month"

// UpgradeThreshold is the usage percentage at which an upgrade is suggested.
const UpgradeThreshold = 80.0

// Pricing is the list price of a plan.
type Pricing struct {
	Monthly decimal.Decimal `json:"monthly"`
	Annual  decimal.Decimal `json:"annual"`
}

// Limits are the per-plan resource caps. -1 = unlimited.
type Limits struct {
	AICallsPerMonth    int64 `json:"aiCallsPerMonth"`
	PDFExportsPerMonth int64 `json:"pdfExportsPerMonth"`
	Sessions           int64 `json:"sessionLimit"`
	TeamMembers        int64 `json:"teamMembersLimit"`
	StorageMB          int64 `json:"storageLimit"`
}

// Definition represents a pricing tier (immutable value type).
type Definition struct {
	PlanType       string          `json:"planType"`
	DisplayName    string          `json:"displayName"`
	MonthlyCredits int64           `json:"monthlyCredits"`
	Pricing        Pricing         `json:"pricing"`
	Limits         Limits          `json:"limits"`
	Features       []string        `json:"features"`
	OverageRate    decimal.Decimal `json:"overageRate"`
	Disabled       bool            `json:"disabled,omitempty"`
}

// Recommendation is the outcome of an upgrade check (value type).
type Recommendation struct {
	ShouldUpgrade   bool   `json:"shouldUpgrade"`
	RecommendedPlan string `json:"recommendedPlan,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Validate checks a plan before it enters a catalog.
func Validate(p Definition) error {
	if p.PlanType == "" {
		return fmt.Errorf("plan type is required")
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%s: display name is required", p.PlanType)
	}
	if p.MonthlyCredits < 0 && p.MonthlyCredits != Unlimited {
		return fmt.Errorf("%s: monthly credits must be non-negative or %d", p.PlanType, Unlimited)
	}
	if p.Pricing.Monthly.IsNegative() {
		return fmt.Errorf("%s: monthly price must be non-negative", p.PlanType)
	}
	if p.Limits.AICallsPerMonth < Unlimited {
		return fmt.Errorf("%s: ai calls per month must be >= %d", p.PlanType, Unlimited)
	}
	return nil
}

// Normalize fills optional fields with their defaults.
// This is a PURE function.
func Normalize(p Definition) Definition {
	if p.Features == nil {
		p.Features = []string{}
	}
	return p
}

// DefaultAllotment returns the monthly credit allotment a plan grants.
// This is a PURE function.
func DefaultAllotment(p Definition) int64 {
	if p.Limits.AICallsPerMonth == Unlimited || p.MonthlyCredits == Unlimited {
		return Unlimited
	}
	return p.MonthlyCredits
}

// ResolveAllotment picks the allotment for an organization.
// The organization's own usage limit wins; the plan tier is the fallback.
// This is a PURE function.
func ResolveAllotment(usageLimits map[string]int64, p Definition, planFound bool) int64 {
	if v, ok := usageLimits[LimitKeyAICalls]; ok {
		if v < 0 {
			return Unlimited
		}
		return v
	}
	if planFound {
		return DefaultAllotment(p)
	}
	return 0
}

// Find finds a plan by type in a list.
// This is a PURE function.
func Find(plans []Definition, planType string) (Definition, bool) {
	for _, p := range plans {
		if p.PlanType == planType {
			return p, true
		}
	}
	return Definition{}, false
}

// SortByPrice returns a copy of plans ordered by monthly price, cheapest first.
// This is a PURE function.
func SortByPrice(plans []Definition) []Definition {
	out := make([]Definition, len(plans))
	copy(out, plans)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pricing.Monthly.LessThan(out[j].Pricing.Monthly)
	})
	return out
}

// InPriceRange returns plans whose monthly price lies in [min, max], cheapest first.
// This is a PURE function.
func InPriceRange(plans []Definition, min, max decimal.Decimal) []Definition {
	var out []Definition
	for _, p := range SortByPrice(plans) {
		if p.Pricing.Monthly.GreaterThanOrEqual(min) && p.Pricing.Monthly.LessThanOrEqual(max) {
			out = append(out, p)
		}
	}
	return out
}

// Recommend suggests the next plan up once usage reaches UpgradeThreshold
// percent of the current plan's monthly credits.
// This is a PURE function.
func Recommend(plans []Definition, current string, usedCredits int64) Recommendation {
	cur, ok := Find(plans, current)
	if !ok {
		return Recommendation{Reason: "Current plan not found"}
	}
	if cur.MonthlyCredits <= 0 {
		return Recommendation{}
	}

	pct := decimal.NewFromInt(usedCredits).
		Div(decimal.NewFromInt(cur.MonthlyCredits)).
		Mul(decimal.NewFromInt(100))
	if pct.LessThan(decimal.NewFromFloat(UpgradeThreshold)) {
		return Recommendation{}
	}

	var next *Definition
	for i := range plans {
		p := plans[i]
		if p.MonthlyCredits <= cur.MonthlyCredits {
			continue
		}
		if next == nil || p.MonthlyCredits < next.MonthlyCredits {
			next = &p
		}
	}

	if next == nil {
		return Recommendation{
			ShouldUpgrade: true,
			Reason:        "Consider enterprise plan for higher limits",
		}
	}

	return Recommendation{
		ShouldUpgrade:   true,
		RecommendedPlan: next.PlanType,
		Reason: fmt.Sprintf("You're using %s%% of your credits. Upgrade to %s for %d monthly credits.",
			pct.StringFixed(1), next.DisplayName, next.MonthlyCredits),
	}
}
