package plan_test

import (
	"testing"

	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/shopspring/decimal"
)

func testPlans() []plan.Definition {
	return []plan.Definition{
		{
			PlanType: "professional", DisplayName: "Professional Plan", MonthlyCredits: 5000,
			Pricing: plan.Pricing{Monthly: decimal.NewFromInt(49)},
			Limits:  plan.Limits{AICallsPerMonth: 2000},
		},
		{
			PlanType: "free", DisplayName: "Free Plan", MonthlyCredits: 100,
			Pricing: plan.Pricing{Monthly: decimal.Zero},
			Limits:  plan.Limits{AICallsPerMonth: 50},
		},
		{
			PlanType: "enterprise", DisplayName: "Enterprise Plan", MonthlyCredits: 15000,
			Pricing: plan.Pricing{Monthly: decimal.NewFromInt(99)},
			Limits:  plan.Limits{AICallsPerMonth: -1},
		},
		{
			PlanType: "starter", DisplayName: "Starter Plan", MonthlyCredits: 1000,
			Pricing: plan.Pricing{Monthly: decimal.NewFromInt(19)},
			Limits:  plan.Limits{AICallsPerMonth: 500},
		},
	}
}

func TestResolveAllotment(t *testing.T) {
	plans := testPlans()
	free, _ := plan.Find(plans, "free")
	enterprise, _ := plan.Find(plans, "enterprise")

	tests := []struct {
		name   string
		limits map[string]int64
		plan   plan.Definition
		found  bool
		want   int64
	}{
		{"org limit wins", map[string]int64{"ai_calls_per_month": 500}, free, true, 500},
		{"org unlimited", map[string]int64{"ai_calls_per_month": -1}, free, true, plan.Unlimited},
		{"org zero", map[string]int64{"ai_calls_per_month": 0}, enterprise, true, 0},
		{"plan fallback", nil, free, true, 100},
		{"plan fallback unlimited", map[string]int64{"other": 3}, enterprise, true, plan.Unlimited},
		{"nothing known", nil, plan.Definition{}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plan.ResolveAllotment(tt.limits, tt.plan, tt.found)
			if got != tt.want {
				t.Errorf("ResolveAllotment() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSortByPrice(t *testing.T) {
	plans := testPlans()
	sorted := plan.SortByPrice(plans)

	want := []string{"free", "starter", "professional", "enterprise"}
	for i, w := range want {
		if sorted[i].PlanType != w {
			t.Errorf("sorted[%d] = %s, want %s", i, sorted[i].PlanType, w)
		}
	}
	if plans[0].PlanType != "professional" {
		t.Error("SortByPrice must not reorder its input")
	}
}

func TestInPriceRange(t *testing.T) {
	got := plan.InPriceRange(testPlans(), decimal.NewFromInt(10), decimal.NewFromInt(50))
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].PlanType != "starter" || got[1].PlanType != "professional" {
		t.Errorf("got [%s %s], want [starter professional]", got[0].PlanType, got[1].PlanType)
	}
}

func TestRecommend(t *testing.T) {
	plans := testPlans()

	tests := []struct {
		name       string
		current    string
		used       int64
		wantUp     bool
		wantPlan   string
		wantReason string
	}{
		{"below threshold", "free", 79, false, "", ""},
		{
			"at threshold", "free", 80, true, "starter",
			"You're using 80.0% of your credits. Upgrade to Starter Plan for 1000 monthly credits.",
		},
		{
			"over limit", "starter", 1234, true, "professional",
			"You're using 123.4% of your credits. Upgrade to Professional Plan for 5000 monthly credits.",
		},
		{"top plan", "enterprise", 14000, true, "", "Consider enterprise plan for higher limits"},
		{"unknown plan", "gold", 10, false, "", "Current plan not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plan.Recommend(plans, tt.current, tt.used)
			if got.ShouldUpgrade != tt.wantUp {
				t.Errorf("ShouldUpgrade = %v, want %v", got.ShouldUpgrade, tt.wantUp)
			}
			if got.RecommendedPlan != tt.wantPlan {
				t.Errorf("RecommendedPlan = %q, want %q", got.RecommendedPlan, tt.wantPlan)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := plan.Definition{PlanType: "free", DisplayName: "Free Plan", MonthlyCredits: 100}
	if err := plan.Validate(valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []plan.Definition{
		{DisplayName: "x"},
		{PlanType: "x"},
		{PlanType: "x", DisplayName: "x", MonthlyCredits: -2},
		{PlanType: "x", DisplayName: "x", Pricing: plan.Pricing{Monthly: decimal.NewFromInt(-1)}},
		{PlanType: "x", DisplayName: "x", Limits: plan.Limits{AICallsPerMonth: -5}},
	}
	for i, p := range bad {
		if err := plan.Validate(p); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestNormalize(t *testing.T) {
	p := plan.Normalize(plan.Definition{PlanType: "free"})
	if p.Features == nil {
		t.Error("Features should default to empty slice")
	}
}
