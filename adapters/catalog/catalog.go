// Package catalog loads event and plan catalogs from YAML documents.
// Built-in defaults are embedded in the binary.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/ports"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

type eventsFile struct {
	Events []event.Definition `yaml:"events"`
}

type plansFile struct {
	Plans []planEntry `yaml:"plans"`
}

// planEntry is the YAML shape of a plan. Prices are plain numbers in YAML.
type planEntry struct {
	PlanType       string       `yaml:"plan_type"`
	DisplayName    string       `yaml:"display_name"`
	MonthlyCredits int64        `yaml:"monthly_credits"`
	Pricing        pricingEntry `yaml:"pricing"`
	Limits         limitsEntry  `yaml:"limits"`
	Features       []string     `yaml:"features"`
	OverageRate    float64      `yaml:"overage_rate"`
	Disabled       bool         `yaml:"disabled"`
}

type pricingEntry struct {
	Monthly float64 `yaml:"monthly"`
	Annual  float64 `yaml:"annual"`
}

type limitsEntry struct {
	AICallsPerMonth    int64 `yaml:"ai_calls_per_month"`
	PDFExportsPerMonth int64 `yaml:"pdf_exports_per_month"`
	Sessions           int64 `yaml:"sessions"`
	TeamMembers        int64 `yaml:"team_members"`
	StorageMB          int64 `yaml:"storage_mb"`
}

func (e planEntry) definition() plan.Definition {
	return plan.Normalize(plan.Definition{
		PlanType:       e.PlanType,
		DisplayName:    e.DisplayName,
		MonthlyCredits: e.MonthlyCredits,
		Pricing: plan.Pricing{
			Monthly: decimal.NewFromFloat(e.Pricing.Monthly),
			Annual:  decimal.NewFromFloat(e.Pricing.Annual),
		},
		Limits: plan.Limits{
			AICallsPerMonth:    e.Limits.AICallsPerMonth,
			PDFExportsPerMonth: e.Limits.PDFExportsPerMonth,
			Sessions:           e.Limits.Sessions,
			TeamMembers:        e.Limits.TeamMembers,
			StorageMB:          e.Limits.StorageMB,
		},
		Features:    e.Features,
		OverageRate: decimal.NewFromFloat(e.OverageRate),
		Disabled:    e.Disabled,
	})
}

// LoadEvents decodes and validates an events document.
func LoadEvents(r io.Reader) ([]event.Definition, error) {
	var f eventsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse events: %w", err)
	}

	seen := make(map[string]bool, len(f.Events))
	var errs []error
	for _, d := range f.Events {
		if seen[d.EventType] {
			errs = append(errs, fmt.Errorf("%s: duplicate event type", d.EventType))
		}
		seen[d.EventType] = true
		if err := event.Validate(d); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Events, nil
}

// LoadPlans decodes and validates a plans document.
func LoadPlans(r io.Reader) ([]plan.Definition, error) {
	var f plansFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse plans: %w", err)
	}

	plans := make([]plan.Definition, 0, len(f.Plans))
	seen := make(map[string]bool, len(f.Plans))
	var errs []error
	for _, e := range f.Plans {
		p := e.definition()
		if seen[p.PlanType] {
			errs = append(errs, fmt.Errorf("%s: duplicate plan type", p.PlanType))
		}
		seen[p.PlanType] = true
		if err := plan.Validate(p); err != nil {
			errs = append(errs, err)
		}
		plans = append(plans, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return plans, nil
}

// LoadEventsFile loads events from path, or the built-in defaults when path is empty.
func LoadEventsFile(path string) ([]event.Definition, error) {
	if path == "" {
		return DefaultEvents()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()
	return LoadEvents(f)
}

// LoadPlansFile loads plans from path, or the built-in defaults when path is empty.
func LoadPlansFile(path string) ([]plan.Definition, error) {
	if path == "" {
		return DefaultPlans()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plans file: %w", err)
	}
	defer f.Close()
	return LoadPlans(f)
}

// DefaultEvents returns the built-in event catalog.
func DefaultEvents() ([]event.Definition, error) {
	f, err := defaultsFS.Open("defaults/events.yaml")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadEvents(f)
}

// DefaultPlans returns the built-in plan catalog.
func DefaultPlans() ([]plan.Definition, error) {
	f, err := defaultsFS.Open("defaults/plans.yaml")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPlans(f)
}

// Seed upserts definitions into the catalog stores and returns how many
// events and plans were written.
func Seed(ctx context.Context, events ports.EventDefinitionStore, plans ports.PlanDefinitionStore, defs []event.Definition, ps []plan.Definition) (int, int, error) {
	for _, d := range defs {
		if err := events.Upsert(ctx, d); err != nil {
			return 0, 0, fmt.Errorf("seed event %s: %w", d.EventType, err)
		}
	}
	for _, p := range ps {
		if err := plans.Upsert(ctx, p); err != nil {
			return len(defs), 0, fmt.Errorf("seed plan %s: %w", p.PlanType, err)
		}
	}
	return len(defs), len(ps), nil
}
