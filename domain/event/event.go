// Package event provides credit-cost definitions for trackable actions.
// All functions are pure - no side effects.
package event

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ComplexityRange bounds the caller-supplied complexity multiplier.
type ComplexityRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Clamp returns v limited to [Min, Max].
func (r ComplexityRange) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Multipliers describes how the base cost scales with event data.
type Multipliers struct {
	Complexity *ComplexityRange   `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	Features   map[string]float64 `yaml:"features,omitempty" json:"features,omitempty"` // flag -> additive surcharge
}

// FieldKind is the declared type of an event data field.
type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindString FieldKind = "string"
)

// Definition is the cost definition for one event type (immutable value type).
type Definition struct {
	EventType   string               `yaml:"event_type" json:"eventType"`
	BaseCredits float64              `yaml:"base_credits" json:"baseCredits"`
	Description string               `yaml:"description" json:"description"`
	Category    string               `yaml:"category" json:"category"`
	Endpoint    string               `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Multipliers Multipliers          `yaml:"multipliers,omitempty" json:"multipliers"`
	Schema      map[string]FieldKind `yaml:"schema,omitempty" json:"schema,omitempty"`
	Disabled    bool                 `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Applied records which multipliers took effect for one computation.
type Applied struct {
	Complexity *float64
	Features   map[string]float64 // nil when the definition has no feature multipliers
}

// Map renders the applied multipliers for the event audit trail.
func (a Applied) Map() map[string]any {
	m := make(map[string]any, 2)
	if a.Complexity != nil {
		m["complexity"] = *a.Complexity
	}
	if a.Features != nil {
		features := make(map[string]any, len(a.Features))
		for k, v := range a.Features {
			features[k] = v
		}
		m["features"] = features
	}
	return m
}

// ComputeCredits returns the rounded, non-negative credit cost of one occurrence.
// This is a PURE function.
func ComputeCredits(def Definition, data Data) int64 {
	total := decimal.NewFromFloat(def.BaseCredits)

	if r := def.Multipliers.Complexity; r != nil {
		if c, ok := data.Complexity(); ok {
			total = total.Mul(decimal.NewFromFloat(r.Clamp(c)))
		}
	}

	for flag, surcharge := range def.Multipliers.Features {
		if data.Truthy(flag) {
			total = total.Add(decimal.NewFromFloat(surcharge))
		}
	}

	total = total.Round(0)
	if total.IsNegative() {
		return 0
	}
	return total.IntPart()
}

// AppliedMultipliers reports the multipliers ComputeCredits would apply.
// This is a PURE function.
func AppliedMultipliers(def Definition, data Data) Applied {
	var applied Applied

	if r := def.Multipliers.Complexity; r != nil {
		if c, ok := data.Complexity(); ok {
			clamped := r.Clamp(c)
			applied.Complexity = &clamped
		}
	}

	if def.Multipliers.Features != nil {
		applied.Features = make(map[string]float64)
		for flag, surcharge := range def.Multipliers.Features {
			if data.Truthy(flag) {
				applied.Features[flag] = surcharge
			}
		}
	}

	return applied
}

// Validate checks a definition before it enters a catalog.
func Validate(def Definition) error {
	if def.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if def.BaseCredits < 0 || !finite(def.BaseCredits) {
		return fmt.Errorf("%s: base credits must be a finite non-negative number", def.EventType)
	}
	if def.Description == "" {
		return fmt.Errorf("%s: description is required", def.EventType)
	}
	if def.Category == "" {
		return fmt.Errorf("%s: category is required", def.EventType)
	}
	if r := def.Multipliers.Complexity; r != nil {
		if !finite(r.Min) || !finite(r.Max) {
			return fmt.Errorf("%s: complexity bounds must be finite", def.EventType)
		}
		if r.Min > r.Max {
			return fmt.Errorf("%s: complexity min %.2f exceeds max %.2f", def.EventType, r.Min, r.Max)
		}
	}
	for flag, surcharge := range def.Multipliers.Features {
		if !finite(surcharge) {
			return fmt.Errorf("%s: feature %q surcharge must be finite", def.EventType, flag)
		}
	}
	for field, kind := range def.Schema {
		switch kind {
		case KindNumber, KindBool, KindString:
		default:
			return fmt.Errorf("%s: schema field %q has unknown kind %q", def.EventType, field, kind)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateData type-checks the declared schema fields of data.
// Undeclared keys are accepted as-is.
func ValidateData(def Definition, data Data) error {
	for field, kind := range def.Schema {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}
		if !kindMatches(kind, v) {
			return fmt.Errorf("field %q must be a %s", field, kind)
		}
	}
	return nil
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case KindNumber:
		_, ok := toFloat(v)
		_, isString := v.(string)
		return ok && !isString
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindString:
		_, ok := v.(string)
		return ok
	}
	return false
}

// FilterByCategory returns the definitions in category, sorted by event type.
// This is a PURE function.
func FilterByCategory(defs []Definition, category string) []Definition {
	var out []Definition
	for _, d := range defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	SortByType(out)
	return out
}

// SortByType orders definitions by event type in place.
func SortByType(defs []Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].EventType < defs[j].EventType })
}
