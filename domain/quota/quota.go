// Package quota provides pure functions for monthly credit enforcement.
// All functions are deterministic with no side effects.
package quota

import (
	"fmt"

	"github.com/nexastudio/creditmeter/domain/usage"
)

// Warning thresholds, as percentages of the allotment.
const (
	NearLimitPct     = 80.0
	CriticalLimitPct = 95.0
	OverLimitPct     = 100.0
)

// Recommended actions attached to limit warnings.
const (
	ActionOverLimit = "Consider upgrading your plan or purchasing additional credits"
	ActionNearLimit = "You are approaching your monthly limit"
)

// WarningLevel indicates how close to or over the allotment an organization is.
type WarningLevel int

const (
	WarningNone        WarningLevel = iota // < 80%
	WarningApproaching                     // >= 80%
	WarningCritical                        // >= 95%
	WarningExceeded                        // >= 100%
)

// CheckResult represents the outcome of a pre-charge check (value type).
type CheckResult struct {
	Allowed   bool
	Used      int64
	Needed    int64
	Limit     int64 // -1 = unlimited
	Remaining usage.Credits
	Reason    string
}

// Check decides whether needed credits fit in the allotment given current usage.
// Remaining reflects the state before the charge.
// This is a PURE function.
func Check(used, needed, allotment int64) CheckResult {
	result := CheckResult{
		Used:      used,
		Needed:    needed,
		Limit:     allotment,
		Remaining: usage.Remaining(allotment, used),
	}

	if allotment < 0 {
		result.Allowed = true
		return result
	}

	if used+needed > allotment {
		result.Reason = ExceededReason(used, needed, allotment)
		return result
	}

	result.Allowed = true
	return result
}

// ExceededReason formats the diagnostic for a rejected charge.
func ExceededReason(used, needed, limit int64) string {
	return fmt.Sprintf("Credit limit exceeded. Used: %d, Needed: %d, Limit: %d", used, needed, limit)
}

// Warning describes how close an organization is to its allotment (value type).
type Warning struct {
	PercentageUsed    float64      `json:"percentageUsed"`
	IsNearLimit       bool         `json:"isNearLimit"`
	IsOverLimit       bool         `json:"isOverLimit"`
	RecommendedAction string       `json:"recommendedAction,omitempty"`
	Level             WarningLevel `json:"level"`
}

// Warn builds the limit warning for used credits. Unlimited plans get none.
// This is a PURE function.
func Warn(used, allotment int64) *Warning {
	if allotment < 0 {
		return nil
	}

	pct := usage.PercentUsed(allotment, used)
	w := &Warning{
		PercentageUsed: pct,
		IsNearLimit:    pct >= NearLimitPct,
		IsOverLimit:    pct >= OverLimitPct,
		Level:          LevelFor(pct),
	}

	switch {
	case w.IsOverLimit:
		w.RecommendedAction = ActionOverLimit
	case w.IsNearLimit:
		w.RecommendedAction = ActionNearLimit
	}

	return w
}

// LevelFor maps a usage percentage to a warning level.
func LevelFor(pct float64) WarningLevel {
	switch {
	case pct >= OverLimitPct:
		return WarningExceeded
	case pct >= CriticalLimitPct:
		return WarningCritical
	case pct >= NearLimitPct:
		return WarningApproaching
	default:
		return WarningNone
	}
}

// String returns the string representation of a warning level.
func (w WarningLevel) String() string {
	switch w {
	case WarningNone:
		return "none"
	case WarningApproaching:
		return "approaching"
	case WarningCritical:
		return "critical"
	case WarningExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name.
func (w WarningLevel) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}
