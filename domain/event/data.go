package event

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Data is the caller-supplied context attached to a tracked event.
type Data map[string]any

// Reserved keys written by the tracker into stored event data.
const (
	KeyCalculatedCredits = "calculatedCredits"
	KeyBaseCredits       = "baseCredits"
	KeyMultipliers       = "multipliers"
	KeyComplexity        = "complexity"
)

// Complexity returns the complexity value if one was provided.
// Zero and non-numeric values count as not provided.
func (d Data) Complexity() (float64, bool) {
	v, ok := d[KeyComplexity]
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f == 0 || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Truthy reports whether key is set to a truthy value.
// Zero numbers, empty strings, false and nil are falsy; anything else is truthy.
func (d Data) Truthy(key string) bool {
	v, ok := d[key]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// Clone returns a shallow copy of d that is never nil.
func (d Data) Clone() Data {
	out := make(Data, len(d)+3)
	for k, v := range d {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
