package monitoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one time-ordered telemetry sample.
type Row struct {
	Time   time.Time
	Values map[string]any
}

// Float coerces a telemetry or registry value to float64.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Count coerces a registry counter value to a non-negative integer.
// A nil or empty value is an unknown counter and reads as zero.
func Count(value any) (int64, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return 0, nil
	}
	switch v := value.(type) {
	case int64:
		return nonNegative(v)
	case int:
		return nonNegative(int64(v))
	case int32:
		return nonNegative(int64(v))
	}
	f, ok := Float(value)
	if !ok {
		return 0, fmt.Errorf("monitoring: counter value %v is not numeric", value)
	}
	if f < 0 {
		return 0, ErrNegativeCount
	}
	// 2^63 is exactly representable; anything at or above it overflows int64.
	if math.IsInf(f, 0) || f >= math.Exp2(63) || f != math.Trunc(f) {
		return 0, fmt.Errorf("monitoring: counter value %v is not a whole count", value)
	}
	return int64(f), nil
}

func nonNegative(v int64) (int64, error) {
	if v < 0 {
		return 0, ErrNegativeCount
	}
	return v, nil
}
