package maintenance

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TriggerKind names the comparison a trigger performs.
type TriggerKind string

const (
	TriggerNumeric TriggerKind = "numeric"
	TriggerString  TriggerKind = "string"
	TriggerTime    TriggerKind = "time"
	TriggerBoolean TriggerKind = "boolean"
)

// Trigger is the condition of a PM configuration. Matches casts value to the
// trigger type and compares for exact equality.
type Trigger interface {
	Kind() TriggerKind
	Matches(value any) (bool, error)
	String() string
}

// NumericTrigger compares as float64.
type NumericTrigger struct{ Value float64 }

func (t NumericTrigger) Kind() TriggerKind { return TriggerNumeric }

func (t NumericTrigger) Matches(value any) (bool, error) {
	if value == nil {
		return false, ErrNoValue
	}
	v, err := castFloat(value)
	if err != nil {
		return false, err
	}
	return v == t.Value, nil
}

func (t NumericTrigger) String() string { return formatFloat(t.Value) }

// StringTrigger compares case-sensitive strings.
type StringTrigger struct{ Value string }

func (t StringTrigger) Kind() TriggerKind { return TriggerString }

func (t StringTrigger) Matches(value any) (bool, error) {
	if value == nil {
		return false, ErrNoValue
	}
	return castString(value) == t.Value, nil
}

func (t StringTrigger) String() string { return t.Value }

// TimeTrigger compares the textual form of a time value.
type TimeTrigger struct{ Value string }

func (t TimeTrigger) Kind() TriggerKind { return TriggerTime }

func (t TimeTrigger) Matches(value any) (bool, error) {
	if value == nil {
		return false, ErrNoValue
	}
	return castString(value) == t.Value, nil
}

func (t TimeTrigger) String() string { return t.Value }

// BooleanTrigger compares truthiness: the lower-cased text "true" or "1" is true.
type BooleanTrigger struct{ Value bool }

func (t BooleanTrigger) Kind() TriggerKind { return TriggerBoolean }

func (t BooleanTrigger) Matches(value any) (bool, error) {
	if value == nil {
		return false, ErrNoValue
	}
	return castBool(value) == t.Value, nil
}

func (t BooleanTrigger) String() string { return strconv.FormatBool(t.Value) }

// malformedTrigger keeps the kind of a trigger whose configured value could not
// be cast. It never matches.
type malformedTrigger struct {
	kind TriggerKind
	raw  any
}

func (t malformedTrigger) Kind() TriggerKind { return t.kind }

func (t malformedTrigger) Matches(value any) (bool, error) {
	if value == nil {
		return false, ErrNoValue
	}
	return false, fmt.Errorf("%w: configured %s trigger %v", ErrCast, t.kind, t.raw)
}

func (t malformedTrigger) String() string { return fmt.Sprint(t.raw) }

// TriggerFields holds the raw trigger attributes of a registry card.
// A nil field is unset.
type TriggerFields struct {
	Numeric any
	String  any
	Time    any
	Boolean any
}

// DecodeTrigger builds the trigger from the first set field, in the order
// numeric, string, time, boolean. It returns nil when no field is set.
func DecodeTrigger(fields TriggerFields) Trigger {
	switch {
	case fields.Numeric != nil:
		v, err := castFloat(fields.Numeric)
		if err != nil {
			return malformedTrigger{kind: TriggerNumeric, raw: fields.Numeric}
		}
		return NumericTrigger{Value: v}
	case fields.String != nil:
		return StringTrigger{Value: castString(fields.String)}
	case fields.Time != nil:
		return TimeTrigger{Value: castString(fields.Time)}
	case fields.Boolean != nil:
		return BooleanTrigger{Value: castBool(fields.Boolean)}
	default:
		return nil
	}
}

func castFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%w: NaN", ErrCast)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrCast, v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrCast, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrCast, value)
	}
}

func castString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(value)
	}
}

func castBool(value any) bool {
	switch strings.ToLower(strings.TrimSpace(castString(value))) {
	case "true", "1":
		return true
	default:
		return false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
