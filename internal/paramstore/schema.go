package paramstore

import "fmt"

// Kind identifies the value type a parameter schema accepts.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
	KindEnum
)

// ParamSchema describes the validation rule for one parameter key: its
// type, an optional numeric range, and an optional enum of allowed
// string values. Cross-field rules (e.g. floor < ceiling) are validated
// separately in Store.Apply since they need the full delta in view.
type ParamSchema struct {
	Key     string
	Kind    Kind
	Min     float64 // inclusive, numeric kinds only; ignored if Min == Max == 0
	Max     float64
	Enum    []string // KindEnum only
	Default interface{}
}

// Validate checks a single raw value (as decoded from JSON) against the
// schema, and returns the normalized value to store.
func (s ParamSchema) Validate(v interface{}) (interface{}, error) {
	switch s.Kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected number, got %T", s.Key, v)
		}
		if s.Min != 0 || s.Max != 0 {
			if f < s.Min || f > s.Max {
				return nil, fmt.Errorf("%s: %v out of range [%v, %v]", s.Key, f, s.Min, s.Max)
			}
		}
		return f, nil
	case KindInt:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected integer, got %T", s.Key, v)
		}
		if s.Min != 0 || s.Max != 0 {
			if f < s.Min || f > s.Max {
				return nil, fmt.Errorf("%s: %v out of range [%v, %v]", s.Key, f, s.Min, s.Max)
			}
		}
		return f, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected bool, got %T", s.Key, v)
		}
		return b, nil
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", s.Key, v)
		}
		return str, nil
	case KindEnum:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", s.Key, v)
		}
		for _, e := range s.Enum {
			if e == str {
				return str, nil
			}
		}
		return nil, fmt.Errorf("%s: %q not in %v", s.Key, str, s.Enum)
	default:
		return nil, fmt.Errorf("%s: unknown schema kind", s.Key)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// DefaultSchema is the parameter catalog enumerated in spec.md §6's
// configuration surface. Operators may add sector-multiplier and feature
// flag keys at runtime; this catalog covers the pinned, well-known ones.
var DefaultSchema = []ParamSchema{
	{Key: "MIN_SCORE", Kind: KindFloat, Min: 0, Max: 1, Default: 0.25},
	{Key: "MIN_SENT_ABS", Kind: KindFloat, Min: 0, Max: 1, Default: 0.0},
	{Key: "PRICE_CEILING", Kind: KindFloat, Min: 0, Max: 100000, Default: 10.0},
	{Key: "PRICE_FLOOR", Kind: KindFloat, Min: 0, Max: 100000, Default: 0.0},
	{Key: "MAX_ALERTS_PER_CYCLE", Kind: KindInt, Min: 1, Max: 1000, Default: float64(10)},
	{Key: "ALERTS_MIN_INTERVAL_MS", Kind: KindInt, Min: 0, Max: 3600000, Default: float64(1500)},
	{Key: "CYCLE_SECONDS_PREMARKET", Kind: KindInt, Min: 1, Max: 3600, Default: float64(90)},
	{Key: "CYCLE_SECONDS_REGULAR", Kind: KindInt, Min: 1, Max: 3600, Default: float64(60)},
	{Key: "CYCLE_SECONDS_AFTERHOURS", Kind: KindInt, Min: 1, Max: 3600, Default: float64(120)},
	{Key: "CYCLE_SECONDS_CLOSED", Kind: KindInt, Min: 1, Max: 86400, Default: float64(900)},
	{Key: "SEEN_TTL_DAYS", Kind: KindInt, Min: 1, Max: 3650, Default: float64(30)},
	{Key: "MAX_ARTICLE_AGE_MINUTES", Kind: KindInt, Min: 1, Max: 100000, Default: float64(120)},
	{Key: "LLM_MIN_PRESCALE", Kind: KindFloat, Min: 0, Max: 1, Default: 0.15},
	{Key: "LLM_BATCH_SIZE", Kind: KindInt, Min: 1, Max: 1000, Default: float64(5)},
	{Key: "LLM_BATCH_DELAY_MS", Kind: KindInt, Min: 0, Max: 3600000, Default: float64(2000)},
	{Key: "LLM_BATCH_TIMEOUT_MS", Kind: KindInt, Min: 0, Max: 3600000, Default: float64(2000)},
	{Key: "LLM_DAILY_BUDGET_USD", Kind: KindFloat, Min: 0, Max: 100000, Default: 5.0},
	{Key: "LLM_MONTHLY_BUDGET_USD", Kind: KindFloat, Min: 0, Max: 1000000, Default: 100.0},
	{Key: "HEARTBEAT_INTERVAL_MIN", Kind: KindInt, Min: 1, Max: 1440, Default: float64(60)},
	{Key: "STRONG_NEGATIVE_THRESHOLD", Kind: KindFloat, Min: -1, Max: 0, Default: -0.30},
	{Key: "MAX_TICKERS_PER_ITEM", Kind: KindInt, Min: 1, Max: 50, Default: float64(2)},
	{Key: "FEATURE_SECTOR_MULTIPLIERS", Kind: KindBool, Default: false},
	{Key: "FEATURE_SUBFLOOR_OVERRIDE", Kind: KindBool, Default: false},
	{Key: "SUBFLOOR_OVERRIDE_THRESHOLD", Kind: KindFloat, Min: 0, Max: 1, Default: 0.6},
	{Key: "APPLY_MIN_INTERVAL_SECONDS", Kind: KindInt, Min: 0, Max: 86400, Default: float64(60)},
}
