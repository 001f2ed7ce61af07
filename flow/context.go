package flow

import (
	"github.com/shopspring/decimal"
)

// Context is the per-contact mutable variable store consulted by transition
// conditions, action handlers, and message templates. Values must stay
// JSON-serializable: the map round-trips through the jsonb state column.
type Context map[string]any

func (c Context) Set(key string, value any) {
	c[key] = value
}

func (c Context) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

func (c Context) GetString(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return ""
	}
}

func (c Context) GetDecimal(key string) (decimal.Decimal, bool) {
	switch v := c[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	default:
		return decimal.Zero, false
	}
}

func (c Context) GetInt(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (c Context) GetBool(key string) bool {
	v, ok := c[key].(bool)
	return ok && v
}

// GetStringSlice tolerates []any produced by JSON decoding.
func (c Context) GetStringSlice(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
