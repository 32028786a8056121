package store

import (
	"fmt"
	"strconv"
)

type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpIn  Op = "in"
)

// Condition filters documents on a top-level body field.
type Condition struct {
	Field  string
	Op     Op
	Values []any
}

func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Values: []any{value}}
}

func Gte(field string, value float64) Condition {
	return Condition{Field: field, Op: OpGte, Values: []any{value}}
}

func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// Match reports whether a decoded JSON body satisfies the condition. Values compare by their
// text form, the same way a JSONB ->> projection does.
func (c Condition) Match(body map[string]any) bool {
	raw, ok := body[c.Field]
	if !ok || raw == nil {
		return false
	}

	switch c.Op {
	case OpEq:
		return len(c.Values) == 1 && Text(raw) == Text(c.Values[0])
	case OpIn:
		got := Text(raw)
		for _, v := range c.Values {
			if got == Text(v) {
				return true
			}
		}
		return false
	case OpGte:
		if len(c.Values) != 1 {
			return false
		}
		got, err := strconv.ParseFloat(Text(raw), 64)
		if err != nil {
			return false
		}
		want, err := strconv.ParseFloat(Text(c.Values[0]), 64)
		if err != nil {
			return false
		}
		return got >= want
	default:
		return false
	}
}

// Text renders a scalar the way it appears as JSON text without quotes.
func Text(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
