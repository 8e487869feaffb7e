package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Evaluate reports whether every clause holds against data.
func (p Predicate) Evaluate(data map[string]any) bool {
	if p.Never {
		return false
	}
	for _, c := range p.Clauses {
		if !c.Evaluate(data) {
			return false
		}
	}
	return true
}

func (c Clause) Evaluate(data map[string]any) bool {
	actual, found := Lookup(data, c.Field)

	switch c.Operator {
	case OpTruthy:
		return found && Truthy(actual)
	case OpFalsy:
		return !found || !Truthy(actual)
	case OpEq:
		return equal(actual, c.Value)
	case OpNe:
		return !equal(actual, c.Value)
	}

	if !found {
		return false
	}
	cmp, ok := compare(actual, c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

// Lookup resolves a dotted path against nested objects.
func Lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Truthy follows the usual loose rules: nil, false, zero, "", "false" and
// empty collections are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s != "" && s != "false" && s != "0"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func equal(actual, expected any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if eb, ok := expected.(bool); ok {
		if ab, ok := actual.(bool); ok {
			return ab == eb
		}
		if as, ok := actual.(string); ok {
			return strings.EqualFold(as, strconv.FormatBool(eb))
		}
		return false
	}
	if cmp, ok := compare(actual, expected); ok {
		return cmp == 0
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// compare orders numbers numerically and strings lexically.
func compare(actual, expected any) (int, bool) {
	ef, eNum := toFloat(expected)
	af, aNum := toFloat(actual)
	if eNum && !aNum {
		if s, ok := actual.(string); ok {
			af, aNum = parseNumber(s)
		}
	}
	if eNum && aNum {
		switch {
		case af < ef:
			return -1, true
		case af > ef:
			return 1, true
		default:
			return 0, true
		}
	}

	as, aStr := actual.(string)
	es, eStr := expected.(string)
	if aStr && eStr {
		return strings.Compare(as, es), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}
