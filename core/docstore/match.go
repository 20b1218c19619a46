package docstore

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Match evaluates the filter against a document in process.
// Numbers compare numerically, strings lexicographically (ISO-8601 dates sort correctly),
// values of different kinds are never ordered and only match != and not-in.
func Match(doc Document, f Filter) bool {
	v, ok := doc.Get(f.Field)
	switch f.Op {
	case OpEqual:
		return ok && equal(v, f.Value)
	case OpNotEqual:
		return !ok || !equal(v, f.Value)
	case OpIn:
		if !ok {
			return false
		}
		for _, item := range toSlice(f.Value) {
			if equal(v, item) {
				return true
			}
		}
		return false
	case OpNotIn:
		if !ok {
			return true
		}
		for _, item := range toSlice(f.Value) {
			if equal(v, item) {
				return false
			}
		}
		return true
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		if !ok {
			return false
		}
		c, comparable := compare(v, f.Value)
		if !comparable {
			return false
		}
		switch f.Op {
		case OpLess:
			return c < 0
		case OpLessEqual:
			return c <= 0
		case OpGreater:
			return c > 0
		default:
			return c >= 0
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare returns -1, 0 or 1 when a and b are both numbers or both strings.
func compare(a, b interface{}) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toSlice(v interface{}) []interface{} {
	switch vv := v.(type) {
	case []interface{}:
		return vv
	case []string:
		out := make([]interface{}, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// ToFloat converts numeric document values (including JSON numbers) to float64.
// Strings are not numbers here.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
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
