package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Args are the keyword arguments of a call after matching against the tool's declared parameters.
// Values come straight from decoded JSON, so numbers arrive as float64.
type Args map[string]any

// Keys returns the argument names, sorted.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns the argument as a string, or def when absent.
func (a Args) String(name, def string) string {
	v, ok := a[name]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the argument as an int. JSON numbers and numeric strings are
// accepted; fractional values are rejected.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", name, t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer, got %q", name, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", name, v)
	}
}

// Bool returns the argument as a bool, or def when absent.
func (a Args) Bool(name string, def bool) bool {
	v, ok := a[name]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case float64:
		return t != 0
	default:
		return def
	}
}
