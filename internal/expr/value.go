// Package expr implements the sandboxed, side-effect-free expression
// language used throughout the spec: member access, arithmetic,
// comparison, boolean and ternary operators, array/object literals,
// the fixed transform table, and the `${…}` interpolation form.
//
// Values flowing through the evaluator are plain Go `any`, restricted
// by convention to the sum type described in the spec:
// nil | bool | int64 | float64 | string | []any | map[string]any.
// Helpers in this file normalize between those representations instead
// of introducing a wrapper type, matching how the rest of the runtime
// (and the teacher repo's goja-based nodes) pass data around as plain
// maps.
package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Truthy reports whether v is a truthy value: everything except
// nil, false, 0, 0.0, "", and empty arrays/objects.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// ToNumber coerces v to a float64, returning 0 for non-numeric values
// that cannot be parsed.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// IsInt reports whether v is numeric with no fractional part, used to
// decide whether number formatting should show a decimal point.
func IsInt(v any) bool {
	switch x := v.(type) {
	case int, int64:
		return true
	case float64:
		return x == math.Trunc(x)
	default:
		return false
	}
}

// ToString stringifies v for interpolation / the `string` transform.
// Objects and arrays are rendered as compact JSON.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any, map[string]any:
		s, err := ToJSON(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return s
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ToArray returns v as a []any when it is one, and nil for nil and for
// every non-array value (a bare scalar is not wrapped).
func ToArray(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return nil
	}
}

// ToObject coerces v to a map[string]any, returning nil if v is not
// a map.
func ToObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Size returns the "size" of a value: string length (runes), array
// length, or object key count. Non-sizeable values return 0.
func Size(v any) int {
	switch x := v.(type) {
	case string:
		return len([]rune(x))
	case []any:
		return len(x)
	case map[string]any:
		return len(x)
	default:
		return 0
	}
}

// Equal implements loose-but-typed equality for `==`/`!=`: numbers
// compare numerically regardless of int/float representation, other
// kinds compare by Go equality after normalizing numeric types.
func Equal(a, b any) bool {
	an, aIsNum := asNumber(a)
	bn, bIsNum := asNumber(b)
	if aIsNum && bIsNum {
		return an == bn
	}
	return fmt.Sprintf("%T%v", a, a) == fmt.Sprintf("%T%v", b, b)
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Compare orders a and b for `<`,`<=`,`>`,`>=`. Numbers compare
// numerically; strings compare lexically; any other pairing is
// incomparable and returns ok=false.
func Compare(a, b any) (cmp int, ok bool) {
	an, aIsNum := asNumber(a)
	bn, bIsNum := asNumber(b)
	if aIsNum && bIsNum {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// ToJSON marshals v to a JSON string. Cyclic graphs are detected
// during traversal and rendered as the literal marker "[Circular]"
// rather than causing infinite recursion. Big integers (*big.Int) are
// rendered as decimal strings.
func ToJSON(v any) (string, error) {
	seen := make(map[uintptr]bool)
	clean := scrub(v, seen)
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("expr: json stringify: %w", err)
	}
	return string(b), nil
}

const circularMarker = "[Circular]"

// scrub walks v, replacing any map/slice that is an ancestor of itself
// (a true Go reference cycle) with the literal marker string, and
// sorting object keys for deterministic output.
func scrub(v any, seen map[uintptr]bool) any {
	switch x := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(x).Pointer()
		if seen[ptr] {
			return circularMarker
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(x))
		for _, k := range keys {
			out[k] = scrub(x[k], seen)
		}
		return out
	case []any:
		rv := reflect.ValueOf(x)
		if rv.Len() > 0 {
			ptr := rv.Pointer()
			if seen[ptr] {
				return circularMarker
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = scrub(e, seen)
		}
		return out
	case *big.Int:
		return x.String()
	default:
		return x
	}
}
