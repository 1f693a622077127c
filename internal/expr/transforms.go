package expr

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// applyTransform dispatches the pipe form `base | name:args…` (and the
// bare-call form `name(base, args…)`) to the fixed transform table.
// Unknown transform names return an error; there is no way to register
// a transform at runtime, which keeps the evaluator's safety boundary
// total and auditable.
//
// pick/shuffle are the two transforms exempted from the evaluator
// purity invariant: by definition they draw from math/rand, so two
// calls with an identical context can legitimately differ.
func applyTransform(name string, base any, args []any, clock Clock) (any, error) {
	switch name {
	// ── String ──
	case "lower":
		return strings.ToLower(ToString(base)), nil
	case "upper":
		return strings.ToUpper(ToString(base)), nil
	case "capitalize":
		s := ToString(base)
		if s == "" {
			return s, nil
		}
		r := []rune(s)
		return strings.ToUpper(string(r[0])) + string(r[1:]), nil
	case "trim":
		return strings.TrimSpace(ToString(base)), nil
	case "truncate":
		s := ToString(base)
		n := argInt(args, 0, len([]rune(s)))
		suffix := argString(args, 1, "...")
		r := []rune(s)
		if len(r) <= n {
			return s, nil
		}
		if n < 0 {
			n = 0
		}
		return string(r[:n]) + suffix, nil
	case "split":
		d := argString(args, 0, ",")
		parts := strings.Split(ToString(base), d)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "replace":
		search := argString(args, 0, "")
		repl := argString(args, 1, "")
		return safeReplace(ToString(base), search, repl), nil
	case "padStart":
		return pad(ToString(base), argInt(args, 0, 0), argString(args, 1, " "), true), nil
	case "padEnd":
		return pad(ToString(base), argInt(args, 0, 0), argString(args, 1, " "), false), nil
	case "includes", "contains":
		return strings.Contains(ToString(base), argString(args, 0, "")), nil
	case "startsWith":
		return strings.HasPrefix(ToString(base), argString(args, 0, "")), nil
	case "endsWith":
		return strings.HasSuffix(ToString(base), argString(args, 0, "")), nil

	// ── Array ──
	case "join":
		arr := ToArray(base)
		d := argString(args, 0, ", ")
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = ToString(v)
		}
		return strings.Join(parts, d), nil
	case "first":
		arr := ToArray(base)
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	case "last":
		arr := ToArray(base)
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[len(arr)-1], nil
	case "nth":
		arr := ToArray(base)
		n := argInt(args, 0, 0)
		if n < 0 {
			n += len(arr)
		}
		if n < 0 || n >= len(arr) {
			return nil, nil
		}
		return arr[n], nil
	case "slice":
		arr := ToArray(base)
		a := clampIdx(argInt(args, 0, 0), len(arr))
		b := len(arr)
		if len(args) > 1 {
			b = clampIdx(argInt(args, 1, len(arr)), len(arr))
		}
		if a > b {
			return []any{}, nil
		}
		out := make([]any, b-a)
		copy(out, arr[a:b])
		return out, nil
	case "reverse":
		arr := ToArray(base)
		out := make([]any, len(arr))
		for i, v := range arr {
			out[len(arr)-1-i] = v
		}
		return out, nil
	case "sort":
		arr := append([]any(nil), ToArray(base)...)
		key := argString(args, 0, "")
		sort.SliceStable(arr, func(i, j int) bool {
			vi, vj := arr[i], arr[j]
			if key != "" {
				vi = memberAccess(vi, key)
				vj = memberAccess(vj, key)
			}
			if cmp, ok := Compare(vi, vj); ok {
				return cmp < 0
			}
			return false
		})
		return arr, nil
	case "unique":
		arr := ToArray(base)
		seen := make(map[string]bool, len(arr))
		out := make([]any, 0, len(arr))
		for _, v := range arr {
			k := ToString(v) + fmt.Sprintf("|%T", v)
			if !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
		return out, nil
	case "flatten":
		var out []any
		for _, v := range ToArray(base) {
			if inner, ok := v.([]any); ok {
				out = append(out, inner...)
			} else {
				out = append(out, v)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case "filter":
		key := argString(args, 0, "")
		val := argAny(args, 1)
		var out []any
		for _, v := range ToArray(base) {
			field := v
			if key != "" {
				field = memberAccess(v, key)
			}
			if Equal(field, val) {
				out = append(out, v)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case "map":
		key := argString(args, 0, "")
		arr := ToArray(base)
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = memberAccess(v, key)
		}
		return out, nil
	case "pluck":
		key := argString(args, 0, "")
		arr := ToArray(base)
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = memberAccess(v, key)
		}
		return out, nil
	case "pick":
		arr := ToArray(base)
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[rand.Intn(len(arr))], nil //nolint:gosec // non-cryptographic selection
	case "shuffle":
		arr := append([]any(nil), ToArray(base)...)
		rand.Shuffle(len(arr), func(i, j int) { arr[i], arr[j] = arr[j], arr[i] }) //nolint:gosec
		return arr, nil

	// ── Number ──
	case "round":
		d := argInt(args, 0, 0)
		m := math.Pow(10, float64(d))
		return math.Round(ToNumber(base)*m) / m, nil
	case "floor":
		return math.Floor(ToNumber(base)), nil
	case "ceil":
		return math.Ceil(ToNumber(base)), nil
	case "abs":
		return math.Abs(ToNumber(base)), nil
	case "format":
		return formatNumber(ToNumber(base)), nil
	case "ordinal":
		return ordinal(int64(ToNumber(base))), nil

	// ── Object ──
	case "keys":
		obj := ToObject(base)
		out := make([]any, 0, len(obj))
		names := sortedKeys(obj)
		for _, k := range names {
			out = append(out, k)
		}
		return out, nil
	case "values":
		obj := ToObject(base)
		out := make([]any, 0, len(obj))
		for _, k := range sortedKeys(obj) {
			out = append(out, obj[k])
		}
		return out, nil
	case "entries":
		obj := ToObject(base)
		out := make([]any, 0, len(obj))
		for _, k := range sortedKeys(obj) {
			out = append(out, []any{k, obj[k]})
		}
		return out, nil
	case "get":
		path := argString(args, 0, "")
		def := argAny(args, 1)
		v := getPath(base, path)
		if v == nil {
			return def, nil
		}
		return v, nil

	// ── Type coercion ──
	case "string":
		return ToString(base), nil
	case "number", "float":
		return ToNumber(base), nil
	case "int":
		return float64(int64(ToNumber(base))), nil
	case "boolean":
		return Truthy(base), nil
	case "json":
		s, err := ToJSON(base)
		if err != nil {
			return nil, err
		}
		return s, nil

	// ── Utility ──
	case "default":
		if base == nil {
			return argAny(args, 0), nil
		}
		return base, nil
	case "length", "size":
		return float64(Size(base)), nil

	// ── Date ──
	case "timestamp":
		format := argString(args, 0, "")
		return platformTimestamp(base, format, clock), nil
	case "duration":
		return humanizeDuration(int64(ToNumber(base))), nil

	// ── Platform ──
	case "mention":
		return mentionFor(ToString(base), argString(args, 0, "user")), nil
	case "pluralize":
		count := ToNumber(base)
		singular := argString(args, 0, "")
		plural := argString(args, 1, singular+"s")
		if count == 1 {
			return singular, nil
		}
		return plural, nil
	}
	return nil, fmt.Errorf("expr: unknown transform %q", name)
}

// callBuiltin handles the bare-call form of a transform, e.g.
// `default(maybeNull, "fallback")`, treating the first argument as the
// pipe base.
func callBuiltin(name string, args []any, clock Clock) (any, error) {
	if len(args) == 0 {
		return applyTransform(name, nil, nil, clock)
	}
	return applyTransform(name, args[0], args[1:], clock)
}

// ─── arg helpers ───

func argAny(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argInt(args []any, i int, def int) int {
	if i >= len(args) {
		return def
	}
	return int(ToNumber(args[i]))
}

func argString(args []any, i int, def string) string {
	if i >= len(args) {
		return def
	}
	if args[i] == nil {
		return def
	}
	return ToString(args[i])
}

func clampIdx(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func pad(s string, n int, ch string, start bool) string {
	if ch == "" {
		ch = " "
	}
	r := []rune(s)
	need := n - len(r)
	if need <= 0 {
		return s
	}
	var sb strings.Builder
	for sb.Len() < need {
		sb.WriteString(ch)
	}
	padStr := string([]rune(sb.String())[:need])
	if start {
		return padStr + s
	}
	return s + padStr
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func getPath(base any, path string) any {
	cur := base
	if path == "" {
		return cur
	}
	for _, part := range strings.Split(path, ".") {
		cur = memberAccess(cur, part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func formatNumber(f float64) string {
	// Group thousands with "," for the default en-US locale; other
	// locales are not modeled (the spec only requires a default).
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := f - math.Trunc(f)

	s := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(c)
	}
	out := grouped.String()
	if frac > 0 {
		out += strings.TrimPrefix(strconv.FormatFloat(frac, 'f', 2, 64), "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

func ordinal(n int64) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		suffix = "th"
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.FormatInt(n, 10) + suffix
}

func mentionFor(id, kind string) string {
	switch kind {
	case "role":
		return "<@&" + id + ">"
	case "channel":
		return "<#" + id + ">"
	case "emoji":
		return "<:" + id + ">"
	default:
		return "<@" + id + ">"
	}
}
