// Package cron implements the C9 cron scheduler: a hand-rolled 5-field
// cron matcher (minute/hour/dom/month/dow), a next-run walk, and a
// minute-tick loop that fires job actions through the action executor.
package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// maxListSize bounds how many values a single list/range field may
// expand to. A range like "0-99999" is rejected outright rather than
// materialized, defending against accidental or malicious blowup.
const maxListSize = 100

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// field is a parsed cron field: either "any" (the `*` wildcard) or a
// fixed set of matching integer values.
type field struct {
	any    bool
	values map[int]struct{}
}

func (f field) matches(v int) bool {
	if f.any {
		return true
	}
	_, ok := f.values[v]
	return ok
}

// Spec is a parsed 5-field cron expression.
type Spec struct {
	raw        string
	minute     field
	hour       field
	dayOfMonth field
	month      field
	dayOfWeek  field
}

// Parse parses a 5-field cron expression (minute hour dom month dow).
// Named months (JAN..DEC) and days of week (SUN..SAT) are accepted
// case-insensitively. A list or range expanding to more than 100
// values is rejected rather than expanded.
func Parse(expr string) (Spec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Spec{}, fmt.Errorf("cron: expected 5 fields, got %d: %q", len(fields), expr)
	}

	minute, err := parseField(fields[0], 0, 59, nil)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: minute: %w", err)
	}
	hour, err := parseField(fields[1], 0, 23, nil)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: hour: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31, nil)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: day-of-month: %w", err)
	}
	month, err := parseField(fields[3], 1, 12, monthNames)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: month: %w", err)
	}
	dow, err := parseField(fields[4], 0, 6, dowNames)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: day-of-week: %w", err)
	}

	return Spec{
		raw: expr, minute: minute, hour: hour,
		dayOfMonth: dom, month: month, dayOfWeek: dow,
	}, nil
}

func (s Spec) String() string { return s.raw }

// parseField parses one comma-separated cron field: `*`, an integer, a
// range `n-m`, a stepped wildcard `*/n`, a stepped range `n/m`, or any
// comma-joined combination of those. names, if non-nil, maps
// case-insensitive symbolic names (JAN, SUN, ...) to their integer value.
func parseField(raw string, min, max int, names map[string]int) (field, error) {
	if raw == "*" {
		return field{any: true}, nil
	}

	values := make(map[int]struct{})
	for _, part := range strings.Split(raw, ",") {
		if err := expandPart(part, min, max, names, values); err != nil {
			return field{}, err
		}
	}
	if len(values) == 0 {
		return field{}, fmt.Errorf("empty field %q", raw)
	}
	return field{values: values}, nil
}

func expandPart(part string, min, max int, names map[string]int, out map[int]struct{}) error {
	step := 1
	base := part
	if idx := strings.Index(part, "/"); idx >= 0 {
		base = part[:idx]
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = n
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = min, max
	case strings.Contains(base, "-"):
		bounds := strings.SplitN(base, "-", 2)
		var err error
		lo, err = resolveValue(bounds[0], names)
		if err != nil {
			return err
		}
		hi, err = resolveValue(bounds[1], names)
		if err != nil {
			return err
		}
	default:
		v, err := resolveValue(base, names)
		if err != nil {
			return err
		}
		lo, hi = v, v
	}

	if lo < min || hi > max || lo > hi {
		return fmt.Errorf("value out of range in %q (want %d-%d)", part, min, max)
	}

	size := (hi-lo)/step + 1
	if size > maxListSize {
		return fmt.Errorf("range %q expands to %d values, exceeds limit of %d", part, size, maxListSize)
	}

	for v := lo; v <= hi; v += step {
		out[v] = struct{}{}
	}
	return nil
}

func resolveValue(s string, names map[string]int) (int, error) {
	if names != nil {
		if v, ok := names[strings.ToLower(s)]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}
