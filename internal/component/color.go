package component

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rakunlabs/flowbot/internal/expr"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// standardColors are the named colors any color field recognizes
// regardless of a theme, case-insensitively.
var standardColors = map[string]int{
	"red":     0xED4245,
	"green":   0x57F287,
	"blue":    0x3498DB,
	"blurple": 0x5865F2,
	"gold":    0xF1C40F,
	"yellow":  0xF1C40F,
	"orange":  0xE67E22,
	"purple":  0x9B59B6,
	"black":   0x000000,
	"white":   0xFFFFFF,
	"grey":    0x95A5A6,
	"gray":    0x95A5A6,
}

// ResolveColor applies the ordered color rules: integer literal;
// {r,g,b} map; "#RRGGBB"; named theme color; named standard color;
// an expression that itself evaluates to "#RRGGBB"; default black.
func ResolveColor(raw any, vars map[string]any, theme map[string]int) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case map[string]any:
		if packed, ok := packRGB(v); ok {
			return packed
		}
	case string:
		if hexColorPattern.MatchString(v) {
			return parseHex(v)
		}
		lower := strings.ToLower(v)
		if theme != nil {
			if c, ok := theme[lower]; ok {
				return c
			}
		}
		if c, ok := standardColors[lower]; ok {
			return c
		}
		if interpolated, err := expr.Interpolate(v, vars); err == nil && hexColorPattern.MatchString(interpolated) {
			return parseHex(interpolated)
		}
	}
	return 0x000000
}

func packRGB(m map[string]any) (int, bool) {
	r, okR := numberField(m, "r")
	g, okG := numberField(m, "g")
	b, okB := numberField(m, "b")
	if !okR || !okG || !okB {
		return 0, false
	}
	return (r << 16) | (g << 8) | b, true
}

func numberField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func parseHex(s string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 64)
	if err != nil {
		return 0
	}
	return int(v)
}
