package automod

import (
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

func paramStrings(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	return int(paramFloat(params, key, float64(def)))
}

func paramDuration(params map[string]any, key string, def time.Duration) time.Duration {
	s, ok := params[key].(string)
	if !ok || s == "" {
		return def
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
