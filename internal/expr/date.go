package expr

import "fmt"

// platformTimestampCodes maps the spec's named formats to the
// single-letter platform timestamp markers.
var platformTimestampCodes = map[string]string{
	"short_time":     "t",
	"long_time":      "T",
	"short_date":     "d",
	"long_date":      "D",
	"short_datetime": "f",
	"long_datetime":  "F",
	"relative":       "R",
}

// platformTimestamp implements the `timestamp(format?)` transform. base
// is coerced to unix seconds (falling back to the evaluator's clock
// when nil); with no format it returns the epoch seconds, otherwise a
// `<t:EPOCH:CODE>` platform timestamp marker.
func platformTimestamp(base any, format string, clock Clock) any {
	var epoch int64
	if base == nil {
		epoch = clock.Now()
	} else {
		epoch = int64(ToNumber(base))
	}
	if format == "" {
		return float64(epoch)
	}
	code, ok := platformTimestampCodes[format]
	if !ok {
		code = "f"
	}
	return fmt.Sprintf("<t:%d:%s>", epoch, code)
}

// humanizeDuration implements the `duration(ms)` transform: renders
// the largest non-zero unit among days/hours/minutes/seconds followed
// by the next smaller unit, which may be zero ("1d 0h"); under a
// minute only seconds are shown.
func humanizeDuration(ms int64) string {
	if ms < 0 {
		ms = -ms
	}
	totalSeconds := ms / 1000

	days := totalSeconds / 86400
	hours := (totalSeconds % 86400) / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	switch {
	case days >= 1:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours >= 1:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes >= 1:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
