// Package interval implements the small subset of ISO 8601 durations used for
// billing periods, plus the repeating-interval expressions sent with
// recurring outgoing-payment grants.
package interval

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// DefaultBilling is used when a recurring service has no billing period.
const DefaultBilling = "PT1H"

var durationPattern = regexp.MustCompile(`(?i)^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)

// ParseDuration converts expressions like "P1D", "PT1H" or "P1DT2H30M" into a
// duration. Empty or unsupported input yields zero.
func ParseDuration(expr string) time.Duration {
	m := durationPattern.FindStringSubmatch(expr)
	if m == nil {
		return 0
	}
	var total time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute} {
		n, ok := atoi(m[i+1])
		if !ok || n > int64(math.MaxInt64/unit) {
			return 0
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0
		}
		total += part
	}
	return total
}

// Milliseconds is ParseDuration expressed in whole milliseconds.
func Milliseconds(expr string) int64 {
	return ParseDuration(expr).Milliseconds()
}

// Valid reports whether expr parses to a strictly positive duration.
func Valid(expr string) bool {
	return ParseDuration(expr) > 0
}

// ExpiresAt returns now plus the duration of expr. A zero duration falls back
// to fallback so a malformed period never produces an already-expired session.
func ExpiresAt(now time.Time, expr, fallback string) time.Time {
	d := ParseDuration(expr)
	if d <= 0 {
		d = ParseDuration(fallback)
	}
	if d <= 0 {
		d = ParseDuration(DefaultBilling)
	}
	return now.Add(d)
}

// RepeatingInterval builds "R/<start>/<period>", anchored at start.
func RepeatingInterval(start time.Time, period string) string {
	if period == "" {
		period = DefaultBilling
	}
	return "R/" + FormatTimestamp(start) + "/" + period
}

// FormatTimestamp renders t in UTC with millisecond precision, e.g.
// 2025-01-01T00:00:00.000Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// atoi parses an optional component. ok is false when it does not fit int64.
func atoi(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
