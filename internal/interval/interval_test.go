package interval

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"minute", "PT1M", time.Minute},
		{"hour", "PT1H", time.Hour},
		{"day", "P1D", 24 * time.Hour},
		{"combined", "P1DT2H30M", 26*time.Hour + 30*time.Minute},
		{"lower case", "pt15m", 15 * time.Minute},
		{"bare P", "P", 0},
		{"empty", "", 0},
		{"seconds unsupported", "PT30S", 0},
		{"weeks unsupported", "P1W", 0},
		{"garbage", "one hour", 0},
		{"negative", "PT-1H", 0},
		{"days overflow", "P6405119470D", 0},
		{"hours overflow", "PT9999999999999H", 0},
		{"huge days", "P99999999999999D", 0},
		{"component beyond int64", "PT99999999999999999999M", 0},
		{"sum overflow", "P106751DT23H59M", 0},
		{"largest day count", "P106751D", 106751 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDuration(tt.input)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, int64(got), int64(0))
		})
	}
}

func TestMillisecondsRoundTrip(t *testing.T) {
	for days := 0; days < 3; days++ {
		for hours := 0; hours < 24; hours += 5 {
			for mins := 0; mins < 60; mins += 13 {
				expr := fmt.Sprintf("P%dDT%dH%dM", days, hours, mins)
				want := int64(((days*24+hours)*60 + mins) * 60 * 1000)
				assert.Equal(t, want, Milliseconds(expr), expr)
				assert.Equal(t, Milliseconds(expr), Milliseconds(expr), "deterministic")
			}
		}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("PT1M"))
	assert.False(t, Valid("PT0M"))
	assert.False(t, Valid("monthly"))
}

func TestExpiresAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Minute), ExpiresAt(now, "PT1M", "PT1H"))
	assert.Equal(t, now.Add(2*time.Hour), ExpiresAt(now, "bogus", "PT2H"))
	assert.Equal(t, now.Add(time.Hour), ExpiresAt(now, "", ""))
}

func TestRepeatingInterval(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "R/2025-01-01T00:00:00.000Z/PT1M", RepeatingInterval(start, "PT1M"))
	assert.Equal(t, "R/2025-01-01T00:00:00.000Z/PT1H", RepeatingInterval(start, ""))

	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "R/2025-01-01T00:00:00.250Z/P1D",
		RepeatingInterval(time.Date(2025, 1, 1, 9, 0, 0, 250*int(time.Millisecond), tokyo), "P1D"))
}
