// Package format renders sizes, durations and percentages for terminal output.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// HumanizeBytes converts a byte count into a human-readable string (e.g., "1.5 MiB").
func HumanizeBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// ETA renders an optional remaining duration as "1h02m", "3m05s" or "45s".
// Nil renders as "--".
func ETA(d *time.Duration) string {
	if d == nil {
		return "--"
	}
	s := int64(math.Round(d.Seconds()))
	switch {
	case s >= 3600:
		return fmt.Sprintf("%dh%02dm", s/3600, (s%3600)/60)
	case s >= 60:
		return fmt.Sprintf("%dm%02ds", s/60, s%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Percent renders 0..100 without trailing zeros: "42%", "42.5%".
func Percent(p float64) string {
	return humanize.FtoaWithDigits(p, 1) + "%"
}

// Since renders t relative to now ("3 minutes ago"). Zero times render as "--".
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
