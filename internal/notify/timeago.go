package notify

import (
	"fmt"
	"time"
)

// TimeAgo renders the age of t relative to now in the largest whole unit:
// "3h ago", "2mo ago", or "just now" under a minute. Future times render as
// "just now".
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}

	const (
		day   = 24 * time.Hour
		month = 30 * day
		year  = 365 * day
	)

	switch {
	case d >= year:
		return fmt.Sprintf("%dy ago", d/year)
	case d >= month:
		return fmt.Sprintf("%dmo ago", d/month)
	case d >= day:
		return fmt.Sprintf("%dd ago", d/day)
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", d/time.Hour)
	default:
		return fmt.Sprintf("%dm ago", d/time.Minute)
	}
}
