package blob

import (
	"fmt"
	"time"
)

// DefaultBillingPeriod spans the first of now's month to now as YYYYMMDD-YYYYMMDD.
func DefaultBillingPeriod(now time.Time) string {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start.Format("20060102") + "-" + now.Format("20060102")
}

// FormatBytes renders n with one decimal in 1024 steps.
func FormatBytes(n int64) string {
	if n == 0 {
		return "0 B"
	}
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}
