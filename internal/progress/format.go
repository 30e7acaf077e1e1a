package progress

import (
	"fmt"
	"math"
	"time"
)

// NotAvailable is shown instead of an ETA while the rate is not yet trusted.
const NotAvailable = "Calculating..."

// ETA returns the remaining duration at the given rate. ok is false when the
// rate cannot produce a finite estimate.
func ETA(remaining uint64, bytesPerSecond float64) (time.Duration, bool) {
	if bytesPerSecond <= 0 || math.IsInf(bytesPerSecond, 0) || math.IsNaN(bytesPerSecond) {
		return 0, false
	}
	seconds := float64(remaining) / bytesPerSecond
	if seconds > float64(math.MaxInt64/int64(time.Second)) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// FormatETA renders a duration as HH:MM:SS. Negative durations render as
// --:--:--.
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "--:--:--"
	}
	total := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

var sizeLabels = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with base-1024 units, e.g. "1.50 MB".
func FormatSize(bytes float64) string {
	if bytes < 0 || math.IsNaN(bytes) {
		bytes = 0
	}
	n := 0
	for bytes >= 1024 && n < len(sizeLabels)-1 {
		bytes /= 1024
		n++
	}
	return fmt.Sprintf("%.2f %s", bytes, sizeLabels[n])
}

// FormatRate renders bytes per second, e.g. "12.00 MB/s".
func FormatRate(bytesPerSecond float64) string {
	return FormatSize(bytesPerSecond) + "/s"
}
