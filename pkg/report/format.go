package report

import (
	"fmt"
	"strings"
	"time"
)

var sizeUnits = []string{"", "k", "m", "g", "t", "p"}

// FormatBytes scales a byte count to the largest unit keeping the value >= 1,
// e.g. 1536 -> "1.50k".
func FormatBytes(v float64) string {
	if v < 0 {
		return "-" + FormatBytes(-v)
	}
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f%s", v, sizeUnits[unit])
}

// FormatMB renders bytes as whole megabytes.
func FormatMB(b uint64) string {
	return fmt.Sprintf("%dm", b/(1024*1024))
}

// FormatDuration renders an uptime as e.g. "3d04h", "2h05m" or "42s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%02dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// ShortName trims a thread name to width runes, keeping the first keep runes
// and the tail so that numbered pool threads stay distinguishable.
func ShortName(name string, width, keep int) string {
	runes := []rune(name)
	if width <= 0 || len(runes) <= width {
		return name
	}
	if keep >= width-3 || keep < 0 {
		keep = width - 3
	}
	if keep < 0 {
		keep = 0
	}
	tail := width - keep - 3
	if tail < 0 {
		tail = 0
	}
	return string(runes[:keep]) + "..." + string(runes[len(runes)-tail:])
}

// PadRight left aligns s in a field of width runes, truncating when needed.
func PadRight(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}
