// Package duration converts work time between seconds and the HH:MM:SS
// strings shown to technicians, and applies billing granularity.
package duration

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders seconds as zero-padded HH:MM or HH:MM:SS.
// Hours are not wrapped at 24. Negative input is clamped to zero.
func Format(seconds int64, withSeconds bool) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if withSeconds {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// RoundUp rounds seconds up to the next multiple of granularityMinutes.
// A technician is never under-billed for a started block.
// Granularity 0 disables rounding.
func RoundUp(seconds int64, granularityMinutes int) int64 {
	if granularityMinutes <= 0 || seconds <= 0 {
		return seconds
	}
	block := int64(granularityMinutes) * 60
	if rem := seconds % block; rem != 0 {
		return seconds + block - rem
	}
	return seconds
}

// FromHoursMinutes converts a manual entry to seconds
func FromHoursMinutes(hours, minutes int) int64 {
	return int64(hours)*3600 + int64(minutes)*60
}

// Parse reads back a value produced by Format
func Parse(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total int64
	weights := []int64{3600, 60, 1}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += n * weights[i]
	}
	return total, nil
}

// Hours converts seconds to fractional hours
func Hours(seconds int64) float64 {
	return float64(seconds) / 3600
}
