package commands

import (
	"fmt"
	"strings"
)

// formatNumber renders an amount with thousands separators, dropping
// the fractional part
func formatNumber(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	digits := fmt.Sprintf("%.0f", v)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}
