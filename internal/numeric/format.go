package numeric

import (
	"math"
	"strconv"
)

// FormatPrice renders a price with precision scaled to its magnitude:
// 2 decimals at or above 1, up to 6 significant decimals below.
func FormatPrice(p float64) string {
	if !Finite(p) {
		return "-"
	}
	abs := math.Abs(p)
	switch {
	case abs >= 1:
		return strconv.FormatFloat(p, 'f', 2, 64)
	case abs >= 0.01:
		return strconv.FormatFloat(p, 'f', 4, 64)
	default:
		return strconv.FormatFloat(p, 'f', 6, 64)
	}
}

// FormatPct renders a fraction (0.0123) as a signed percentage ("+1.23%").
func FormatPct(frac float64) string {
	if !Finite(frac) {
		return "-"
	}
	s := strconv.FormatFloat(frac*100, 'f', 2, 64) + "%"
	if frac > 0 {
		return "+" + s
	}
	return s
}

// PctChange returns (to-from)/from, or 0 when from is zero.
func PctChange(from, to float64) float64 {
	return SafeDiv(to-from, from, 0)
}

// Itoa is a minimal int-to-string converter used when building store keys.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
