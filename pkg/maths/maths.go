// Package maths has small numeric helpers for values coming from external tools.
package maths

import (
	"math"
)

// RoundFloat64ToInt rounds v, mapping NaN and infinities to zero.
func RoundFloat64ToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return int(math.Round(v))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
