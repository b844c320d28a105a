// Package convert provides safe integer conversions.
package convert

import "math"

// IntToInt32Clamped converts an int to int32, clamping to the int32 range.
func IntToInt32Clamped(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// IntToUintClamped converts an int to uint, mapping negatives to 0.
func IntToUintClamped(v int) uint {
	if v < 0 {
		return 0
	}
	return uint(v)
}

// ShiftCapped returns 1<<n, capping n so the result never overflows an int64.
func ShiftCapped(n int) int64 {
	const maxShift = 62
	u := IntToUintClamped(n)
	if u > maxShift {
		u = maxShift
	}
	return int64(1) << u
}
