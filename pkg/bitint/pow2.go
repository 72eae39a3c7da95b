// SPDX-License-Identifier: MIT
/*
Package bitint holds the integer helpers used to validate analysis frame
geometry. FFT frame sizes must be powers of two, and the hop size must divide
the frame evenly so that overlapping frames start on whole sample boundaries.

Usage:

	if !bitint.IsPowerOfTwo(frameSize) {
		return fmt.Errorf("frame size %d is not a power of two", frameSize)
	}
	overlap := bitint.Overlap(2048, 512) // 0.75
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n. Powers of two are
// returned unchanged; n <= 0 yields 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	// (n-1) keeps exact powers of two from being doubled.
	return 1 << bits.Len(uint(n-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// DividesEvenly reports whether hop is a positive divisor of frame that is
// no larger than the frame itself.
func DividesEvenly(frame, hop int) bool {
	return hop > 0 && frame >= hop && frame%hop == 0
}

// Overlap returns the fraction of each frame shared with the next one, e.g.
// 0.75 for a 2048-sample frame advanced by 512 samples. Invalid geometry
// returns 0.
func Overlap(frame, hop int) float64 {
	if !DividesEvenly(frame, hop) {
		return 0
	}
	return 1 - float64(hop)/float64(frame)
}
