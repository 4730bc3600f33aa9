// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-2 helpers used for FFT and buffer
sizing. All functions are allocation free and constant time.

	fftSize := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(fftSize)

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of 2 are preserved: for 8, bits.Len(7) is 3 and 1<<3 is 8, whereas
bits.Len(8) would be 4 and double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, or 1 for
// non-positive sizes.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// NextPowerOfTwo64 is NextPowerOfTwo for stream offsets.
func NextPowerOfTwo64(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return int64(1) << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2 have
// a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
