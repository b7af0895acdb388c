// Package bits provides the small bit-mathematics helpers the value/index
// mapping and the ZigZag LEB128 codec are built on.
package bits

import "math/bits"

// Len64 returns the number of bits required to represent v, i.e. 64 minus
// the leading-zero count of v. Len64(0) is 0.
func Len64(v uint64) int {
	return bits.Len64(v)
}

// LeadingZeros64 returns the number of leading zero bits in v, counting
// from the most significant bit. LeadingZeros64(0) is 64.
func LeadingZeros64(v uint64) int {
	return bits.LeadingZeros64(v)
}

// Log2Floor returns floor(log2(v)) for v > 0. Callers must not pass 0.
func Log2Floor(v int64) int {
	return bits.Len64(uint64(v)) - 1
}

// Log2Ceil returns ceil(log2(v)) for v > 0.
func Log2Ceil(v int64) int {
	n := Log2Floor(v)
	if v&(v-1) == 0 {
		return n
	}
	return n + 1
}
