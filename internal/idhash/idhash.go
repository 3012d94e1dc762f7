// Package idhash maps applicant identifiers to stable buckets.
//
// The hash is the 31-multiplier polynomial over UTF-16 code units with
// 32-bit two's-complement wraparound, so a given identifier lands in the
// same bucket on every platform and every run.
package idhash

import "unicode/utf16"

// Hash computes h = h*31 + c over the UTF-16 code units of s.
func Hash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// Magnitude returns |h| as an unsigned value.
// math.MinInt32 maps to 2147483648 instead of overflowing.
func Magnitude(h int32) uint32 {
	if h < 0 {
		return uint32(-int64(h))
	}
	return uint32(h)
}

// Bucket returns |Hash(s)| mod n. It returns 0 when n <= 0.
func Bucket(s string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(Magnitude(Hash(s)) % uint32(n))
}
