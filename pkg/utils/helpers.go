// Package utils provides small helpers shared across packages.
package utils

import (
	"strings"
)

// Ethereum address constants
var (
	// NullEthereumAddressHex is the null Ethereum address with the 0x prefix
	NullEthereumAddressHex = "0x0000000000000000000000000000000000000000"
)

// AreAddressesEqual compares two Ethereum addresses for equality, ignoring case.
func AreAddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// NormalizeAddress lowercases and trims an address for use in keys and comparisons.
func NormalizeAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

// Map applies f to every element of s.
func Map[A any, B any](s []A, f func(A, uint64) B) []B {
	out := make([]B, 0, len(s))
	for i, v := range s {
		out = append(out, f(v, uint64(i)))
	}
	return out
}

// Filter returns the elements of s for which f is true.
func Filter[A any](s []A, f func(A) bool) []A {
	out := make([]A, 0)
	for _, v := range s {
		if f(v) {
			out = append(out, v)
		}
	}
	return out
}
