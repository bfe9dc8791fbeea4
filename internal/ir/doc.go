// Package ir provides the value and type vocabulary shared by every other
// critq package.
//
// This package contains leaf types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - IRValue is sealed; literals outside the set are rejected by FromGo
//   - Type tags drive operand validation only, never runtime coercion
//   - Fingerprints use MarshalCanonical (RFC 8785) plus domain-separated SHA-256
package ir
