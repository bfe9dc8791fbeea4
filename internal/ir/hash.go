package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainQueryModel = "critq/querymodel/v1"
	DomainEntity     = "critq/entity/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical marshals v canonically and hashes it under domain.
// Two values with equal canonical encodings always hash identically.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("HashCanonical: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustHashCanonical is like HashCanonical but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashCanonical(domain string, v any) string {
	h, err := HashCanonical(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}
