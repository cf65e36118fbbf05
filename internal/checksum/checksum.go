// Package checksum computes content digests for fingerprints and records.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String returns the digest of s. Callers normalize s first; the digest is
// a pure function of the bytes it receives.
func String(s string) string {
	return Sum([]byte(s))
}
