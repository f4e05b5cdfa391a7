package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// StringHash computes SHA-256 hash of a string
func StringHash(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	hashBytes := hasher.Sum(nil)
	return hex.EncodeToString(hashBytes)
}

// BytesHash computes SHA-256 hash of byte slice
func BytesHash(input []byte) string {
	hasher := sha256.New()
	hasher.Write(input)
	hashBytes := hasher.Sum(nil)
	return hex.EncodeToString(hashBytes)
}

// ShortHash returns the first n hex characters of the SHA-256 of input.
// Used for fixed-width identifiers derived from longer strings.
func ShortHash(input string, n int) string {
	full := StringHash(input)
	if n > len(full) {
		n = len(full)
	}
	return full[:n]
}
