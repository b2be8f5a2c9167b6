// Package sha256 fingerprints exported batch files.
package sha256

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Prefix tags every digest with its algorithm.
const Prefix = "sha256:"

// Hasher implements batch.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the prefixed hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// Verify reports whether checksum, with or without Prefix, matches data.
func Verify(checksum string, data []byte) bool {
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	got := strings.TrimPrefix(checksum, Prefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
