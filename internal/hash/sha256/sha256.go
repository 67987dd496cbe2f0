// Package sha256 derives content-store keys with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength is the length of every key produced by Key.
const KeyLength = sha256.Size * 2

// Hasher implements crawler.KeyDeriver using unsalted SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key returns the lowercase hex digest of the URL bytes. The same URL always
// maps to the same key.
func (h *Hasher) Key(url string) string {
	return h.Hash([]byte(url))
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
