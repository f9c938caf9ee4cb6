// Package md5 provides the checksum used to name packages and jobs.
package md5

import (
	"crypto/md5" // #nosec G501 -- content addressing, not a security boundary.
	"encoding/hex"
)

// Hasher produces hex MD5 digests.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// HashStrings feeds each part into one digest, in order.
func (h *Hasher) HashStrings(parts ...string) string {
	d := md5.New() // #nosec G401
	for _, p := range parts {
		_, _ = d.Write([]byte(p))
	}
	return hex.EncodeToString(d.Sum(nil))
}

// Sum is a shortcut for New().Hash([]byte(s)).
func Sum(s string) string {
	return New().Hash([]byte(s))
}
