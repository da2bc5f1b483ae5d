// Package sha256 derives stable object names for archived pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher turns a page URL into a fixed-length object name, so archiving a
// page again overwrites the previous copy.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 of data. It never fails.
func (*Hasher) Hash(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}
