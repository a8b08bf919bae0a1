package testutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex digests data with SHA-256 and returns lowercase hex, the
// form manifest entries and release descriptors carry.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
