package testutil

import (
	"molt/internal/encryption"
	"molt/internal/molt"
)

// NewTestDecryptor returns the deterministic test decryptor.
func NewTestDecryptor() molt.ArchiveDecryptor {
	return encryption.TestDecryptor{}
}

// Seal wraps data in the envelope the test decryptor understands.
func Seal(data []byte) []byte {
	return encryption.Seal(data)
}
