package encryption

import (
	"bytes"
	"fmt"
	"io"

	"molt/internal/molt"
)

// testHeader is prepended to data by Seal to make sealed output clearly
// different from plaintext while remaining deterministic and reversible.
var testHeader = []byte("MOLTENC\x00")

// TestDecryptor is a simple, deterministic decryptor for testing. Seal
// prepends a fixed 8-byte header; Decrypt strips it. Sealed fixtures
// differ from plaintext (so content checksums differ) without requiring
// real crypto or key material.
type TestDecryptor struct{}

var _ molt.ArchiveDecryptor = TestDecryptor{}

func (TestDecryptor) Decrypt(r io.Reader) (io.Reader, error) {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	return r, nil
}

// Seal wraps data in the envelope TestDecryptor understands.
func Seal(data []byte) []byte {
	out := make([]byte, 0, len(testHeader)+len(data))
	out = append(out, testHeader...)
	return append(out, data...)
}
