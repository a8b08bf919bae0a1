package molt

import "io"

// ArchiveDecryptor unwraps an encrypted release archive stream.
// Implementations return a reader yielding the plaintext archive.
type ArchiveDecryptor interface {
	Decrypt(r io.Reader) (io.Reader, error)
}
