package encryption

import (
	"fmt"

	"molt/internal/config"
	"molt/internal/molt"
)

// NewDecryptorFromConfig creates an ArchiveDecryptor based on the
// configuration type. Type "none" (or empty) returns nil: releases are
// expected in plaintext and an encrypted descriptor will be rejected at
// fetch time.
func NewDecryptorFromConfig(cfg config.EncryptionConfig) (molt.ArchiveDecryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.IdentityPath == "" {
			return nil, fmt.Errorf("identity_path required for age encryption")
		}
		return NewAgeDecryptor(cfg.IdentityPath), nil
	case "test":
		return TestDecryptor{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
