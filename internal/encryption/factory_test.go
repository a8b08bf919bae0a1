package encryption

import (
	"path/filepath"
	"testing"

	"molt/internal/config"
)

func TestNewDecryptorFromConfig(t *testing.T) {
	t.Parallel()

	identityPath := filepath.Join(t.TempDir(), "molt.key")

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		d, err := NewDecryptorFromConfig(config.EncryptionConfig{Type: "none"})
		if err != nil {
			t.Fatalf("NewDecryptorFromConfig() error = %v", err)
		}
		if d != nil {
			t.Errorf("decryptor = %T, want nil", d)
		}
	})

	t.Run("empty type", func(t *testing.T) {
		t.Parallel()
		d, err := NewDecryptorFromConfig(config.EncryptionConfig{})
		if err != nil {
			t.Fatalf("NewDecryptorFromConfig() error = %v", err)
		}
		if d != nil {
			t.Errorf("decryptor = %T, want nil", d)
		}
	})

	t.Run("age", func(t *testing.T) {
		t.Parallel()
		d, err := NewDecryptorFromConfig(config.EncryptionConfig{Type: "age", IdentityPath: identityPath})
		if err != nil {
			t.Fatalf("NewDecryptorFromConfig() error = %v", err)
		}
		if _, ok := d.(*AgeDecryptor); !ok {
			t.Errorf("decryptor = %T, want *AgeDecryptor", d)
		}
	})

	t.Run("age without identity path", func(t *testing.T) {
		t.Parallel()
		if _, err := NewDecryptorFromConfig(config.EncryptionConfig{Type: "age"}); err == nil {
			t.Fatal("expected error for age without identity_path")
		}
	})

	t.Run("test", func(t *testing.T) {
		t.Parallel()
		d, err := NewDecryptorFromConfig(config.EncryptionConfig{Type: "test"})
		if err != nil {
			t.Fatalf("NewDecryptorFromConfig() error = %v", err)
		}
		if _, ok := d.(TestDecryptor); !ok {
			t.Errorf("decryptor = %T, want TestDecryptor", d)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		if _, err := NewDecryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
			t.Fatal("expected error for unknown type")
		}
	})
}
