// Package encryption unwraps encrypted release archives. A publisher
// encrypts the archive to the installation's age recipient; the updater
// holds the matching X25519 identity and decrypts the stream before
// extraction.
package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"

	"molt/internal/molt"
)

// AgeDecryptor implements molt.ArchiveDecryptor using filippo.io/age
// with X25519 keys. The identity file is stored in plaintext with 0600
// permissions: updates run unattended on a schedule, so there is no
// terminal to prompt a passphrase on.
type AgeDecryptor struct {
	identityPath string
}

var _ molt.ArchiveDecryptor = (*AgeDecryptor)(nil)

// NewAgeDecryptor creates an AgeDecryptor reading identities from
// identityPath.
func NewAgeDecryptor(identityPath string) *AgeDecryptor {
	return &AgeDecryptor{identityPath: identityPath}
}

// Decrypt returns a reader of the decrypted archive stream.
func (d *AgeDecryptor) Decrypt(r io.Reader) (io.Reader, error) {
	identities, err := d.loadIdentities()
	if err != nil {
		return nil, err
	}
	out, err := age.Decrypt(r, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting archive: %w", err)
	}
	return out, nil
}

// IsConfigured returns true if the identity file exists.
func (d *AgeDecryptor) IsConfigured() bool {
	_, err := os.Stat(d.identityPath)
	return err == nil
}

func (d *AgeDecryptor) loadIdentities() ([]age.Identity, error) {
	data, err := os.ReadFile(d.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", d.identityPath)
	}
	return identities, nil
}

// Keygen generates a fresh X25519 identity at identityPath and returns
// the public recipient string for the release publisher. Refuses to
// overwrite an existing identity.
func Keygen(identityPath string) (string, error) {
	if _, err := os.Stat(identityPath); err == nil {
		return "", fmt.Errorf("identity file already exists at %s", identityPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating key pair: %w", err)
	}
	recipient := identity.Recipient().String()

	if err := os.MkdirAll(filepath.Dir(identityPath), 0700); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}

	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), recipient, identity)
	f, err := os.OpenFile(identityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("writing identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing identity file: %w", err)
	}
	return recipient, nil
}
