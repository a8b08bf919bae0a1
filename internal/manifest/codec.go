package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"molt/internal/fs"
)

// Decode reads a manifest from r and validates it.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("manifest schema version %d is newer than supported %d", m.SchemaVersion, SchemaVersion)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Encode writes the manifest to w as indented JSON.
// The manifest is normalized first so output is deterministic.
func Encode(w io.Writer, m *Manifest) error {
	m.Normalize()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return nil
}

// Load reads and validates the manifest at path.
// Returns os.ErrNotExist (wrapped) if no manifest file exists yet.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading manifest from %s: %w", path, err)
	}
	return m, nil
}

// Save writes the manifest to path atomically (temp file + rename), so a
// crash mid-write never corrupts the previous manifest.
func Save(path string, m *Manifest) error {
	m.Normalize()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')

	if err := fs.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest to %s: %w", path, err)
	}
	return nil
}
