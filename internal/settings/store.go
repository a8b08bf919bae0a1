package settings

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"molt/internal/fs"
)

// FileStore persists Settings as a TOML file. Writes go through a temp
// file and rename so a crash never truncates the record. The file holds
// the auth token, so it is created mode 0600.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the settings file location.
func (st *FileStore) Path() string { return st.path }

// Load reads the settings file. A missing file yields defaults with no
// repository configured rather than an error; a fresh installation has
// simply never saved settings yet.
func (st *FileStore) Load() (*Settings, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(""), nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding settings from %s: %w", st.path, err)
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersion
	}
	if s.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("settings schema version %d is newer than supported %d", s.SchemaVersion, SchemaVersion)
	}
	return &s, nil
}

// Save writes the settings atomically.
func (st *FileStore) Save(s *Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := fs.WriteFileAtomic(st.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing settings to %s: %w", st.path, err)
	}
	return nil
}
