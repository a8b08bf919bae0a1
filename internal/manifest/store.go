package manifest

import "time"

// FileStore persists the local manifest at a fixed path and can rebuild
// it from the installation tree. The manifest file itself lives outside
// the installation root, so an update never rewrites it except through
// Save.
type FileStore struct {
	path       string
	installDir string
	opts       ComputeOptions
}

// NewFileStore creates a store writing to path, inventorying installDir.
func NewFileStore(path, installDir string, opts ComputeOptions) *FileStore {
	return &FileStore{path: path, installDir: installDir, opts: opts}
}

// Path returns the manifest file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the local manifest. The error wraps os.ErrNotExist when no
// manifest has been written yet.
func (s *FileStore) Load() (*Manifest, error) {
	return Load(s.path)
}

// Save writes the manifest atomically.
func (s *FileStore) Save(m *Manifest) error {
	return Save(s.path, m)
}

// ComputeFromDisk hashes the installation tree into a fresh manifest.
func (s *FileStore) ComputeFromDisk(version string, builtAt time.Time) (*Manifest, error) {
	return ComputeFromDisk(s.installDir, version, builtAt, s.opts)
}
