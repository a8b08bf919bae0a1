package manifest

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the current manifest file format version.
const SchemaVersion = 1

// FileEntry describes one installed file.
// Path is relative to the installation root and always slash-separated.
// Two entries are considered the same content when their SHA256 values
// match; Size and ModTime are advisory.
type FileEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size_bytes"`
	SHA256   string    `json:"sha256"`
	ModTime  time.Time `json:"modified_at"`
	Critical bool      `json:"critical,omitempty"`
}

// SameContent reports whether the entry's content matches other's.
func (e FileEntry) SameContent(other FileEntry) bool {
	return e.SHA256 == other.SHA256
}

// Manifest is the full inventory of an installation at a given version.
type Manifest struct {
	SchemaVersion int         `json:"schema_version"`
	Version       string      `json:"version"`
	BuiltAt       time.Time   `json:"built_at"`
	TotalSize     int64       `json:"total_size_bytes"`
	Files         []FileEntry `json:"files"`
}

// Lookup returns the entry for the given relative path, or nil if absent.
func (m *Manifest) Lookup(relPath string) *FileEntry {
	for i := range m.Files {
		if m.Files[i].Path == relPath {
			return &m.Files[i]
		}
	}
	return nil
}

// Normalize sorts entries by path and recomputes TotalSize.
// Call before serializing so output is deterministic.
func (m *Manifest) Normalize() {
	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Path < m.Files[j].Path
	})
	var total int64
	for i := range m.Files {
		total += m.Files[i].Size
	}
	m.TotalSize = total
}

// Validate checks structural invariants: a version string, clean unique
// relative paths, and well-formed content hashes.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest has no version")
	}
	seen := make(map[string]bool, len(m.Files))
	for _, e := range m.Files {
		if err := CheckPath(e.Path); err != nil {
			return fmt.Errorf("entry %q: %w", e.Path, err)
		}
		if seen[e.Path] {
			return fmt.Errorf("duplicate entry: %s", e.Path)
		}
		seen[e.Path] = true
		if !validHash(e.SHA256) {
			return fmt.Errorf("entry %q: malformed sha256 %q", e.Path, e.SHA256)
		}
		if e.Size < 0 {
			return fmt.Errorf("entry %q: negative size %d", e.Path, e.Size)
		}
	}
	return nil
}

// CheckPath validates a manifest-relative path: slash-separated, cleaned,
// and confined to the installation root.
func CheckPath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(relPath, "/") {
		return fmt.Errorf("absolute path not allowed")
	}
	if strings.Contains(relPath, "\\") {
		return fmt.Errorf("backslash in path")
	}
	cleaned := path.Clean(relPath)
	if cleaned != relPath {
		return fmt.Errorf("path not in canonical form (want %q)", cleaned)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return fmt.Errorf("path escapes installation root")
	}
	return nil
}

// validHash reports whether s is 64 lowercase hex characters.
func validHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
