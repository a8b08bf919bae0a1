package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"molt/internal/fs"
)

// ComputeOptions controls manifest computation from disk.
type ComputeOptions struct {
	// Ignore holds raw ignore patterns in addition to any .moltignore
	// file found at the root.
	Ignore []string
}

// ComputeFromDisk builds a manifest by walking the installation root and
// hashing every regular file. version and builtAt are recorded as given;
// entries are sorted and TotalSize is computed. No entry is marked
// critical, since criticality is declared by the publisher, not derived
// from disk.
func ComputeFromDisk(root, version string, builtAt time.Time, opts ComputeOptions) (*Manifest, error) {
	filePatterns, err := fs.ParseIgnoreFile(filepath.Join(root, ".moltignore"))
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	patterns := make([]string, 0, len(opts.Ignore)+len(filePatterns))
	patterns = append(patterns, opts.Ignore...)
	patterns = append(patterns, filePatterns...)
	matcher := fs.NewIgnoreMatcher(patterns)

	walked, err := fs.WalkTree(root, matcher)
	if err != nil {
		return nil, fmt.Errorf("scanning installation: %w", err)
	}

	m := &Manifest{
		SchemaVersion: SchemaVersion,
		Version:       version,
		BuiltAt:       builtAt,
	}
	for _, wf := range walked {
		sum, err := HashFile(wf.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", wf.RelPath, err)
		}
		m.Files = append(m.Files, FileEntry{
			Path:    wf.RelPath,
			Size:    wf.Size,
			SHA256:  sum,
			ModTime: wf.ModTime.UTC(),
		})
	}

	m.Normalize()
	return m, nil
}

// HashFile returns the lowercase hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
