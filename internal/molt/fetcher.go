package molt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"molt/internal/manifest"
)

// Fetcher downloads a release archive into a private staging directory,
// extracts exactly the files the plan needs, and verifies every one of
// them against the remote manifest's hashes.
//
// Error set: *HashMismatchError when any extracted file fails
// verification (the staging directory is discarded and zero files are
// handed over), ErrNetwork-wrapped download failures, and IO errors from
// staging. Each call stages from scratch; partial downloads from earlier
// attempts are never reused.
type Fetcher interface {
	Fetch(ctx context.Context, desc *ReleaseDescriptor, remote *manifest.Manifest, plan *manifest.DeltaPlan, sink EventSink) (*StagedFiles, error)
}

// StagedFiles is the verified output of a fetch: for every planned add
// and update, the absolute path of its staged copy. The set is complete;
// the fetcher never hands over a partial set.
type StagedFiles struct {
	// Dir is the private staging directory owning all staged paths.
	Dir string

	paths map[string]string
}

// NewStagedFiles builds a StagedFiles set rooted at dir.
func NewStagedFiles(dir string, paths map[string]string) *StagedFiles {
	return &StagedFiles{Dir: dir, paths: paths}
}

// Path returns the staged absolute path for a manifest-relative path.
func (s *StagedFiles) Path(relPath string) (string, error) {
	p, ok := s.paths[relPath]
	if !ok {
		return "", fmt.Errorf("no staged copy of %s", relPath)
	}
	return p, nil
}

// Len returns the number of staged files.
func (s *StagedFiles) Len() int { return len(s.paths) }

// Close removes the staging directory and everything in it.
func (s *StagedFiles) Close() error {
	if s.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("removing staging directory: %w", err)
	}
	s.Dir = ""
	return nil
}

// StagingPath returns where a fetcher should stage a given relative
// path below its staging directory.
func StagingPath(stagingDir, relPath string) string {
	return filepath.Join(stagingDir, "files", filepath.FromSlash(relPath))
}
