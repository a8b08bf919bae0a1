package fetch

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"molt/internal/manifest"
	"molt/internal/molt"
)

// extractPlanned walks the archive stream and writes out exactly the
// entries named in wanted (by normalized slash path). Entries outside
// the plan are skipped: the archive legitimately carries the whole
// release, not just the delta. Returns the staged path per extracted
// manifest path.
func extractPlanned(r io.Reader, wanted map[string]manifest.FileEntry, stagingDir string) (map[string]string, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer gzr.Close()

	extracted := make(map[string]string, len(wanted))
	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := normalizeEntryName(hdr.Name)
		entry, ok := wanted[name]
		if !ok {
			continue
		}
		if err := manifest.CheckPath(name); err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}

		dst := molt.StagingPath(stagingDir, name)
		if err := writeEntry(dst, tr, &entry, hdr); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", name, err)
		}
		extracted[name] = dst
	}
	return extracted, nil
}

// writeEntry streams one tar entry to dst, capped at the manifest's
// declared size so a lying archive cannot fill the disk. A capped file
// can never hash-match, so oversized entries surface as verification
// failures.
func writeEntry(dst string, tr *tar.Reader, entry *manifest.FileEntry, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	mode := hdr.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	_, err = io.Copy(out, io.LimitReader(tr, entry.Size+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// normalizeEntryName converts a tar member name to the manifest's
// slash-relative form.
func normalizeEntryName(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	return path.Clean(name)
}
