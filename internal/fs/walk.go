package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// WalkedFile describes one regular file found under an installation root.
type WalkedFile struct {
	RelPath string // slash-separated, relative to the walk root
	AbsPath string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// WalkTree discovers all regular files under root, applying the ignore
// matcher to both files and directories. Matched directories are pruned
// whole. Symlinks, devices and other special files are skipped. The root
// itself must exist and be a directory.
func WalkTree(root string, matcher *IgnoreMatcher) ([]WalkedFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	var files []WalkedFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", p, err)
		}

		if d.IsDir() {
			if matcher != nil && matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher != nil && matcher.Match(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, WalkedFile{
			RelPath: filepath.ToSlash(rel),
			AbsPath: p,
			Size:    fi.Size(),
			Mode:    fi.Mode(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
