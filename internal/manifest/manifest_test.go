package manifest_test

import (
	"strings"
	"testing"
	"time"

	"molt/internal/manifest"
	"molt/internal/testutil"
)

func entry(path, content string) manifest.FileEntry {
	return manifest.FileEntry{
		Path:   path,
		Size:   int64(len(content)),
		SHA256: testutil.SHA256Hex([]byte(content)),
	}
}

func TestManifest_Lookup(t *testing.T) {
	t.Parallel()
	m := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Version:       "1.0.0",
		Files: []manifest.FileEntry{
			entry("app.bin", "binary"),
			entry("lib/core.so", "core"),
		},
	}

	if e := m.Lookup("lib/core.so"); e == nil || e.Path != "lib/core.so" {
		t.Errorf("Lookup(lib/core.so) = %v, want entry", e)
	}
	if e := m.Lookup("missing.txt"); e != nil {
		t.Errorf("Lookup(missing.txt) = %v, want nil", e)
	}
}

func TestManifest_Normalize(t *testing.T) {
	t.Parallel()
	m := &manifest.Manifest{
		Version: "1.0.0",
		Files: []manifest.FileEntry{
			entry("z.txt", "zzzz"),
			entry("a.txt", "aa"),
		},
	}

	m.Normalize()

	if m.Files[0].Path != "a.txt" || m.Files[1].Path != "z.txt" {
		t.Errorf("entries not sorted: %v, %v", m.Files[0].Path, m.Files[1].Path)
	}
	if m.TotalSize != 6 {
		t.Errorf("TotalSize = %d, want 6", m.TotalSize)
	}
}

func TestManifest_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *manifest.Manifest {
		return &manifest.Manifest{
			SchemaVersion: manifest.SchemaVersion,
			Version:       "1.0.0",
			Files:         []manifest.FileEntry{entry("app.bin", "binary")},
		}
	}

	t.Run("accepts well-formed manifest", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("rejects missing version", func(t *testing.T) {
		m := valid()
		m.Version = ""
		if err := m.Validate(); err == nil {
			t.Error("Validate() expected error for missing version")
		}
	})

	t.Run("rejects duplicate paths", func(t *testing.T) {
		m := valid()
		m.Files = append(m.Files, entry("app.bin", "other"))
		if err := m.Validate(); err == nil {
			t.Error("Validate() expected error for duplicate path")
		}
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		m := valid()
		m.Files[0].SHA256 = "not-a-hash"
		if err := m.Validate(); err == nil {
			t.Error("Validate() expected error for malformed hash")
		}
	})

	t.Run("rejects negative size", func(t *testing.T) {
		m := valid()
		m.Files[0].Size = -1
		if err := m.Validate(); err == nil {
			t.Error("Validate() expected error for negative size")
		}
	})
}

func TestCheckPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "app.bin", false},
		{"nested file", "lib/plugins/audio.so", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", `lib\core.so`, true},
		{"parent escape", "../outside", true},
		{"embedded dotdot", "lib/../../outside", true},
		{"dot", ".", true},
		{"not cleaned", "lib//core.so", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manifest.CheckPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestFileEntry_SameContent(t *testing.T) {
	t.Parallel()
	a := entry("app.bin", "content")
	b := entry("app.bin", "content")
	// Size and timestamps are advisory: only the hash decides equality.
	b.Size = 9999
	b.ModTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if !a.SameContent(b) {
		t.Error("SameContent() = false for identical hashes")
	}

	c := entry("app.bin", "different")
	if a.SameContent(c) {
		t.Error("SameContent() = true for differing hashes")
	}
}

func TestManifest_Validate_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()
	m := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Version:       "1.0.0",
		Files: []manifest.FileEntry{
			{Path: "../evil", Size: 1, SHA256: strings.Repeat("a", 64)},
		},
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate() expected error for escaping path")
	}
}
