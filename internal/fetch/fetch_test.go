package fetch_test

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"molt/internal/fetch"
	"molt/internal/manifest"
	"molt/internal/molt"
	"molt/internal/testutil"
)

// planFor builds a remote manifest and a matching all-additions delta
// plan from a map of relative paths to contents.
func planFor(files map[string]string) (*manifest.Manifest, *manifest.DeltaPlan) {
	remote := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Version:       "1.2.0",
	}
	plan := &manifest.DeltaPlan{}
	for path, content := range files {
		entry := manifest.FileEntry{
			Path:   path,
			Size:   int64(len(content)),
			SHA256: testutil.SHA256Hex([]byte(content)),
		}
		remote.Files = append(remote.Files, entry)
		plan.Add = append(plan.Add, entry)
	}
	remote.Normalize()
	return remote, plan
}

func serveArchive(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(t *testing.T, cfg fetch.Config) (*fetch.Fetcher, string) {
	t.Helper()
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = t.TempDir()
	}
	f, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	return f, cfg.StagingRoot
}

func assertStagingEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading staging root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging root not cleaned up, contains %d entries", len(entries))
	}
}

func TestFetcherStagesPlannedFiles(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"app/app.bin":        "binary v2 content",
		"plugins/plugin.dll": "plugin v2 content",
	}
	remote, plan := planFor(files)

	// The archive carries the whole release, including a file the plan
	// does not ask for.
	archive := testutil.BuildArchive(t, map[string]string{
		"app/app.bin":        files["app/app.bin"],
		"plugins/plugin.dll": files["plugins/plugin.dll"],
		"README.md":          "not part of the delta",
	})
	srv := serveArchive(t, archive)

	f, root := newFetcher(t, fetch.Config{})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL + "/v1.2.0.tar.gz"}

	staged, err := f.Fetch(context.Background(), desc, remote, plan, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if staged.Len() != 2 {
		t.Errorf("staged %d files, want 2", staged.Len())
	}
	for path, content := range files {
		stagedPath, err := staged.Path(path)
		if err != nil {
			t.Fatalf("Path(%s): %v", path, err)
		}
		got, err := os.ReadFile(stagedPath)
		if err != nil {
			t.Fatalf("reading staged %s: %v", path, err)
		}
		if string(got) != content {
			t.Errorf("staged %s = %q, want %q", path, got, content)
		}
	}
	if _, err := staged.Path("README.md"); err == nil {
		t.Error("unplanned archive entry was staged")
	}

	if err := staged.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	assertStagingEmpty(t, root)
}

func TestFetcherSendsAuthHeaders(t *testing.T) {
	t.Parallel()

	files := map[string]string{"app.bin": "content"}
	remote, plan := planFor(files)
	archive := testutil.BuildArchive(t, files)

	var gotAuth, gotAgent, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	f, _ := newFetcher(t, fetch.Config{AuthToken: "tok-123", UserAgent: "molt-test/1.0"})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}

	if _, err := f.Fetch(context.Background(), desc, remote, plan, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotAgent != "molt-test/1.0" {
		t.Errorf("User-Agent = %q", gotAgent)
	}
	if gotAccept != "application/octet-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestFetcherContentHashMismatch(t *testing.T) {
	t.Parallel()

	// The manifest promises one plugin.dll, the archive delivers another.
	remote, plan := planFor(map[string]string{
		"app.bin":    "good app",
		"plugin.dll": "good plugin",
	})
	archive := testutil.BuildArchive(t, map[string]string{
		"app.bin":    "good app",
		"plugin.dll": "tampered plugin",
	})
	srv := serveArchive(t, archive)

	f, root := newFetcher(t, fetch.Config{})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}

	staged, err := f.Fetch(context.Background(), desc, remote, plan, nil)
	if staged != nil {
		t.Fatal("mismatched fetch handed over staged files")
	}
	var hashErr *molt.HashMismatchError
	if !errors.As(err, &hashErr) {
		t.Fatalf("error = %v, want HashMismatchError", err)
	}
	if hashErr.Path != "plugin.dll" {
		t.Errorf("mismatch path = %q, want plugin.dll", hashErr.Path)
	}
	assertStagingEmpty(t, root)
}

func TestFetcherOversizedEntryFailsVerification(t *testing.T) {
	t.Parallel()

	// The archive delivers more bytes than the manifest declares.
	// Extraction caps the file, so it can never hash-match.
	remote, plan := planFor(map[string]string{"app.bin": "tiny"})
	archive := testutil.BuildArchive(t, map[string]string{
		"app.bin": strings.Repeat("tiny", 1000),
	})
	srv := serveArchive(t, archive)

	f, root := newFetcher(t, fetch.Config{})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}

	_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
	var hashErr *molt.HashMismatchError
	if !errors.As(err, &hashErr) {
		t.Fatalf("error = %v, want HashMismatchError", err)
	}
	if hashErr.Path != "app.bin" {
		t.Errorf("mismatch path = %q, want app.bin", hashErr.Path)
	}
	assertStagingEmpty(t, root)
}

func TestFetcherMissingPlannedEntry(t *testing.T) {
	t.Parallel()

	remote, plan := planFor(map[string]string{
		"app.bin":    "app",
		"plugin.dll": "plugin",
	})
	archive := testutil.BuildArchive(t, map[string]string{"app.bin": "app"})
	srv := serveArchive(t, archive)

	f, root := newFetcher(t, fetch.Config{})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}

	_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
	if err == nil || !strings.Contains(err.Error(), "missing plugin.dll") {
		t.Fatalf("error = %v, want missing plugin.dll", err)
	}
	assertStagingEmpty(t, root)
}

func TestFetcherArchiveChecksum(t *testing.T) {
	t.Parallel()

	files := map[string]string{"app.bin": "checked content"}
	remote, plan := planFor(files)
	archive := testutil.BuildArchive(t, files)

	t.Run("match", func(t *testing.T) {
		t.Parallel()
		srv := serveArchive(t, archive)
		f, _ := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{
			Version:       "1.2.0",
			ArchiveURL:    srv.URL,
			ArchiveSHA256: testutil.SHA256Hex(archive),
		}
		staged, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		staged.Close()
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()
		srv := serveArchive(t, archive)
		f, root := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{
			Version:       "1.2.0",
			ArchiveURL:    srv.URL,
			ArchiveSHA256: testutil.SHA256Hex([]byte("some other archive")),
		}
		_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		var hashErr *molt.HashMismatchError
		if !errors.As(err, &hashErr) {
			t.Fatalf("error = %v, want HashMismatchError", err)
		}
		if hashErr.Path != "archive.tar.gz" {
			t.Errorf("mismatch path = %q, want archive.tar.gz", hashErr.Path)
		}
		assertStagingEmpty(t, root)
	})
}

func TestFetcherEncryptedArchive(t *testing.T) {
	t.Parallel()

	files := map[string]string{"app.bin": "secret build"}
	remote, plan := planFor(files)
	sealed := testutil.Seal(testutil.BuildArchive(t, files))

	t.Run("no decryptor configured", func(t *testing.T) {
		t.Parallel()
		srv := serveArchive(t, sealed)
		f, root := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL, Encrypted: true}

		_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if err == nil || !strings.Contains(err.Error(), "no decryption identity") {
			t.Fatalf("error = %v, want decryption identity error", err)
		}
		assertStagingEmpty(t, root)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		srv := serveArchive(t, sealed)
		f, _ := newFetcher(t, fetch.Config{Decryptor: testutil.NewTestDecryptor()})
		desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL, Encrypted: true}

		staged, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		defer staged.Close()

		stagedPath, err := staged.Path("app.bin")
		if err != nil {
			t.Fatalf("Path: %v", err)
		}
		got, err := os.ReadFile(stagedPath)
		if err != nil {
			t.Fatalf("reading staged file: %v", err)
		}
		if string(got) != files["app.bin"] {
			t.Errorf("staged content = %q, want %q", got, files["app.bin"])
		}
	})
}

func TestFetcherProgress(t *testing.T) {
	t.Parallel()

	// Incompressible content so the archive spans several copy chunks.
	payload := make([]byte, 128*1024)
	rand.New(rand.NewSource(42)).Read(payload)
	files := map[string]string{"app.bin": string(payload)}
	remote, plan := planFor(files)
	archive := testutil.BuildArchive(t, files)
	srv := serveArchive(t, archive)

	// An interval no test will outlast: one initial event, one final.
	f, _ := newFetcher(t, fetch.Config{ProgressInterval: time.Hour})
	desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}

	rec := testutil.NewEventRecorder()
	staged, err := f.Fetch(context.Background(), desc, remote, plan, rec.Sink())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer staged.Close()

	progress := rec.Progress()
	if len(progress) != 2 {
		t.Fatalf("got %d progress events, want 2 (initial + final)", len(progress))
	}
	var prev int64
	for i, ev := range progress {
		if ev.Received < prev {
			t.Errorf("progress went backwards at event %d: %d after %d", i, ev.Received, prev)
		}
		prev = ev.Received
	}
	final := progress[len(progress)-1]
	if final.Received != int64(len(archive)) {
		t.Errorf("final received = %d, want %d", final.Received, len(archive))
	}
	if final.Total != int64(len(archive)) {
		t.Errorf("final total = %d, want %d", final.Total, len(archive))
	}

	phases := rec.Phases()
	if len(phases) != 2 || phases[0] != molt.PhaseDownloading || phases[1] != molt.PhaseVerifying {
		t.Errorf("phases = %v, want [downloading verifying]", phases)
	}
}

func TestFetcherTransportErrors(t *testing.T) {
	t.Parallel()

	remote, plan := planFor(map[string]string{"app.bin": "content"})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		f, root := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: srv.URL}
		_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if !errors.Is(err, molt.ErrNetwork) {
			t.Fatalf("error = %v, want ErrNetwork", err)
		}
		assertStagingEmpty(t, root)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Parallel()
		f, root := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: "ftp://releases.example.com/v1.tar.gz"}
		_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if err == nil || !strings.Contains(err.Error(), "unsupported archive url scheme") {
			t.Fatalf("error = %v, want unsupported scheme", err)
		}
		assertStagingEmpty(t, root)
	})

	t.Run("s3 without client", func(t *testing.T) {
		t.Parallel()
		f, root := newFetcher(t, fetch.Config{})
		desc := &molt.ReleaseDescriptor{Version: "1.2.0", ArchiveURL: "s3://releases/v1.tar.gz"}
		_, err := f.Fetch(context.Background(), desc, remote, plan, nil)
		if err == nil || !strings.Contains(err.Error(), "s3 registry configuration") {
			t.Fatalf("error = %v, want s3 configuration error", err)
		}
		assertStagingEmpty(t, root)
	})
}
