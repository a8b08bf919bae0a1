// Package fetch downloads a release archive into a private staging
// directory, extracts the files a delta plan needs, and verifies every
// one of them against the remote manifest before anything is handed to
// the applier.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"molt/internal/manifest"
	"molt/internal/molt"
)

const archiveName = "archive.tar.gz"

// Config carries the Fetcher's dependencies.
type Config struct {
	// StagingRoot is the directory under which each fetch creates its
	// private staging directory. Never inside the installation.
	StagingRoot string
	// HTTPClient overrides the default client for http(s) archive URLs.
	HTTPClient *http.Client
	// S3 enables s3:// archive URLs when set.
	S3 *s3.Client
	// Decryptor unwraps encrypted archives. Required only when a
	// release descriptor is marked encrypted.
	Decryptor molt.ArchiveDecryptor
	// AuthToken is sent as a bearer token on http(s) downloads, for
	// registries that protect their archives.
	AuthToken string
	UserAgent string
	IDGen     molt.IDGenerator
	Logger    molt.Logger
	// ProgressInterval bounds progress-event frequency. Zero means
	// DefaultProgressInterval.
	ProgressInterval time.Duration
}

// Fetcher implements molt.Fetcher over http(s) and s3 transports.
type Fetcher struct {
	stagingRoot      string
	httpClient       *http.Client
	s3               *s3.Client
	decryptor        molt.ArchiveDecryptor
	token            string
	userAgent        string
	idgen            molt.IDGenerator
	logger           molt.Logger
	progressInterval time.Duration
}

// New creates a Fetcher. StagingRoot is required.
func New(cfg Config) (*Fetcher, error) {
	if cfg.StagingRoot == "" {
		return nil, fmt.Errorf("fetcher requires a staging root")
	}

	f := &Fetcher{
		stagingRoot:      cfg.StagingRoot,
		httpClient:       cfg.HTTPClient,
		s3:               cfg.S3,
		decryptor:        cfg.Decryptor,
		token:            cfg.AuthToken,
		userAgent:        cfg.UserAgent,
		idgen:            cfg.IDGen,
		logger:           cfg.Logger,
		progressInterval: cfg.ProgressInterval,
	}
	if f.httpClient == nil {
		// Downloads can be large; rely on ctx for cancellation instead
		// of a transport timeout.
		f.httpClient = &http.Client{}
	}
	if f.userAgent == "" {
		f.userAgent = "molt-updater"
	}
	if f.idgen == nil {
		f.idgen = molt.UUIDGenerator{}
	}
	if f.logger == nil {
		f.logger = molt.NewNopLogger()
	}
	if f.progressInterval <= 0 {
		f.progressInterval = DefaultProgressInterval
	}
	return f, nil
}

// Fetch downloads, extracts and verifies the delta for one release.
// Every call stages from scratch into a fresh directory; on any error
// the directory is removed and nothing is handed over.
func (f *Fetcher) Fetch(ctx context.Context, desc *molt.ReleaseDescriptor, remote *manifest.Manifest, plan *manifest.DeltaPlan, sink molt.EventSink) (*molt.StagedFiles, error) {
	stagingDir := filepath.Join(f.stagingRoot, f.idgen.New())
	if err := os.MkdirAll(stagingDir, 0700); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(stagingDir)
		}
	}()

	sink.Phase(molt.PhaseDownloading)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := f.downloadArchive(ctx, desc.ArchiveURL, archivePath, sink); err != nil {
		return nil, err
	}

	sink.Phase(molt.PhaseVerifying)
	if desc.ArchiveSHA256 != "" {
		sum, err := manifest.HashFile(archivePath)
		if err != nil {
			return nil, fmt.Errorf("hashing archive: %w", err)
		}
		if sum != desc.ArchiveSHA256 {
			return nil, &molt.HashMismatchError{Path: archiveName, Want: desc.ArchiveSHA256, Got: sum}
		}
	}

	staged, err := f.extractArchive(desc, archivePath, plan, stagingDir)
	if err != nil {
		return nil, err
	}

	for _, entry := range plan.Fetched() {
		stagedPath, ok := staged[entry.Path]
		if !ok {
			return nil, fmt.Errorf("release archive for %s is missing %s", desc.Version, entry.Path)
		}
		sum, err := manifest.HashFile(stagedPath)
		if err != nil {
			return nil, fmt.Errorf("hashing staged %s: %w", entry.Path, err)
		}
		if sum != entry.SHA256 {
			return nil, &molt.HashMismatchError{Path: entry.Path, Want: entry.SHA256, Got: sum}
		}
	}

	f.logger.Info("release staged and verified",
		"version", desc.Version,
		"files", len(staged),
		"staging_dir", stagingDir,
	)
	success = true
	return molt.NewStagedFiles(stagingDir, staged), nil
}

// downloadArchive streams the archive to disk with bounded progress
// events. The final event always carries the full byte count.
func (f *Fetcher) downloadArchive(ctx context.Context, rawURL, archivePath string, sink molt.EventSink) error {
	dst, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	meter := newProgressMeter(sink, f.progressInterval)
	err = f.download(ctx, rawURL, dst, meter)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing archive file: %w", cerr)
	}
	if err != nil {
		return err
	}
	meter.Finish()
	return nil
}

// extractArchive opens the downloaded archive, unwrapping encryption
// when the descriptor requires it, and extracts the planned entries.
func (f *Fetcher) extractArchive(desc *molt.ReleaseDescriptor, archivePath string, plan *manifest.DeltaPlan, stagingDir string) (map[string]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if desc.Encrypted {
		if f.decryptor == nil {
			return nil, fmt.Errorf("release %s is encrypted but no decryption identity is configured", desc.Version)
		}
		r, err = f.decryptor.Decrypt(r)
		if err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
	}

	wanted := make(map[string]manifest.FileEntry)
	for _, entry := range plan.Fetched() {
		wanted[entry.Path] = entry
	}
	return extractPlanned(r, wanted, stagingDir)
}

// Compile-time check that Fetcher implements molt.Fetcher
var _ molt.Fetcher = (*Fetcher)(nil)
