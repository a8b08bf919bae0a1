// Package app is the wiring layer between the CLI and the update
// service. It constructs every dependency from config and manages their
// lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"molt/internal/apply"
	"molt/internal/config"
	"molt/internal/encryption"
	"molt/internal/fetch"
	"molt/internal/history"
	"molt/internal/hostproc"
	"molt/internal/manifest"
	"molt/internal/molt"
	"molt/internal/registry"
	"molt/internal/settings"
)

// The wiring point is where the concrete stores must line up with the
// service's contracts.
var (
	_ molt.ManifestStore = (*manifest.FileStore)(nil)
	_ molt.SettingsStore = (*settings.FileStore)(nil)
)

// App owns a fully wired UpdateService plus the resources the CLI needs
// around it: the attempt history for display and the log file handle.
// The caller must call Close when done.
type App struct {
	cfg     *config.Config
	service *molt.UpdateService
	history molt.HistoryStore
	logFile *os.File
	logger  molt.Logger
}

// NewApp creates a fully wired App from the given config.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.InstallDir == "" {
		return nil, fmt.Errorf("install_dir not configured")
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	prefs := settings.NewFileStore(cfg.SettingsPath())
	loaded, err := prefs.Load()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	reg, s3c, err := registry.NewRegistryFromConfig(ctx, cfg.Registry, loaded.AuthToken)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating registry: %w", err)
	}

	decryptor, err := encryption.NewDecryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating decryptor: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{
		StagingRoot: cfg.StagingDir(),
		S3:          s3c,
		Decryptor:   decryptor,
		AuthToken:   loaded.AuthToken,
		Logger:      logger,
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	hist, err := history.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening attempt history: %w", err)
	}

	manifests := manifest.NewFileStore(cfg.ManifestPath(), cfg.InstallDir, manifest.ComputeOptions{
		Ignore: cfg.Filesystem.Ignore,
	})

	svc, err := molt.NewUpdateService(molt.ServiceConfig{
		Registry:    reg,
		Fetcher:     fetcher,
		Applier:     apply.New(apply.Config{Logger: logger}),
		Manifests:   manifests,
		Settings:    prefs,
		History:     hist,
		Launcher:    hostproc.ExecLauncher{Dir: cfg.InstallDir},
		Logger:      logger,
		InstallDir:  cfg.InstallDir,
		BackupRoot:  cfg.BackupRoot(),
		BootVersion: cfg.InitialVersion,
		Relaunch:    molt.RelaunchSpec{Path: cfg.Relaunch.Command, Args: cfg.Relaunch.Args},
		ExitTimeout: time.Duration(cfg.Host.ExitTimeoutSeconds) * time.Second,
	})
	if err != nil {
		hist.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating update service: %w", err)
	}

	return &App{
		cfg:     cfg,
		service: svc,
		history: hist,
		logFile: logFile,
		logger:  logger,
	}, nil
}

// Check queries the registry for a newer release without downloading.
func (a *App) Check(ctx context.Context, opts molt.RunOptions) (*molt.CheckResult, error) {
	return a.service.Check(ctx, opts)
}

// Update runs the full pipeline and returns its terminal result.
func (a *App) Update(ctx context.Context, opts molt.RunOptions) *molt.Result {
	return a.service.Run(ctx, opts)
}

// Status summarizes the installation and scheduler state.
func (a *App) Status() (*molt.Status, error) {
	return a.service.Status()
}

// History returns up to limit recent attempt records, newest first.
func (a *App) History(limit int) ([]*molt.AttemptRecord, error) {
	return a.history.Recent(limit)
}

// RebuildManifest re-inventories the installation tree. An empty
// version keeps the currently recorded one.
func (a *App) RebuildManifest(version string) (*manifest.Manifest, error) {
	return a.service.RebuildManifest(version)
}

// Host resolves the running host process: an explicit --host-pid flag
// wins, then the configured pidfile. Returns nil when the host has
// already exited.
func (a *App) Host(pidFlag int) (molt.HostProcess, error) {
	pid := pidFlag
	if pid <= 0 && a.cfg.Host.PIDFile != "" {
		filePID, err := hostproc.ReadPIDFile(a.cfg.Host.PIDFile)
		if err != nil {
			return nil, fmt.Errorf("reading pidfile: %w", err)
		}
		pid = filePID
	}
	if pid <= 0 {
		return nil, nil
	}
	return hostproc.PIDProcess{PID: pid}, nil
}

// Close releases the attempt history and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing attempt history: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
