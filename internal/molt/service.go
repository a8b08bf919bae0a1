package molt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"molt/internal/manifest"
	"molt/internal/settings"
)

// DefaultExitTimeout bounds how long the applier waits for the host
// application to exit.
const DefaultExitTimeout = 30 * time.Second

// ServiceConfig carries the dependencies and installation paths for an
// UpdateService.
type ServiceConfig struct {
	Registry  Registry
	Fetcher   Fetcher
	Applier   Applier
	Manifests ManifestStore
	Settings  SettingsStore
	History   HistoryStore
	Launcher  Launcher
	Clock     Clock
	IDGen     IDGenerator
	Logger    Logger

	InstallDir string
	BackupRoot string
	// BootVersion seeds the local manifest when none exists yet and the
	// installation tree must be inventoried on first run.
	BootVersion string
	Relaunch    RelaunchSpec
	ExitTimeout time.Duration
}

// UpdateService orchestrates the whole pipeline: gate, discover, plan,
// fetch, verify, apply. At most one attempt runs at a time; the guarded
// attempt slot enforces it.
type UpdateService struct {
	registry  Registry
	fetcher   Fetcher
	applier   Applier
	manifests ManifestStore
	prefs     SettingsStore
	history   HistoryStore
	launcher  Launcher
	clock     Clock
	idgen     IDGenerator
	logger    Logger

	installDir  string
	backupRoot  string
	bootVersion string
	relaunch    RelaunchSpec
	exitTimeout time.Duration

	mu      sync.Mutex
	attempt *Attempt
}

// NewUpdateService wires an UpdateService from its dependencies.
// Registry, Fetcher, Applier, Manifests, Settings and InstallDir are
// required; Clock, IDGen and Logger default to the real implementations.
func NewUpdateService(cfg ServiceConfig) (*UpdateService, error) {
	switch {
	case cfg.Registry == nil:
		return nil, fmt.Errorf("update service requires a registry")
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("update service requires a fetcher")
	case cfg.Applier == nil:
		return nil, fmt.Errorf("update service requires an applier")
	case cfg.Manifests == nil:
		return nil, fmt.Errorf("update service requires a manifest store")
	case cfg.Settings == nil:
		return nil, fmt.Errorf("update service requires a settings store")
	case cfg.InstallDir == "":
		return nil, fmt.Errorf("update service requires an install dir")
	}

	s := &UpdateService{
		registry:    cfg.Registry,
		fetcher:     cfg.Fetcher,
		applier:     cfg.Applier,
		manifests:   cfg.Manifests,
		prefs:       cfg.Settings,
		history:     cfg.History,
		launcher:    cfg.Launcher,
		clock:       cfg.Clock,
		idgen:       cfg.IDGen,
		logger:      cfg.Logger,
		installDir:  cfg.InstallDir,
		backupRoot:  cfg.BackupRoot,
		bootVersion: cfg.BootVersion,
		relaunch:    cfg.Relaunch,
		exitTimeout: cfg.ExitTimeout,
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.idgen == nil {
		s.idgen = UUIDGenerator{}
	}
	if s.logger == nil {
		s.logger = NewNopLogger()
	}
	if s.bootVersion == "" {
		s.bootVersion = "0.0.0"
	}
	if s.exitTimeout <= 0 {
		s.exitTimeout = DefaultExitTimeout
	}
	return s, nil
}

// RunOptions adjusts one pipeline run.
type RunOptions struct {
	// Force bypasses the scheduler's check-interval gate.
	Force bool
	// ApplyNow applies a staged update even when auto-apply is off.
	ApplyNow bool
	// Host is the still-running host application, nil when it has
	// already exited.
	Host HostProcess
	// Sink observes phase, progress and result events.
	Sink EventSink
}

// CheckResult reports a discovery-only run.
type CheckResult struct {
	// Skipped is true when the interval gate refused the check.
	Skipped        bool
	CurrentVersion string
	// Release is the newer release found, nil when up to date.
	Release *ReleaseDescriptor
}

// InProgress reports whether an attempt currently owns the slot.
func (s *UpdateService) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt != nil
}

// begin claims the single attempt slot or fails with
// ErrAlreadyInProgress.
func (s *UpdateService) begin() (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != nil {
		return nil, ErrAlreadyInProgress
	}
	at := &Attempt{
		ID:        s.idgen.New(),
		StartedAt: s.clock.Now(),
		Phase:     PhaseIdle,
	}
	s.attempt = at
	return at, nil
}

// end releases the attempt slot.
func (s *UpdateService) end() {
	s.mu.Lock()
	s.attempt = nil
	s.mu.Unlock()
}

// Check queries the registry for a newer release without downloading
// anything. Honors the interval gate unless opts.Force is set; a
// successful query always pushes the gate forward. Error set:
// ErrAlreadyInProgress, ErrRegistryEmpty, ErrUnauthorized, network and
// manifest IO failures.
func (s *UpdateService) Check(ctx context.Context, opts RunOptions) (*CheckResult, error) {
	at, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()

	prefs := s.loadSettings()
	if !opts.Force && !prefs.ShouldCheck(s.clock.Now()) {
		s.logger.Debug("check skipped, interval not elapsed", "last_check", prefs.LastCheck)
		return &CheckResult{Skipped: true}, nil
	}

	at.Advance(PhaseChecking, opts.Sink)
	desc, err := s.discover(ctx, prefs)
	if err != nil {
		return nil, err
	}

	local, err := s.loadOrInitManifest()
	if err != nil {
		return nil, err
	}

	res := &CheckResult{CurrentVersion: local.Version}
	if CompareVersions(desc.Version, local.Version) > 0 {
		res.Release = desc
	}
	return res, nil
}

// Run executes the full pipeline and always returns a terminal Result.
// Failures are reported in the Result rather than a separate error so
// callers observe exactly one of: up-to-date, updated, skipped, staged,
// failed.
func (s *UpdateService) Run(ctx context.Context, opts RunOptions) *Result {
	at, err := s.begin()
	if err != nil {
		// The running attempt owns the history trail; this rejection is
		// not recorded.
		res := &Result{Outcome: OutcomeFailed, Err: err}
		opts.Sink.Result(*res)
		return res
	}

	res := s.run(ctx, at, opts)
	s.finish(at, res, opts.Sink)
	s.end()
	return res
}

// run is the pipeline body. It mutates at as phases advance and returns
// the terminal result.
func (s *UpdateService) run(ctx context.Context, at *Attempt, opts RunOptions) *Result {
	sink := trackAttempt(at, opts.Sink)

	prefs := s.loadSettings()
	if !opts.Force && !prefs.ShouldCheck(s.clock.Now()) {
		s.logger.Debug("update skipped, interval not elapsed", "last_check", prefs.LastCheck)
		return &Result{Outcome: OutcomeSkipped}
	}

	at.Advance(PhaseChecking, sink)
	desc, err := s.discover(ctx, prefs)
	if err != nil {
		return s.fail(at, err)
	}

	local, err := s.loadOrInitManifest()
	if err != nil {
		return s.fail(at, err)
	}
	at.FromVersion = local.Version

	if CompareVersions(desc.Version, local.Version) <= 0 {
		s.logger.Info("installation up to date", "version", local.Version, "latest", desc.Version)
		return &Result{Outcome: OutcomeUpToDate, Version: local.Version}
	}
	at.ToVersion = desc.Version

	at.Advance(PhasePlanning, sink)
	remote, err := s.registry.Manifest(ctx, desc)
	if err != nil {
		return s.fail(at, fmt.Errorf("fetching remote manifest: %w", err))
	}

	plan := manifest.Diff(local, remote)
	if plan.Empty() {
		// Same content republished under a new version: record the
		// version without touching any installed file.
		if err := s.manifests.Save(remote); err != nil {
			s.logger.Warn("saving manifest for zero-delta release", "error", err)
		}
		s.logger.Info("no file changes in release", "version", desc.Version)
		return &Result{Outcome: OutcomeUpToDate, Version: desc.Version}
	}
	s.logger.Info("delta planned",
		"version", desc.Version,
		"add", len(plan.Add),
		"update", len(plan.Update),
		"remove", len(plan.Remove),
		"transfer_bytes", plan.TransferSize(),
	)

	if err := ctx.Err(); err != nil {
		return s.fail(at, fmt.Errorf("attempt cancelled: %w", err))
	}

	staged, err := s.fetcher.Fetch(ctx, desc, remote, plan, sink)
	if err != nil {
		return s.fail(at, err)
	}
	defer func() {
		if err := staged.Close(); err != nil {
			s.logger.Warn("cleaning staging directory", "error", err)
		}
	}()
	at.Advance(PhaseStaged, sink)

	if !opts.ApplyNow && !prefs.AutoApply {
		s.logger.Info("update staged but not applied, auto-apply is off", "version", desc.Version)
		return &Result{Outcome: OutcomeStaged, Version: desc.Version}
	}

	report, err := s.applier.Apply(ctx, &ApplyRequest{
		InstallDir:  s.installDir,
		Plan:        plan,
		NewManifest: remote,
		Staged:      staged,
		Manifests:   s.manifests,
		BackupRoot:  s.backupRoot,
		Host:        opts.Host,
		Launcher:    s.launcher,
		Relaunch:    s.relaunch,
		ExitTimeout: s.exitTimeout,
		Attempt:     at,
		Sink:        sink,
	})
	if err != nil {
		res := s.fail(at, err)
		if report != nil {
			res.RolledBack = report.RolledBack
			res.BackupDir = report.BackupDir
		}
		return res
	}

	s.logger.Info("update applied",
		"from", at.FromVersion,
		"to", at.ToVersion,
		"relaunched", report.Relaunched,
	)
	return &Result{Outcome: OutcomeUpdated, Version: desc.Version, Relaunched: report.Relaunched}
}

// discover asks the registry for the newest release and pushes the
// check gate forward on success.
func (s *UpdateService) discover(ctx context.Context, prefs *settings.Settings) (*ReleaseDescriptor, error) {
	desc, err := s.registry.Latest(ctx, prefs.Repository)
	if err != nil {
		if errors.Is(err, ErrRegistryEmpty) && prefs.AuthToken == "" {
			return nil, fmt.Errorf("%w (the repository may be private: configure a token with 'molt login')", err)
		}
		return nil, err
	}

	prefs.RecordCheck(s.clock.Now())
	if err := s.prefs.Save(prefs); err != nil {
		s.logger.Warn("persisting check timestamp", "error", err)
	}
	return desc, nil
}

// loadSettings reads the settings record, falling back to defaults with
// a warning so a corrupt record cannot brick updating.
func (s *UpdateService) loadSettings() *settings.Settings {
	prefs, err := s.prefs.Load()
	if err != nil {
		s.logger.Warn("loading settings, using defaults", "error", err)
		return settings.Default("")
	}
	return prefs
}

// loadOrInitManifest returns the local manifest, inventorying the
// installation tree on first run when no manifest exists yet.
func (s *UpdateService) loadOrInitManifest() (*manifest.Manifest, error) {
	m, err := s.manifests.Load()
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading local manifest: %w", err)
	}

	s.logger.Info("no local manifest, inventorying installation", "install_dir", s.installDir, "version", s.bootVersion)
	m, err = s.manifests.ComputeFromDisk(s.bootVersion, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("inventorying installation: %w", err)
	}
	if err := s.manifests.Save(m); err != nil {
		return nil, fmt.Errorf("saving initial manifest: %w", err)
	}
	return m, nil
}

// RebuildManifest re-inventories the installation tree and overwrites
// the local manifest. version empty keeps the current manifest's
// version (or the boot version when none exists). Rejected with
// ErrAlreadyInProgress while an attempt is running.
func (s *UpdateService) RebuildManifest(version string) (*manifest.Manifest, error) {
	if _, err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	if version == "" {
		version = s.bootVersion
		if existing, err := s.manifests.Load(); err == nil {
			version = existing.Version
		}
	}

	m, err := s.manifests.ComputeFromDisk(version, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("inventorying installation: %w", err)
	}
	if err := s.manifests.Save(m); err != nil {
		return nil, fmt.Errorf("saving manifest: %w", err)
	}
	s.logger.Info("manifest rebuilt", "version", m.Version, "files", len(m.Files))
	return m, nil
}

// Status summarizes the installation for display.
type Status struct {
	CurrentVersion string
	InstallDir     string
	Repository     string
	AutoApply      bool
	LastCheck      time.Time
	NextCheck      time.Time
	InProgress     bool
}

// Status reports the current version and scheduler state. Read-only;
// runs even while an attempt is in flight.
func (s *UpdateService) Status() (*Status, error) {
	st := &Status{
		InstallDir: s.installDir,
		InProgress: s.InProgress(),
	}

	m, err := s.manifests.Load()
	switch {
	case err == nil:
		st.CurrentVersion = m.Version
	case errors.Is(err, os.ErrNotExist):
		// First run, no inventory yet.
	default:
		return nil, fmt.Errorf("loading local manifest: %w", err)
	}

	prefs := s.loadSettings()
	st.Repository = prefs.Repository
	st.AutoApply = prefs.AutoApply
	st.LastCheck = prefs.LastCheck
	if !prefs.LastCheck.IsZero() {
		st.NextCheck = prefs.LastCheck.Add(prefs.Interval())
	}
	return st, nil
}

// fail wraps an error into a failed Result and logs it.
func (s *UpdateService) fail(at *Attempt, err error) *Result {
	at.Err = err
	s.logger.Error("update attempt failed",
		"attempt", at.ID,
		"phase", at.Phase.String(),
		"error", err,
	)
	return &Result{Outcome: OutcomeFailed, Version: at.ToVersion, Err: err}
}

// finish emits the terminal result and appends the attempt to history.
// Gate-skipped runs leave no history trail.
func (s *UpdateService) finish(at *Attempt, res *Result, sink EventSink) {
	sink.Result(*res)

	if s.history == nil || res.Outcome == OutcomeSkipped {
		return
	}
	rec := &AttemptRecord{
		ID:          at.ID,
		StartedAt:   at.StartedAt,
		FinishedAt:  s.clock.Now(),
		FromVersion: at.FromVersion,
		ToVersion:   at.ToVersion,
		Phase:       at.Phase.String(),
		Outcome:     res.Outcome.String(),
		RolledBack:  res.RolledBack,
		BackupDir:   res.BackupDir,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := s.history.RecordAttempt(rec); err != nil {
		s.logger.Warn("recording attempt history", "error", err)
	}
}

// trackAttempt wraps a sink so phase and progress events are mirrored
// into the attempt value before reaching the caller's sink.
func trackAttempt(at *Attempt, sink EventSink) EventSink {
	return func(ev Event) {
		switch e := ev.(type) {
		case PhaseEvent:
			at.Phase = e.Phase
		case ProgressEvent:
			at.DownloadedBytes = e.Received
		}
		if sink != nil {
			sink(ev)
		}
	}
}
