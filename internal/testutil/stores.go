package testutil

import (
	"fmt"
	"os"
	"sync"
	"time"

	"molt/internal/manifest"
	"molt/internal/molt"
	"molt/internal/settings"
)

// MemorySettingsStore keeps settings in memory.
type MemorySettingsStore struct {
	mu sync.Mutex

	Settings *settings.Settings
	LoadErr  error
	SaveErr  error

	saves int
}

func (s *MemorySettingsStore) Load() (*settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.Settings == nil {
		s.Settings = settings.Default("")
	}
	cp := *s.Settings
	return &cp, nil
}

func (s *MemorySettingsStore) Save(prefs *settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cp := *prefs
	s.Settings = &cp
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemorySettingsStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// MemoryManifestStore keeps the local manifest in memory. A nil
// Manifest behaves like a first run: Load reports os.ErrNotExist and
// ComputeFromDisk answers with Computed.
type MemoryManifestStore struct {
	mu sync.Mutex

	Manifest *manifest.Manifest
	Computed *manifest.Manifest

	LoadErr    error
	SaveErr    error
	ComputeErr error

	saved []*manifest.Manifest
}

func (s *MemoryManifestStore) Load() (*manifest.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.Manifest == nil {
		return nil, fmt.Errorf("no manifest: %w", os.ErrNotExist)
	}
	return s.Manifest, nil
}

func (s *MemoryManifestStore) Save(m *manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Manifest = m
	s.saved = append(s.saved, m)
	return nil
}

func (s *MemoryManifestStore) ComputeFromDisk(version string, builtAt time.Time) (*manifest.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ComputeErr != nil {
		return nil, s.ComputeErr
	}
	if s.Computed != nil {
		return s.Computed, nil
	}
	return &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Version:       version,
		BuiltAt:       builtAt,
	}, nil
}

// Saved returns every manifest passed to Save, in order.
func (s *MemoryManifestStore) Saved() []*manifest.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*manifest.Manifest(nil), s.saved...)
}

// MemoryHistory appends attempt records to a slice.
type MemoryHistory struct {
	mu sync.Mutex

	RecordErr error

	records []*molt.AttemptRecord
}

func (h *MemoryHistory) RecordAttempt(rec *molt.AttemptRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RecordErr != nil {
		return h.RecordErr
	}
	h.records = append(h.records, rec)
	return nil
}

func (h *MemoryHistory) Recent(limit int) ([]*molt.AttemptRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 {
		limit = len(h.records)
	}
	var out []*molt.AttemptRecord
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }

// Records returns every record in insertion order.
func (h *MemoryHistory) Records() []*molt.AttemptRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*molt.AttemptRecord(nil), h.records...)
}
