package testutil

import (
	"context"
	"sync"

	"molt/internal/manifest"
	"molt/internal/molt"
)

// FakeRegistry serves one fixed release and its remote manifest.
type FakeRegistry struct {
	mu sync.Mutex

	// Release is returned by Latest; nil answers ErrRegistryEmpty.
	Release *molt.ReleaseDescriptor
	// Remote is returned by Manifest.
	Remote *manifest.Manifest

	LatestErr   error
	ManifestErr error

	latestCalls   int
	manifestCalls int
}

func (r *FakeRegistry) Latest(_ context.Context, _ string) (*molt.ReleaseDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestCalls++
	if r.LatestErr != nil {
		return nil, r.LatestErr
	}
	if r.Release == nil {
		return nil, molt.ErrRegistryEmpty
	}
	return r.Release, nil
}

func (r *FakeRegistry) Manifest(_ context.Context, _ *molt.ReleaseDescriptor) (*manifest.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifestCalls++
	if r.ManifestErr != nil {
		return nil, r.ManifestErr
	}
	if r.Remote == nil {
		return nil, molt.ErrRegistryEmpty
	}
	return r.Remote, nil
}

// LatestCalls returns how many times Latest was invoked.
func (r *FakeRegistry) LatestCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestCalls
}

// ManifestCalls returns how many times Manifest was invoked.
func (r *FakeRegistry) ManifestCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifestCalls
}
