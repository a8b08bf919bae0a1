package testutil

import (
	"context"
	"sync"

	"molt/internal/manifest"
	"molt/internal/molt"
)

// FakeFetcher hands back a prepared staged set without touching the
// network. It mirrors the real fetcher's phase announcements so sinks
// observe the same sequence.
type FakeFetcher struct {
	mu sync.Mutex

	Staged *molt.StagedFiles
	Err    error

	calls    int
	lastPlan *manifest.DeltaPlan
}

func (f *FakeFetcher) Fetch(_ context.Context, _ *molt.ReleaseDescriptor, _ *manifest.Manifest, plan *manifest.DeltaPlan, sink molt.EventSink) (*molt.StagedFiles, error) {
	f.mu.Lock()
	f.calls++
	f.lastPlan = plan
	f.mu.Unlock()

	sink.Phase(molt.PhaseDownloading)
	sink.Phase(molt.PhaseVerifying)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Staged != nil {
		return f.Staged, nil
	}
	return molt.NewStagedFiles("", nil), nil
}

// Calls returns how many times Fetch was invoked.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastPlan returns the delta plan from the most recent Fetch.
func (f *FakeFetcher) LastPlan() *manifest.DeltaPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPlan
}

// FakeApplier records the apply request and returns a prepared report.
// On success it walks the attempt through the swap phases so history
// records end on a terminal phase.
type FakeApplier struct {
	mu sync.Mutex

	Report *molt.ApplyReport
	Err    error

	calls   int
	lastReq *molt.ApplyRequest
}

func (a *FakeApplier) Apply(_ context.Context, req *molt.ApplyRequest) (*molt.ApplyReport, error) {
	a.mu.Lock()
	a.calls++
	a.lastReq = req
	a.mu.Unlock()

	if a.Err != nil {
		return a.Report, a.Err
	}
	for _, p := range []molt.Phase{
		molt.PhaseAwaitingExit,
		molt.PhaseBackingUp,
		molt.PhaseReplacing,
		molt.PhaseManifestWritten,
		molt.PhaseRelaunched,
	} {
		req.Attempt.Advance(p, req.Sink)
	}
	if a.Report != nil {
		return a.Report, nil
	}
	return &molt.ApplyReport{}, nil
}

// Calls returns how many times Apply was invoked.
func (a *FakeApplier) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// LastRequest returns the most recent apply request.
func (a *FakeApplier) LastRequest() *molt.ApplyRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReq
}
