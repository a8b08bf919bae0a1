package testutil

import (
	"sync"

	"molt/internal/molt"
)

// FakeHostProcess simulates the host application's lifecycle. A zero
// value is a process that has already exited.
type FakeHostProcess struct {
	mu sync.Mutex

	running bool
	// exitAfterPolls counts down on each Running call once a quit was
	// requested; the process exits when it reaches zero. Negative means
	// never exit.
	exitAfterPolls int
	quitRequested  bool

	SignalErr  error
	RunningErr error

	polls int
}

// NewRunningHost returns a host that exits after SignalQuit plus
// pollsUntilExit Running probes. pollsUntilExit < 0 never exits.
func NewRunningHost(pollsUntilExit int) *FakeHostProcess {
	return &FakeHostProcess{running: true, exitAfterPolls: pollsUntilExit}
}

func (h *FakeHostProcess) SignalQuit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SignalErr != nil {
		return h.SignalErr
	}
	h.quitRequested = true
	return nil
}

func (h *FakeHostProcess) Running() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RunningErr != nil {
		return false, h.RunningErr
	}
	h.polls++
	if !h.running {
		return false, nil
	}
	if h.quitRequested && h.exitAfterPolls >= 0 {
		if h.exitAfterPolls == 0 {
			h.running = false
			return false, nil
		}
		h.exitAfterPolls--
	}
	return true, nil
}

// QuitRequested reports whether SignalQuit was called.
func (h *FakeHostProcess) QuitRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quitRequested
}

// Polls returns how many times Running was probed.
func (h *FakeHostProcess) Polls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

// FakeLauncher records launch requests instead of starting processes.
type FakeLauncher struct {
	mu sync.Mutex

	PID int
	Err error

	launched []molt.RelaunchSpec
}

func (l *FakeLauncher) Launch(spec molt.RelaunchSpec) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return 0, l.Err
	}
	l.launched = append(l.launched, spec)
	if l.PID != 0 {
		return l.PID, nil
	}
	return 4242, nil
}

// Launched returns the specs passed to Launch, in order.
func (l *FakeLauncher) Launched() []molt.RelaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]molt.RelaunchSpec(nil), l.launched...)
}
