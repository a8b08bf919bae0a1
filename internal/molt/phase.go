package molt

// Phase identifies where in the update pipeline an attempt currently is.
// Checking through Staged are pipeline phases; AwaitingExit through
// Relaunched are the applier's swap sequence. RollingBack and RolledBack
// form the recovery branch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhasePlanning
	PhaseDownloading
	PhaseVerifying
	PhaseStaged
	PhaseAwaitingExit
	PhaseBackingUp
	PhaseReplacing
	PhaseManifestWritten
	PhaseRelaunched
	PhaseRollingBack
	PhaseRolledBack
)

var phaseNames = map[Phase]string{
	PhaseIdle:            "idle",
	PhaseChecking:        "checking",
	PhasePlanning:        "planning",
	PhaseDownloading:     "downloading",
	PhaseVerifying:       "verifying",
	PhaseStaged:          "staged",
	PhaseAwaitingExit:    "awaiting-exit",
	PhaseBackingUp:       "backing-up",
	PhaseReplacing:       "replacing",
	PhaseManifestWritten: "manifest-written",
	PhaseRelaunched:      "relaunched",
	PhaseRollingBack:     "rolling-back",
	PhaseRolledBack:      "rolled-back",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the phase ends an attempt.
func (p Phase) Terminal() bool {
	return p == PhaseRelaunched || p == PhaseRolledBack
}

// applierTransitions are the legal forward edges of the swap sequence.
// Any phase from BackingUp onward may also branch to RollingBack.
var applierTransitions = map[Phase]Phase{
	PhaseStaged:          PhaseAwaitingExit,
	PhaseAwaitingExit:    PhaseBackingUp,
	PhaseBackingUp:       PhaseReplacing,
	PhaseReplacing:       PhaseManifestWritten,
	PhaseManifestWritten: PhaseRelaunched,
}

// CanTransition reports whether moving from p to next is a legal step of
// the applier's state machine. Failures before the backup is complete
// abort in place, so the rollback branch only opens once live files may
// have been modified.
func (p Phase) CanTransition(next Phase) bool {
	if applierTransitions[p] == next {
		return true
	}
	if next == PhaseRollingBack {
		return p == PhaseReplacing || p == PhaseManifestWritten
	}
	if next == PhaseRolledBack {
		return p == PhaseRollingBack
	}
	return false
}
