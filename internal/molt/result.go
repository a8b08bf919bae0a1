package molt

// Outcome classifies how an update attempt ended.
type Outcome int

const (
	// OutcomeUpToDate: the installation already matches the newest
	// release; nothing was downloaded or changed.
	OutcomeUpToDate Outcome = iota
	// OutcomeUpdated: the swap completed and the manifest now records
	// the new version.
	OutcomeUpdated
	// OutcomeSkipped: the scheduler gate refused the check because the
	// interval has not elapsed. A no-op, not an error.
	OutcomeSkipped
	// OutcomeStaged: a newer release was fetched and verified but not
	// applied because auto-apply is off and the caller did not force it.
	OutcomeStaged
	// OutcomeFailed: the attempt ended in an error; Err, RolledBack and
	// BackupDir carry the details.
	OutcomeFailed
)

var outcomeNames = map[Outcome]string{
	OutcomeUpToDate: "up-to-date",
	OutcomeUpdated:  "updated",
	OutcomeSkipped:  "skipped",
	OutcomeStaged:   "staged",
	OutcomeFailed:   "failed",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Result is the terminal report of one pipeline run.
type Result struct {
	Outcome Outcome
	// Version is the release the attempt targeted, or the current
	// version for OutcomeUpToDate.
	Version string
	// Relaunched reports whether the host application was started
	// again after a successful swap.
	Relaunched bool

	// Failure details, set only for OutcomeFailed.
	Err        error
	RolledBack bool
	BackupDir  string
}
