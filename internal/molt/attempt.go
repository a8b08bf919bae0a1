package molt

import "time"

// Attempt is the transient state of one in-flight update. Exactly one
// may exist per service at a time; the service's guarded slot holding
// the value is what enforces single-flight, and the value is dropped on
// reaching a terminal phase.
type Attempt struct {
	ID              string
	StartedAt       time.Time
	Phase           Phase
	FromVersion     string
	ToVersion       string
	DownloadedBytes int64
	BackupDir       string
	Err             error
}

// Advance moves the attempt to the given phase and announces it on the
// sink.
func (a *Attempt) Advance(p Phase, sink EventSink) {
	a.Phase = p
	sink.Phase(p)
}
