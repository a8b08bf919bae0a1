package molt

// Event is a progress notification emitted while an update attempt runs.
// The concrete types are PhaseEvent, ProgressEvent and ResultEvent.
type Event interface {
	isEvent()
}

// PhaseEvent announces entry into a pipeline or applier phase.
type PhaseEvent struct {
	Phase Phase
}

// ProgressEvent reports download progress. Received is monotonically
// non-decreasing within an attempt; Total is 0 when unknown.
type ProgressEvent struct {
	Received int64
	Total    int64
}

// ResultEvent carries the attempt's terminal result.
type ResultEvent struct {
	Result Result
}

func (PhaseEvent) isEvent()    {}
func (ProgressEvent) isEvent() {}
func (ResultEvent) isEvent()   {}

// EventSink receives events from a running attempt. A nil sink is valid
// and discards everything; senders use the methods below, which are
// nil-safe. Sinks must not block: they are called synchronously from the
// pipeline.
type EventSink func(Event)

// Phase emits a PhaseEvent.
func (s EventSink) Phase(p Phase) {
	if s != nil {
		s(PhaseEvent{Phase: p})
	}
}

// Progress emits a ProgressEvent.
func (s EventSink) Progress(received, total int64) {
	if s != nil {
		s(ProgressEvent{Received: received, Total: total})
	}
}

// Result emits a ResultEvent.
func (s EventSink) Result(r Result) {
	if s != nil {
		s(ResultEvent{Result: r})
	}
}
