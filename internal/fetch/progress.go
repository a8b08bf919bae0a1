package fetch

import (
	"io"
	"sync"
	"time"

	"molt/internal/molt"
)

// DefaultProgressInterval bounds how often download progress events are
// emitted. Observers get at most one event per interval plus a final
// one, never one per write.
const DefaultProgressInterval = 500 * time.Millisecond

// progressMeter accumulates downloaded bytes and forwards them to an
// event sink at a bounded rate. Received only ever grows, so progress
// stays monotonic even when parts arrive out of order. Safe for
// concurrent use: the S3 downloader writes parts from several
// goroutines.
type progressMeter struct {
	sink     molt.EventSink
	interval time.Duration

	mu       sync.Mutex
	received int64
	total    int64
	lastEmit time.Time
}

func newProgressMeter(sink molt.EventSink, interval time.Duration) *progressMeter {
	return &progressMeter{sink: sink, interval: interval}
}

// SetTotal records the expected byte count, when known.
func (p *progressMeter) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total > 0 {
		p.total = total
	}
}

// Add accounts n more bytes and emits an event when the interval has
// elapsed since the last one.
func (p *progressMeter) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received += int64(n)

	now := time.Now()
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.interval {
		return
	}
	p.lastEmit = now
	p.sink.Progress(p.received, p.total)
}

// Finish emits the final byte count unconditionally.
func (p *progressMeter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastEmit = time.Now()
	p.sink.Progress(p.received, p.total)
}

// progressWriter counts bytes flowing through an io.Writer.
type progressWriter struct {
	w io.Writer
	m *progressMeter
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	if n > 0 {
		pw.m.Add(n)
	}
	return n, err
}

// progressWriterAt counts bytes written by the concurrent S3 download
// manager, which delivers parts via WriteAt.
type progressWriterAt struct {
	wa io.WriterAt
	m  *progressMeter
}

func (pw *progressWriterAt) WriteAt(b []byte, off int64) (int, error) {
	n, err := pw.wa.WriteAt(b, off)
	if n > 0 {
		pw.m.Add(n)
	}
	return n, err
}
