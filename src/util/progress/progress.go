package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker accumulates bytes and files copied across a whole directory tree
// and periodically writes a single-line status to out. A nil *Tracker is
// valid and records nothing.
type Tracker struct {
	out         io.Writer
	label       string
	mu          sync.Mutex
	bytes       int64
	files       int64
	lastPrinted time.Time
	interval    time.Duration
}

// NewTracker creates a Tracker writing to out. If out is nil the tracker
// only counts.
func NewTracker(out io.Writer, label string) *Tracker {
	return &Tracker{out: out, label: label, interval: 200 * time.Millisecond}
}

// Reader wraps r so every byte read is counted.
func (t *Tracker) Reader(r io.Reader) io.Reader {
	if t == nil {
		return r
	}
	return &countingReader{r: r, t: t}
}

// FileDone records one completed file.
func (t *Tracker) FileDone() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.files++
	t.maybePrint(false)
	t.mu.Unlock()
}

// Finish prints the final totals and terminates the status line.
func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybePrint(true)
	if t.out != nil {
		fmt.Fprint(t.out, "\n")
	}
}

// Totals returns bytes and files counted so far.
func (t *Tracker) Totals() (bytes, files int64) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes, t.files
}

func (t *Tracker) add(n int) {
	t.mu.Lock()
	t.bytes += int64(n)
	t.maybePrint(false)
	t.mu.Unlock()
}

// maybePrint must be called with mu held.
func (t *Tracker) maybePrint(force bool) {
	if t.out == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(t.lastPrinted) < t.interval {
		return
	}
	t.lastPrinted = now
	fmt.Fprintf(t.out, "\r[%s] %d files, %s", t.label, t.files, humanize.IBytes(uint64(t.bytes)))
}

type countingReader struct {
	r io.Reader
	t *Tracker
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.t.add(n)
	}
	return n, err
}
