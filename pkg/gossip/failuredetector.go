package gossip

import (
	"sync"
	"time"
)

// arrivalWindow tracks the intervals between packets received from a peer in
// a fixed size circular buffer.
type arrivalWindow struct {
	intervals []time.Duration
	// next is the index of the next interval to write, which wraps around
	// once the buffer is full.
	next int
	full bool
	sum  time.Duration

	last time.Time

	bootstrapInterval time.Duration
}

func newArrivalWindow(bootstrapInterval time.Duration, sampleSize int) *arrivalWindow {
	return &arrivalWindow{
		intervals:         make([]time.Duration, sampleSize),
		bootstrapInterval: bootstrapInterval,
	}
}

// Add records a packet arrived at the given time.
func (w *arrivalWindow) Add(t time.Time) {
	// The first sample uses the bootstrap interval to avoid false positives
	// before we have a meaningful mean.
	interval := w.bootstrapInterval
	if !w.last.IsZero() {
		interval = t.Sub(w.last)
	}
	w.last = t

	if w.next == len(w.intervals) {
		w.next = 0
		w.full = true
	}
	if w.full {
		w.sum -= w.intervals[w.next]
	}
	w.intervals[w.next] = interval
	w.sum += interval
	w.next++
}

// Mean returns the mean arrival interval.
func (w *arrivalWindow) Mean() time.Duration {
	n := w.next
	if w.full {
		n = len(w.intervals)
	}
	if n == 0 {
		return 0
	}
	return w.sum / time.Duration(n)
}

// Phi returns the time since the last arrival relative to the mean arrival
// interval.
func (w *arrivalWindow) Phi(t time.Time) float64 {
	mean := w.Mean()
	if w.last.IsZero() || mean <= 0 {
		panic("cannot sample phi before any samples arrived")
	}
	return float64(t.Sub(w.last)) / float64(mean)
}

// failureDetector monitors the liveness of peers based on received packets.
type failureDetector interface {
	Report(addr string)
	SuspicionLevel(addr string) float64
}

// accrualFailureDetector implements failureDetector using a simplified "Phi
// Accrual Failure Detector".
type accrualFailureDetector struct {
	windows map[string]*arrivalWindow

	// mu protects the above fields.
	mu sync.Mutex

	bootstrapInterval time.Duration
	sampleSize        int
}

func newAccrualFailureDetector(
	bootstrapInterval time.Duration,
	sampleSize int,
) *accrualFailureDetector {
	return &accrualFailureDetector{
		windows:           make(map[string]*arrivalWindow),
		bootstrapInterval: bootstrapInterval,
		sampleSize:        sampleSize,
	}
}

// Report reports a packet was received from the peer with the given address.
func (d *accrualFailureDetector) Report(addr string) {
	d.ReportAt(addr, time.Now())
}

func (d *accrualFailureDetector) ReportAt(addr string, t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[addr]
	if !ok {
		w = newArrivalWindow(d.bootstrapInterval, d.sampleSize)
		d.windows[addr] = w
	}
	w.Add(t)
}

// SuspicionLevel returns the suspicion level of whether the peer with the
// given address is unreachable. The higher the level, the more likely the
// peer is unreachable.
func (d *accrualFailureDetector) SuspicionLevel(addr string) float64 {
	return d.SuspicionLevelAt(addr, time.Now())
}

func (d *accrualFailureDetector) SuspicionLevelAt(addr string, t time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[addr]
	if !ok {
		// If we've never received a packet from the peer, assume it is
		// reachable by starting as though a packet just arrived.
		w = newArrivalWindow(d.bootstrapInterval, d.sampleSize)
		w.Add(t)
		d.windows[addr] = w
	}
	return w.Phi(t)
}

var _ failureDetector = &accrualFailureDetector{}
