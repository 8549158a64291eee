package gossip

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Watcher is used to receive notifications when the node learns a new
// rumor.
//
// The implementations of Watcher must not block.
type Watcher interface {
	// OnRumor notifies that a previously unknown rumor was stored, either
	// from a local inform or received from a peer.
	OnRumor(payload []byte)
}

type nopWatcher struct {
}

func newNopWatcher() *nopWatcher {
	return &nopWatcher{}
}

func (w *nopWatcher) OnRumor(_ []byte) {}

var _ Watcher = &nopWatcher{}

// Subscription receives rumors from a Feed.
type Subscription struct {
	ch   chan []byte
	feed *Feed
	once sync.Once
}

// C returns the channel that receives new rumors. The channel is closed when
// the subscription is closed.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close unsubscribes from the feed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.unsubscribe(s)
	})
}

// Feed is a Watcher that fans out new rumors to subscribers.
//
// Each subscriber has a buffered channel. If a subscriber falls behind so its
// buffer is full, rumors for that subscriber are dropped rather than blocking
// gossip.
type Feed struct {
	subscribers map[*Subscription]struct{}

	// mu protects the above fields.
	mu sync.Mutex

	closed bool

	bufferSize int

	dropped *atomic.Uint64
}

func NewFeed(bufferSize int) *Feed {
	return &Feed{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
		dropped:     atomic.NewUint64(0),
	}
}

// Subscribe returns a new subscription. The caller must close the
// subscription when done.
func (f *Feed) Subscribe() *Subscription {
	sub := &Subscription{
		ch:   make(chan []byte, f.bufferSize),
		feed: f,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(sub.ch)
		return sub
	}

	f.subscribers[sub] = struct{}{}
	return sub
}

func (f *Feed) OnRumor(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers {
		select {
		case sub.ch <- payload:
		default:
			f.dropped.Inc()
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subscribers)
}

// Dropped returns the number of rumors dropped due to full subscriber
// buffers.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Register registers the feeds metrics.
func (f *Feed) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "feed",
				Name:      "dropped_total",
				Help:      "Total number of rumors dropped due to slow subscribers",
			},
			func() float64 {
				return float64(f.Dropped())
			},
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "rumor",
				Subsystem: "feed",
				Name:      "subscribers",
				Help:      "Number of active rumor subscribers",
			},
			func() float64 {
				return float64(f.Subscribers())
			},
		),
	)
}

// Close closes every subscription. Subscribing to a closed feed returns a
// closed subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for sub := range f.subscribers {
		delete(f.subscribers, sub)
		close(sub.ch)
	}
}

func (f *Feed) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subscribers[sub]; !ok {
		// Already closed by the feed.
		return
	}
	delete(f.subscribers, sub)
	close(sub.ch)
}

var _ Watcher = &Feed{}
