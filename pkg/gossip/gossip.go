package gossip

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/pkg/rumor"
)

const (
	failureDetectorSampleSize = 50
)

// Gossip disseminates rumors to the other nodes in the cluster.
//
// Each round, Gossip pushes hot rumors to a random subset of peers and sends
// a pull request to a random peer. Rumors received from peers are stored
// and circulated until they age out.
type Gossip struct {
	nodeID string

	store *rumor.Store
	peers *peerSet

	// mu protects the above fields. rumor.Store is not thread safe so every
	// access must hold mu.
	mu sync.Mutex

	config *Config

	packetListener *packetListener
	packetConn     net.PacketConn

	failureDetector failureDetector

	watcher Watcher

	metrics *Metrics

	logger log.Logger

	closed     *atomic.Bool
	shutdownCh chan struct{}
}

func New(
	nodeID string,
	config *Config,
	packetLn net.PacketConn,
	watcher Watcher,
	logger log.Logger,
) *Gossip {
	logger = logger.WithSubsystem("gossip")

	logger.Info(
		"starting gossip",
		zap.String("node-id", nodeID),
		zap.String("bind-addr", config.BindAddr),
		zap.String("advertise-addr", config.AdvertiseAddr),
	)

	if watcher == nil {
		watcher = newNopWatcher()
	}

	gossip := &Gossip{
		nodeID:     nodeID,
		store:      rumor.NewStore(),
		peers:      newPeerSet(config.AdvertiseAddr),
		config:     config,
		packetConn: packetLn,
		failureDetector: newAccrualFailureDetector(
			config.Interval*2, failureDetectorSampleSize,
		),
		watcher:    watcher,
		metrics:    newMetrics(),
		logger:     logger,
		closed:     atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
	}

	gossip.packetListener = newPacketListener(
		packetLn, gossip.handlePacket, config.MaxPacketSize, gossip.metrics, logger,
	)
	go gossip.packetListener.Serve()

	gossip.schedule()

	return gossip
}

// NodeID returns the ID of the local node.
func (g *Gossip) NodeID() string {
	return g.nodeID
}

// MaxRumorSize returns the largest rumor payload that fits in a gossip
// packet. Larger rumors are stored but never sent to peers.
func (g *Gossip) MaxRumorSize() int {
	size, err := maxPayloadSize(packetHeader{
		NodeID: g.nodeID,
		Addr:   g.config.AdvertiseAddr,
	}, g.config.MaxPacketSize)
	if err != nil {
		// The header is always encodable.
		panic("encode header: " + err.Error())
	}
	return size
}

// Inform adds a locally originated rumor to be gossiped to the cluster.
func (g *Gossip) Inform(payload []byte) {
	g.mu.Lock()
	known := g.store.Has(payload)
	g.store.Inform(payload)
	g.mu.Unlock()

	if known {
		return
	}

	g.logger.Debug(
		"inform rumor",
		zap.String("digest", rumor.DigestOf(payload).String()),
		zap.Int("size", len(payload)),
	)

	g.metrics.RumorsLearned.WithLabelValues("local").Inc()
	g.watcher.OnRumor(payload)
}

// Messages returns the payload of every stored rumor.
func (g *Gossip) Messages() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.Messages()
}

// Rumors returns every stored rumor ordered by digest.
func (g *Gossip) Rumors() []rumor.Rumor {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.Rumors()
}

// Rumor returns the stored rumor with the given digest.
func (g *Gossip) Rumor(d rumor.Digest) (rumor.Rumor, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.Rumor(d)
}

// Thresholds returns the current round thresholds.
func (g *Gossip) Thresholds() rumor.Thresholds {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.Thresholds()
}

// Peers returns the known peers.
func (g *Gossip) Peers() []Peer {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.peers.Peers(g.failureDetector, g.config.SuspicionThreshold)
}

// Join attempts to join an existing cluster by adding the given addresses as
// peers and sending each a pull request.
//
// The addresses may contain either IP addresses or domain names. When a domain
// name is used, the domain is resolved and each resolved IP address is
// added. If the port is omitted the bind port is used.
//
// Returns the joined addresses. If addresses were provided but none could be
// joined an error is returned. Note if a domain was provided that only
// resolved to the current node then Join will return nil.
func (g *Gossip) Join(addrs []string) ([]string, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	var joined []string
	var lastJoinErr error
	for _, unresolvedAddr := range addrs {
		unresolvedAddr = g.ensurePort(unresolvedAddr)
		resolvedAddrs, err := resolveAddr(unresolvedAddr)
		if err != nil {
			return nil, fmt.Errorf("resolve: %s: %w", unresolvedAddr, err)
		}

		if len(resolvedAddrs) == 0 {
			g.logger.Warn(
				"join: domain did not resolve any addresses",
				zap.String("addr", unresolvedAddr),
			)
			continue
		}

		for _, addr := range resolvedAddrs {
			if addr == g.config.AdvertiseAddr {
				// Ignore ourselves.
				continue
			}

			g.addPeer("", addr)

			if err := g.send(messageTypePullRequest, nil, addr); err != nil {
				lastJoinErr = err

				g.logger.Warn(
					"failed to join peer",
					zap.String("addr", addr),
					zap.Error(err),
				)
			} else {
				joined = append(joined, addr)
			}
		}
	}

	// Return an error if we couldn't join any resolved addresses (if there
	// were no resolved addresses return nil).
	if len(joined) == 0 && lastJoinErr != nil {
		return nil, lastJoinErr
	}
	return joined, nil
}

// Round runs a single round of gossip.
//
// This ends the current round for every stored rumor, so is called once per
// configured interval. It is exported so callers can drive rounds manually.
func (g *Gossip) Round() error {
	start := time.Now()
	defer func() {
		g.metrics.Rounds.Inc()
		g.metrics.RoundLatency.Observe(time.Since(start).Seconds())
	}()

	g.mu.Lock()
	pushList := g.store.GetPushList()
	peers := g.peers.Peers(g.failureDetector, g.config.SuspicionThreshold)
	g.updateStoreMetricsLocked()
	g.mu.Unlock()

	reachable, unreachable := partitionPeers(peers)

	var errs error
	if len(pushList) > 0 && len(reachable) > 0 {
		entries := make([]rumorEntry, 0, len(pushList))
		for _, m := range pushList {
			entries = append(entries, rumorEntry{
				Counter: m.Counter,
				Payload: m.Payload,
			})
		}
		// Shuffle since we may not be able to send all entries.
		rand.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})

		var group errgroup.Group
		for _, peer := range selectPeers(reachable, g.config.Fanout) {
			group.Go(func() error {
				if err := g.send(messageTypePush, entries, peer.Addr); err != nil {
					return fmt.Errorf("push: %s: %w", peer.Addr, err)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	// Pull from a random reachable peer, and a random unreachable peer.
	//
	// We continue to gossip with unreachable peers to detect when they
	// recover.
	for _, candidates := range [][]Peer{reachable, unreachable} {
		for _, peer := range selectPeers(candidates, 1) {
			if err := g.send(messageTypePullRequest, nil, peer.Addr); err != nil {
				errs = errors.Join(errs, fmt.Errorf("pull: %s: %w", peer.Addr, err))
			}
		}
	}

	return errs
}

func (g *Gossip) Metrics() *Metrics {
	return g.metrics
}

// Close stops gossiping and closes the listener.
func (g *Gossip) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		// Already closed.
		return nil
	}

	close(g.shutdownCh)

	return g.packetListener.Close()
}

// schedule runs gossip rounds at the configured rate.
func (g *Gossip) schedule() {
	go g.scheduleFunc(g.config.Interval, func() {
		if err := g.Round(); err != nil {
			g.logger.Warn("gossip round failed", zap.Error(err))
		}
	})
}

func (g *Gossip) scheduleFunc(interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add upto 10% jitter to avoid nodes synchronising.
			jitter := time.Duration(rand.Int63n(int64(interval)/10 + 1))
			select {
			case <-time.After(jitter):
				f()
			case <-g.shutdownCh:
				return
			}

		case <-g.shutdownCh:
			return
		}
	}
}

func (g *Gossip) handlePacket(b []byte) error {
	typ, header, entries, err := decodePacket(b)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	g.metrics.PacketsInbound.WithLabelValues(typ.String()).Inc()

	if header.NodeID == g.nodeID {
		// Ignore packets from ourselves, such as if we joined a domain that
		// resolves to the local node.
		return nil
	}

	g.failureDetector.Report(header.Addr)
	g.addPeer(header.NodeID, header.Addr)

	switch typ {
	case messageTypePush, messageTypePullResponse:
		g.receive(entries)
		return nil
	case messageTypePullRequest:
		g.mu.Lock()
		pullList := g.store.HandlePull()
		g.mu.Unlock()

		entries := make([]rumorEntry, 0, len(pullList))
		for _, m := range pullList {
			entries = append(entries, rumorEntry{
				Counter: m.Counter,
				Payload: m.Payload,
			})
		}
		// Shuffle since we may not be able to send all entries.
		rand.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})

		if err := g.send(messageTypePullResponse, entries, header.Addr); err != nil {
			return fmt.Errorf("pull response: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported message type: %s", typ)
	}
}

// receive stores the rumor entries received from a peer.
func (g *Gossip) receive(entries []rumorEntry) {
	g.metrics.EntriesInbound.Add(float64(len(entries)))

	var learned [][]byte

	g.mu.Lock()
	for _, entry := range entries {
		payload := entry.Payload
		if !g.store.Has(payload) {
			// The store retains new payloads so don't reference the
			// packet buffer.
			payload = bytes.Clone(payload)
			learned = append(learned, payload)
		}
		g.store.Receive(entry.Counter, payload)
	}
	g.mu.Unlock()

	for _, payload := range learned {
		g.logger.Debug(
			"learned rumor",
			zap.String("digest", rumor.DigestOf(payload).String()),
			zap.Int("size", len(payload)),
		)

		g.metrics.RumorsLearned.WithLabelValues("remote").Inc()
		g.watcher.OnRumor(payload)
	}
}

// addPeer adds the peer with the given address if unknown.
func (g *Gossip) addPeer(id, addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.peers.Add(id, addr) {
		return
	}
	g.store.AddPeer()

	g.logger.Info(
		"discovered peer",
		zap.String("node-id", id),
		zap.String("addr", addr),
		zap.Uint64("peers", g.store.Peers()),
	)

	g.updateStoreMetricsLocked()
}

// send writes a packet with the given type and entries to the peer at addr.
func (g *Gossip) send(typ messageType, entries []rumorEntry, addr string) error {
	header := packetHeader{
		NodeID: g.nodeID,
		Addr:   g.config.AdvertiseAddr,
	}
	b, included, err := encodePacket(typ, header, entries, g.config.MaxPacketSize)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve udp: %s: %w", addr, err)
	}
	if _, err = g.packetConn.WriteTo(b, udpAddr); err != nil {
		return fmt.Errorf("write packet: %s: %w", addr, err)
	}

	g.metrics.PacketsOutbound.WithLabelValues(typ.String()).Inc()
	g.metrics.PacketBytesOutbound.Add(float64(len(b)))
	g.metrics.EntriesOutbound.WithLabelValues(typ.String()).Add(float64(included))
	g.metrics.EntriesTruncated.Add(float64(len(entries) - included))

	return nil
}

func (g *Gossip) updateStoreMetricsLocked() {
	thresholds := g.store.Thresholds()
	g.metrics.Thresholds.WithLabelValues("hot").Set(float64(thresholds.Hot))
	g.metrics.Thresholds.WithLabelValues("cold").Set(float64(thresholds.Cold))
	g.metrics.Thresholds.WithLabelValues("terminate").Set(float64(thresholds.Terminate))

	g.metrics.Peers.Set(float64(g.peers.Len()))

	phases := map[rumor.Phase]int{
		rumor.PhaseHot:        0,
		rumor.PhaseCold:       0,
		rumor.PhaseRetired:    0,
		rumor.PhaseTerminated: 0,
	}
	for _, r := range g.store.Rumors() {
		phases[r.Phase(thresholds)]++
	}
	for phase, n := range phases {
		g.metrics.Rumors.WithLabelValues(string(phase)).Set(float64(n))
	}
}

// ensurePort adds the configured bind port to addr if addr doesn't already
// have a port.
func (g *Gossip) ensurePort(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}

	_, bindPort, err := net.SplitHostPort(g.config.BindAddr)
	if err != nil {
		// We've already bound to bind addr so expect it to be valid.
		panic("invalid bind addr:" + g.config.BindAddr)
	}

	return addr + ":" + bindPort
}

// resolveAddr resolves the given address, which may be a domain pointing
// to multiple IP addresses.
func resolveAddr(addr string) ([]string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid addr: %s: %w", addr, err)
	}

	// If the address already contains an IP address, do nothing.
	if ip := net.ParseIP(host); ip != nil {
		return []string{addr}, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("lookup host: %s: %w", host, err)
	}

	var addrs []string
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.String(), port))
	}
	return addrs, nil
}
