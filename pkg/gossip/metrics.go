package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Rounds is the total number of gossip rounds.
	Rounds prometheus.Counter

	// RoundLatency is the time to complete a gossip round, including sending
	// push and pull packets.
	RoundLatency prometheus.Histogram

	// PacketsInbound is the total number of received packets labelled by
	// message type.
	PacketsInbound *prometheus.CounterVec

	// PacketsOutbound is the total number of sent packets labelled by
	// message type.
	PacketsOutbound *prometheus.CounterVec

	// PacketBytesInbound is the total number of read bytes.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of written bytes.
	PacketBytesOutbound prometheus.Counter

	// EntriesInbound is the total number of received rumor entries.
	EntriesInbound prometheus.Counter

	// EntriesOutbound is the total number of sent rumor entries labelled by
	// message type.
	EntriesOutbound *prometheus.CounterVec

	// EntriesTruncated is the total number of rumor entries that didn't fit
	// in a packet.
	EntriesTruncated prometheus.Counter

	// RumorsLearned is the total number of new rumors stored labelled by
	// source ('local' or 'remote').
	RumorsLearned *prometheus.CounterVec

	// Rumors is the number of stored rumors labelled by phase.
	Rumors *prometheus.GaugeVec

	// Peers is the number of known peers.
	Peers prometheus.Gauge

	// Thresholds is the current round thresholds labelled by threshold
	// ('hot', 'cold' or 'terminate').
	Thresholds *prometheus.GaugeVec
}

func newMetrics() *Metrics {
	return &Metrics{
		Rounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "rounds_total",
				Help:      "Total number of gossip rounds",
			},
		),
		RoundLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "round_latency_seconds",
				Help:      "Gossip round latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
		PacketsInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "packets_inbound_total",
				Help:      "Total number of received packets",
			},
			[]string{"type"},
		),
		PacketsOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "packets_outbound_total",
				Help:      "Total number of sent packets",
			},
			[]string{"type"},
		),
		PacketBytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "packet_bytes_inbound_total",
				Help:      "Total number of read bytes",
			},
		),
		PacketBytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "packet_bytes_outbound_total",
				Help:      "Total number of written bytes",
			},
		),
		EntriesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "entries_inbound_total",
				Help:      "Total number of received rumor entries",
			},
		),
		EntriesOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "entries_outbound_total",
				Help:      "Total number of sent rumor entries",
			},
			[]string{"type"},
		),
		EntriesTruncated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "entries_truncated_total",
				Help:      "Total number of rumor entries that exceeded the packet size",
			},
		),
		RumorsLearned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "rumors_learned_total",
				Help:      "Total number of new rumors stored",
			},
			[]string{"source"},
		),
		Rumors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "rumors",
				Help:      "Number of stored rumors",
			},
			[]string{"phase"},
		),
		Peers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "peers",
				Help:      "Number of known peers",
			},
		),
		Thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rumor",
				Subsystem: "gossip",
				Name:      "thresholds",
				Help:      "Rumor round thresholds",
			},
			[]string{"threshold"},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.Rounds,
		m.RoundLatency,
		m.PacketsInbound,
		m.PacketsOutbound,
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
		m.EntriesInbound,
		m.EntriesOutbound,
		m.EntriesTruncated,
		m.RumorsLearned,
		m.Rumors,
		m.Peers,
		m.Thresholds,
	)
}
