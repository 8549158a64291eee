package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for gossip traffic.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Interval is the rate to initiate a gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Fanout is the number of peers to push rumors to each round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// MaxPacketSize is the maximum size of any packet sent.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// SuspicionThreshold is the failure detector suspicion level at which a
	// peer is considered unreachable.
	SuspicionThreshold float64 `json:"suspicion_threshold" yaml:"suspicion_threshold"`
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.Interval == 0 {
		return fmt.Errorf("missing interval")
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive")
	}
	if c.MaxPacketSize == 0 {
		return fmt.Errorf("missing max packet size")
	}
	if c.SuspicionThreshold <= 0 {
		return fmt.Errorf("suspicion threshold must be positive")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	if prefix != "" {
		prefix = prefix + "."
	}
	prefix = prefix + "gossip."

	fs.StringVar(
		&c.BindAddr,
		prefix+"bind-addr",
		c.BindAddr,
		`
The host/port to listen for gossip packets.

If the host is unspecified it defaults to all listeners, such as
a bind address ':8003' will listen on '0.0.0.0:8003'`,
	)

	fs.StringVar(
		&c.AdvertiseAddr,
		prefix+"advertise-addr",
		c.AdvertiseAddr,
		`
Gossip listen address to advertise to other nodes. This is the address
peers will send push and pull packets to.

Such as if the listen address is ':8003', the advertised address may be
'10.26.104.45:8003' or 'node1.cluster:8003'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':8003') the nodes
private IP will be used.`,
	)

	fs.DurationVar(
		&c.Interval,
		prefix+"interval",
		c.Interval,
		`
The interval to initiate rounds of gossip.

Each round pushes hot rumors to '--gossip.fanout' peers and sends a pull
request to a random peer. Rumors age by one round each interval.`,
	)

	fs.IntVar(
		&c.Fanout,
		prefix+"fanout",
		c.Fanout,
		`
The number of random peers to push hot rumors to each round.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		prefix+"max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any packet sent.

Rumors that don't fit in a packet are skipped for that round. Depending on
your networks MTU you may be able to increase to include more rumors in each
packet.`,
	)

	fs.Float64Var(
		&c.SuspicionThreshold,
		prefix+"suspicion-threshold",
		c.SuspicionThreshold,
		`
The failure detector suspicion level at which a peer is considered
unreachable.

Unreachable peers are not selected for pushes, though are still sent
occasional pull requests so they are detected when they recover.`,
	)
}
