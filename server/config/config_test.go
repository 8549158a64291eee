package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"

	"github.com/andydunstall/rumor/pkg/config"
	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/log"
)

// Tests the default configuration is valid.
func TestConfig_Default(t *testing.T) {
	conf := Default()
	assert.NoError(t, conf.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("missing gossip bind addr", func(t *testing.T) {
		conf := Default()
		conf.Gossip.BindAddr = ""
		assert.EqualError(t, conf.Validate(), "gossip: missing bind addr")
	})

	t.Run("node id and prefix", func(t *testing.T) {
		conf := Default()
		conf.Cluster.NodeID = "my-node"
		conf.Cluster.NodeIDPrefix = "my-prefix-"
		assert.EqualError(
			t,
			conf.Validate(),
			"cluster: cannot specify both node ID and node ID prefix",
		)
	})

	t.Run("invalid log level", func(t *testing.T) {
		conf := Default()
		conf.Log.Level = "trace"
		assert.EqualError(t, conf.Validate(), "log: unsupported level: trace")
	})

	t.Run("missing grace period", func(t *testing.T) {
		conf := Default()
		conf.GracePeriod = 0
		assert.EqualError(t, conf.Validate(), "missing grace period")
	})
}

// Tests loading the node configuration from YAML.
func TestConfig_LoadYAML(t *testing.T) {
	yaml := `
gossip:
  bind_addr: 10.15.104.25:8003
  advertise_addr: 1.2.3.4:8003
  interval: 100ms
  fanout: 4
  max_packet_size: 1400
  suspicion_threshold: 10

admin:
  bind_addr: 10.15.104.25:8002
  advertise_addr: 1.2.3.4:8002
  subscribe_buffer_size: 64

cluster:
  node_id: "my-node"
  join:
    - 10.26.104.12:8003
    - 10.26.104.73:8003
    - 10.26.104.28:8003
  abort_if_join_fails: true

log:
  level: info
  subsystems:
    - foo
    - bar
  encoding: console
  output: stdout

grace_period: 2m
`

	f, err := os.CreateTemp("", "rumor")
	assert.NoError(t, err)

	_, err = f.WriteString(yaml)
	assert.NoError(t, err)

	var loadedConf Config

	assert.NoError(t, config.Load(&loadedConf, f.Name(), false))

	assert.Equal(t, expectedConfig(), loadedConf)
}

// Tests loading the node configuration from flags.
func TestConfig_LoadFlags(t *testing.T) {
	args := []string{
		"--gossip.bind-addr", "10.15.104.25:8003",
		"--gossip.advertise-addr", "1.2.3.4:8003",
		"--gossip.interval", "100ms",
		"--gossip.fanout", "4",
		"--gossip.max-packet-size", "1400",
		"--gossip.suspicion-threshold", "10",
		"--admin.bind-addr", "10.15.104.25:8002",
		"--admin.advertise-addr", "1.2.3.4:8002",
		"--admin.subscribe-buffer-size", "64",
		"--cluster.node-id", "my-node",
		"--cluster.join", "10.26.104.12:8003,10.26.104.73:8003,10.26.104.28:8003",
		"--cluster.abort-if-join-fails",
		"--log.level", "info",
		"--log.subsystems", "foo,bar",
		"--log.encoding", "console",
		"--log.output", "stdout",
		"--grace-period", "2m",
	}

	fs := pflag.NewFlagSet("", pflag.PanicOnError)

	var loadedConf Config
	loadedConf.RegisterFlags(fs)

	assert.NoError(t, fs.Parse(args))

	assert.Equal(t, expectedConfig(), loadedConf)
}

// Tests values missing from the YAML config keep their defaults.
func TestConfig_LoadYAMLDefaults(t *testing.T) {
	f, err := os.CreateTemp("", "rumor")
	assert.NoError(t, err)

	_, err = f.WriteString(`
gossip:
  fanout: 5
log:
  level: warn
`)
	assert.NoError(t, err)

	conf := Default()
	assert.NoError(t, config.Load(conf, f.Name(), false))

	assert.Equal(t, 5, conf.Gossip.Fanout)
	assert.Equal(t, "warn", conf.Log.Level)
	assert.Equal(t, time.Millisecond*500, conf.Gossip.Interval)
	assert.Equal(t, "json", conf.Log.Encoding)
	assert.NoError(t, conf.Validate())
}

func expectedConfig() Config {
	return Config{
		Gossip: gossip.Config{
			BindAddr:           "10.15.104.25:8003",
			AdvertiseAddr:      "1.2.3.4:8003",
			Interval:           time.Millisecond * 100,
			Fanout:             4,
			MaxPacketSize:      1400,
			SuspicionThreshold: 10,
		},
		Admin: AdminConfig{
			BindAddr:            "10.15.104.25:8002",
			AdvertiseAddr:       "1.2.3.4:8002",
			SubscribeBufferSize: 64,
		},
		Cluster: ClusterConfig{
			NodeID: "my-node",
			Join: []string{
				"10.26.104.12:8003",
				"10.26.104.73:8003",
				"10.26.104.28:8003",
			},
			AbortIfJoinFails: true,
		},
		Log: log.Config{
			Level: "info",
			Subsystems: []string{
				"foo",
				"bar",
			},
			Encoding: "console",
			Output:   "stdout",
		},
		GracePeriod: 2 * time.Minute,
	}
}
