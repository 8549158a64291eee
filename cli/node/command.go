package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/hashicorp/go-sockaddr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pkgconfig "github.com/andydunstall/rumor/pkg/config"
	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/server"
	"github.com/andydunstall/rumor/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node [flags]",
		Short: "start a rumor node",
		Long: `Start a rumor node.

The node gossips rumors with the other nodes in the cluster over UDP. Each
round, the node pushes its hot rumors to '--gossip.fanout' random peers and
sends a pull request to a random peer.

The node also serves an admin HTTP API to inform new rumors, subscribe to
learned rumors and inspect the node status.

To join an existing cluster configure '--cluster.join' with the gossip
address of at least one existing node, or a domain that resolves to the
nodes in the cluster.

The node may be configured using flags or a YAML config file. Values in the
config file override flags.

Examples:
  # Start a node with the default configuration.
  rumor node

  # Start a node that joins an existing cluster.
  rumor node --cluster.join 10.26.104.14,10.26.104.75

  # Load configuration from YAML.
  rumor node --config.path ./rumor.yaml
`,
	}

	conf := config.Default()

	var file pkgconfig.File
	file.RegisterFlags(cmd.Flags())

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := file.Load(conf); err != nil {
			fmt.Printf("load config: %s\n", err.Error())
			os.Exit(1)
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(&conf.Log)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if conf.Cluster.NodeID == "" {
			conf.Cluster.NodeID = generateNodeID(conf.Cluster.NodeIDPrefix)
		}

		if conf.Gossip.AdvertiseAddr == "" {
			advertiseAddr, err := advertiseAddrFromBindAddr(conf.Gossip.BindAddr)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				os.Exit(1)
			}
			conf.Gossip.AdvertiseAddr = advertiseAddr
		}
		if conf.Admin.AdvertiseAddr == "" {
			advertiseAddr, err := advertiseAddrFromBindAddr(conf.Admin.BindAddr)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				os.Exit(1)
			}
			conf.Admin.AdvertiseAddr = advertiseAddr
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	logger.Info("starting rumor node", zap.Any("conf", conf))

	node, err := server.NewServer(conf, logger)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal")
	}()

	return node.Run(ctx)
}

// generateNodeID generates a random node ID with the given prefix.
func generateNodeID(prefix string) string {
	// Use the first 8 characters of a UUID, which is enough to be unique
	// within a cluster while still being readable.
	return prefix + uuid.New().String()[:8]
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
