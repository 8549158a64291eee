package watch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/rumor/pkg/backoff"
	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/pkg/websocket"
	"github.com/andydunstall/rumor/server/status/client"
	"github.com/andydunstall/rumor/server/status/config"
)

const (
	minReconnectBackoff = time.Millisecond * 100
	maxReconnectBackoff = time.Second * 15
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "watch for rumors learned by a node",
		Long: `Watch for rumors learned by a node.

Subscribes to the node and outputs each new rumor the node learns, either
informed locally or received from a peer, one per line.

If the connection to the node fails, the watcher reconnects with
exponential backoff. Rumors learned while disconnected are not output.

Examples:
  # Watch rumors learned by the local node.
  rumor watch

  # Watch rumors learned by node 10.26.104.56:8002.
  rumor watch --node.url http://10.26.104.56:8002
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	var retries int
	cmd.Flags().IntVar(
		&retries,
		"retries",
		0,
		`
Maximum number of consecutive reconnect attempts before giving up. Set to
zero to reconnect forever.`,
	)

	var logLevel string
	cmd.Flags().StringVar(
		&logLevel,
		"log.level",
		"info",
		`
Minimum log level to output.

The available levels are 'debug', 'info', 'warn' and 'error'.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(&log.Config{
			Level:    logLevel,
			Encoding: "console",
			// Log to stderr so rumors can be piped from stdout.
			Output: "stderr",
		})
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(
			context.Background(), syscall.SIGINT, syscall.SIGTERM,
		)
		defer cancel()

		url, _ := url.Parse(conf.Node.URL)
		gossip := client.NewGossip(client.NewClient(url, conf.Timeout))

		err = watch(ctx, gossip, backoff.New(retries, minReconnectBackoff, maxReconnectBackoff), func(payload []byte) {
			fmt.Println(string(payload))
		}, logger)
		if err != nil {
			logger.Error("failed to watch", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

// watch subscribes to the node and calls onRumor for each rumor received.
//
// When the subscription fails with a retryable error watch reconnects.
// Returns nil when the context is cancelled.
func watch(
	ctx context.Context,
	gossip *client.Gossip,
	backoff *backoff.Backoff,
	onRumor func(payload []byte),
	logger log.Logger,
) error {
	for {
		err := subscribe(ctx, gossip, backoff, onRumor, logger)
		if ctx.Err() != nil {
			return nil
		}
		if !websocket.IsRetryable(err) {
			return err
		}

		logger.Warn(
			"subscription failed; reconnecting",
			zap.Int("attempts", backoff.Attempts()),
			zap.Error(err),
		)
		if !backoff.Wait(ctx) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reconnect: retries exhausted: %w", err)
		}
	}
}

// subscribe reads from a single subscription until it fails. Returns a
// retryable error if the connection to the node fails.
func subscribe(
	ctx context.Context,
	gossip *client.Gossip,
	backoff *backoff.Backoff,
	onRumor func(payload []byte),
	logger log.Logger,
) error {
	sub, err := gossip.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	logger.Info("subscribed")
	backoff.Reset()

	// Close the subscription when the context is cancelled to unblock
	// Next.
	stop := context.AfterFunc(ctx, func() {
		sub.Close()
	})
	defer stop()

	for {
		payload, err := sub.Next()
		if err != nil {
			// Any error once connected is a connection failure so retry.
			return websocket.NewRetryableError(fmt.Errorf("read: %w", err))
		}
		onRumor(payload)
	}
}
