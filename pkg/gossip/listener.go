package gossip

import (
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/andydunstall/rumor/pkg/log"
)

// packetHandler handles a packet read from the listener. The packet buffer is
// only valid until the handler returns.
type packetHandler func(b []byte) error

// packetListener listens for incoming packets and passes them to the
// handler.
type packetListener struct {
	ln net.PacketConn

	handler packetHandler

	readBuf []byte

	metrics *Metrics

	logger log.Logger
}

func newPacketListener(
	ln net.PacketConn,
	handler packetHandler,
	maxPacketSize int,
	metrics *Metrics,
	logger log.Logger,
) *packetListener {
	return &packetListener{
		ln:      ln,
		handler: handler,
		readBuf: make([]byte, maxPacketSize),
		metrics: metrics,
		logger:  logger,
	}
}

// Serve will read packets until the listener is closed.
func (l *packetListener) Serve() {
	for {
		n, addr, err := l.ln.ReadFrom(l.readBuf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		l.metrics.PacketBytesInbound.Add(float64(n))

		if err = l.handler(l.readBuf[:n]); err != nil {
			l.logger.Warn(
				"failed to handle packet",
				zap.String("addr", addr.String()),
				zap.Error(err),
			)
		}
	}
}

func (l *packetListener) Close() error {
	return l.ln.Close()
}
