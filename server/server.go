package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/server/admin"
	"github.com/andydunstall/rumor/server/config"
	servergossip "github.com/andydunstall/rumor/server/gossip"
)

// Server is a rumor node, which gossips rumors with the other nodes in the
// cluster and serves the admin API.
type Server struct {
	config *config.Config

	gossip *gossip.Gossip
	feed   *gossip.Feed

	adminLn     net.Listener
	adminServer *admin.Server

	registry *prometheus.Registry

	runCtx    context.Context
	runCancel context.CancelFunc
	runErrCh  chan error
	running   *atomic.Bool

	shutdownOnce sync.Once

	logger log.Logger
}

// NewServer binds the gossip and admin listeners and starts gossiping. The
// admin server doesn't accept requests until Start or Run is called.
//
// If the gossip or admin advertise address is empty, the bound address is
// used.
func NewServer(conf *config.Config, logger log.Logger) (*Server, error) {
	if conf.Cluster.NodeID == "" {
		return nil, fmt.Errorf("missing node id")
	}

	logger = logger.With(zap.String("node-id", conf.Cluster.NodeID))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}
	if conf.Admin.AdvertiseAddr == "" {
		conf.Admin.AdvertiseAddr = adminLn.Addr().String()
	}

	packetLn, err := net.ListenPacket("udp", conf.Gossip.BindAddr)
	if err != nil {
		adminLn.Close()
		return nil, fmt.Errorf("gossip listen: %s: %w", conf.Gossip.BindAddr, err)
	}
	if conf.Gossip.AdvertiseAddr == "" {
		conf.Gossip.AdvertiseAddr = packetLn.LocalAddr().String()
	}

	feed := gossip.NewFeed(conf.Admin.SubscribeBufferSize)
	feed.Register(registry)

	gossiper := gossip.New(
		conf.Cluster.NodeID,
		&conf.Gossip,
		packetLn,
		feed,
		logger,
	)
	gossiper.Metrics().Register(registry)

	adminServer := admin.NewServer(registry, logger)
	adminServer.AddStatus("/gossip", servergossip.NewStatus(gossiper))
	adminServer.AddAPI("/", servergossip.NewAPI(gossiper, feed, logger))

	runCtx, runCancel := context.WithCancel(context.Background())
	return &Server{
		config:      conf,
		gossip:      gossiper,
		feed:        feed,
		adminLn:     adminLn,
		adminServer: adminServer,
		registry:    registry,
		runCtx:      runCtx,
		runCancel:   runCancel,
		runErrCh:    make(chan error, 1),
		running:     atomic.NewBool(false),
		logger:      logger,
	}, nil
}

// Start joins the cluster and runs the node in the background.
func (s *Server) Start() error {
	if err := s.join(); err != nil {
		s.runCancel()
		return errors.Join(err, s.close())
	}

	s.running.Store(true)
	go func() {
		s.runErrCh <- s.run(s.runCtx)
	}()

	return nil
}

// Run joins the cluster and runs the node until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.join(); err != nil {
		return errors.Join(err, s.close())
	}

	return s.run(ctx)
}

// Shutdown stops a node started with Start, gracefully shutting down the
// admin server. If the node isn't running, Shutdown only releases its
// listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.runCancel()

		if !s.running.Load() {
			err = s.close()
			return
		}

		select {
		case err = <-s.runErrCh:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (s *Server) Gossip() *gossip.Gossip {
	return s.gossip
}

func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// AdminAddr returns the address the admin server is listening on.
func (s *Server) AdminAddr() string {
	return s.adminLn.Addr().String()
}

// GossipAddr returns the advertised gossip address.
func (s *Server) GossipAddr() string {
	return s.config.Gossip.AdvertiseAddr
}

func (s *Server) run(ctx context.Context) error {
	s.logger.Info(
		"starting node",
		zap.String("gossip-addr", s.config.Gossip.AdvertiseAddr),
		zap.String("admin-addr", s.config.Admin.AdvertiseAddr),
	)

	var group run.Group

	// Termination handler.
	runCtx, runCancel := context.WithCancel(ctx)
	group.Add(func() error {
		<-runCtx.Done()
		return nil
	}, func(error) {
		runCancel()
	})

	// Admin server.
	group.Add(func() error {
		if err := s.adminServer.Serve(s.adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		// Close subscriptions so subscriber connections don't block the
		// shutdown.
		s.feed.Close()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.GracePeriod,
		)
		defer cancel()

		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		s.logger.Info("admin server shut down")
	})

	err := group.Run()

	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	s.logger.Info("shutdown complete")

	return err
}

// join attempts to join an existing cluster. Note if 'join' is a domain that
// doesn't map to any entries (except ourselves), then join will succeed
// since it means we're the first member.
func (s *Server) join() error {
	joined, err := s.gossip.Join(s.config.Cluster.Join)
	if err != nil {
		if s.config.Cluster.AbortIfJoinFails {
			return fmt.Errorf("join cluster: %w", err)
		}
		s.logger.Warn("failed to join cluster", zap.Error(err))
		return nil
	}
	if len(joined) > 0 {
		s.logger.Info(
			"joined cluster",
			zap.Strings("addrs", joined),
		)
	}
	return nil
}

func (s *Server) close() error {
	var errs error
	if err := s.gossip.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("gossip: %w", err))
	}
	// The admin listener is closed by the admin server if it was served.
	if err := s.adminLn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = errors.Join(errs, fmt.Errorf("admin listener: %w", err))
	}
	return errs
}
