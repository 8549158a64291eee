package gossip

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/pkg/rumor"
	"github.com/andydunstall/rumor/pkg/websocket"
	"github.com/andydunstall/rumor/server/status"
)

const (
	subscribePingInterval = time.Second * 15
)

// InformResponse is the response to informing a rumor.
type InformResponse struct {
	Digest rumor.Digest `json:"digest"`
}

// API is the gossip API handler, which accepts new rumors and streams
// learned rumors to subscribers.
type API struct {
	gossip *gossip.Gossip
	feed   *gossip.Feed

	logger log.Logger
}

func NewAPI(gossip *gossip.Gossip, feed *gossip.Feed, logger log.Logger) *API {
	return &API{
		gossip: gossip,
		feed:   feed,
		logger: logger.WithSubsystem("gossip.api"),
	}
}

func (a *API) Register(group *gin.RouterGroup) {
	group.POST("/rumors", a.informRoute)
	group.GET("/rumors/subscribe", a.subscribeRoute)
}

// informRoute informs the request body as a new rumor.
//
// Rumors that don't fit in a gossip packet are rejected.
func (a *API) informRoute(c *gin.Context) {
	maxSize := int64(a.gossip.MaxRumorSize())
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty rumor"})
		return
	}

	a.gossip.Inform(payload)

	c.JSON(http.StatusOK, InformResponse{
		Digest: rumor.DigestOf(payload),
	})
}

// subscribeRoute upgrades to a WebSocket connection then writes each newly
// learned rumor as a binary message.
func (a *API) subscribeRoute(c *gin.Context) {
	conn, err := websocket.Upgrade(c.Writer, c.Request)
	if err != nil {
		// The upgrader writes the error response.
		a.logger.Warn("failed to upgrade subscriber", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := a.feed.Subscribe()
	defer sub.Close()

	a.logger.Debug(
		"subscriber connected",
		zap.String("client-ip", c.ClientIP()),
	)

	// Read from the connection to handle control messages and detect when
	// the subscriber disconnects.
	closedCh := make(chan struct{})
	go func() {
		defer close(closedCh)
		for {
			if _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(subscribePingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteMessage(payload); err != nil {
				a.logger.Debug("subscriber write", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				a.logger.Debug("subscriber ping", zap.Error(err))
				return
			}
		case <-closedCh:
			a.logger.Debug(
				"subscriber disconnected",
				zap.String("client-ip", c.ClientIP()),
			)
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

var _ status.Handler = &API{}
