package gossip

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/rumor"
	"github.com/andydunstall/rumor/server/status"
)

// RumorStatus is the status of a stored rumor.
type RumorStatus struct {
	Digest   rumor.Digest        `json:"digest"`
	Counters rumor.RoundCounters `json:"counters"`
	Phase    rumor.Phase         `json:"phase"`
	Payload  []byte              `json:"payload"`
}

// ThresholdsStatus contains the phase thresholds and the number of peers
// they were derived from.
type ThresholdsStatus struct {
	Peers      int              `json:"peers"`
	Thresholds rumor.Thresholds `json:"thresholds"`
}

// Status is the gossip status handler, which exposes the stored rumors and
// known peers.
type Status struct {
	gossip *gossip.Gossip
}

func NewStatus(gossip *gossip.Gossip) *Status {
	return &Status{
		gossip: gossip,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/rumors", s.listRumorsRoute)
	group.GET("/rumors/:digest", s.getRumorRoute)
	group.GET("/thresholds", s.thresholdsRoute)
	group.GET("/peers", s.peersRoute)
}

func (s *Status) listRumorsRoute(c *gin.Context) {
	thresholds := s.gossip.Thresholds()

	rumors := s.gossip.Rumors()
	statuses := make([]RumorStatus, 0, len(rumors))
	for _, r := range rumors {
		statuses = append(statuses, newRumorStatus(r, thresholds))
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Status) getRumorRoute(c *gin.Context) {
	d, err := rumor.ParseDigest(c.Param("digest"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, ok := s.gossip.Rumor(d)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rumor not found"})
		return
	}
	c.JSON(http.StatusOK, newRumorStatus(r, s.gossip.Thresholds()))
}

func (s *Status) thresholdsRoute(c *gin.Context) {
	c.JSON(http.StatusOK, ThresholdsStatus{
		Peers:      len(s.gossip.Peers()),
		Thresholds: s.gossip.Thresholds(),
	})
}

func (s *Status) peersRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.gossip.Peers())
}

func newRumorStatus(r rumor.Rumor, thresholds rumor.Thresholds) RumorStatus {
	return RumorStatus{
		Digest:   r.Digest,
		Counters: r.Counters,
		Phase:    r.Phase(thresholds),
		Payload:  r.Payload,
	}
}

var _ status.Handler = &Status{}
