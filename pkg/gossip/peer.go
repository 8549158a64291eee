package gossip

import (
	"math/rand"
	"time"
)

// Peer is the known metadata of a peer node.
type Peer struct {
	// ID is the peers node ID. This is empty until a packet is received from
	// the peer (such as a seed address that hasn't responded yet).
	ID string `json:"id"`

	// Addr is the gossip address of the peer.
	Addr string `json:"addr"`

	// Unreachable indicates whether the peer is considered unreachable by
	// the failure detector.
	Unreachable bool `json:"unreachable"`

	// SuspicionLevel is the failure detector suspicion level of the peer.
	SuspicionLevel float64 `json:"suspicion_level"`

	// Discovered is the time the peer was added.
	Discovered time.Time `json:"discovered"`
}

// peerSet contains the known peers keyed by address.
//
// Peers are never removed since the number of peers drives the rumor
// thresholds, which must be monotonic.
type peerSet struct {
	peers map[string]*Peer

	// selfAddr is the address of the local node, which is never added.
	selfAddr string
}

func newPeerSet(selfAddr string) *peerSet {
	return &peerSet{
		peers:    make(map[string]*Peer),
		selfAddr: selfAddr,
	}
}

// Add adds the peer with the given address if unknown. If the peer is known
// but has no ID, the ID is updated.
//
// Returns true if the peer was added.
func (s *peerSet) Add(id, addr string) bool {
	if addr == "" || addr == s.selfAddr {
		return false
	}

	if p, ok := s.peers[addr]; ok {
		if p.ID == "" {
			p.ID = id
		}
		return false
	}

	s.peers[addr] = &Peer{
		ID:         id,
		Addr:       addr,
		Discovered: time.Now(),
	}
	return true
}

func (s *peerSet) Len() int {
	return len(s.peers)
}

// Peers returns a copy of each known peer with its liveness updated.
func (s *peerSet) Peers(fd failureDetector, suspicionThreshold float64) []Peer {
	peers := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peer := *p
		peer.SuspicionLevel = fd.SuspicionLevel(p.Addr)
		peer.Unreachable = peer.SuspicionLevel > suspicionThreshold
		peers = append(peers, peer)
	}
	return peers
}

// partitionPeers splits the peers into reachable and unreachable peers.
func partitionPeers(peers []Peer) ([]Peer, []Peer) {
	var reachable, unreachable []Peer
	for _, p := range peers {
		if p.Unreachable {
			unreachable = append(unreachable, p)
		} else {
			reachable = append(reachable, p)
		}
	}
	return reachable, unreachable
}

// selectPeers returns upto n peers selected at random.
func selectPeers(peers []Peer, n int) []Peer {
	selected := make([]Peer, len(peers))
	copy(selected, peers)
	rand.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}
