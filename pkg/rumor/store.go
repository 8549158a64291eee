package rumor

import (
	"slices"
)

// RoundCounters are the round state of a rumor.
type RoundCounters struct {
	// Push tracks the rumors progress through the hot and cold phases.
	Push uint8 `json:"push"`
	// Age is the number of rounds since the rumor was stored locally.
	Age uint8 `json:"age"`
}

// Message is a rumor payload paired with the push counter to send to peers.
type Message struct {
	Counter uint8
	Payload []byte
}

type entry struct {
	counters RoundCounters
	payload  []byte
}

// Store holds the state of every rumor known to the node.
type Store struct {
	entries map[Digest]*entry
	// digests contains the keys of entries in ascending order.
	digests []Digest

	// hits contains the push counters reported by peers for each rumor during
	// the current round.
	hits map[Digest][]uint8

	peers      uint64
	thresholds Thresholds
}

// NewStore returns an empty store with no known peers.
//
// All thresholds are zero until the first call to AddPeer.
func NewStore() *Store {
	return &Store{
		entries: make(map[Digest]*entry),
		hits:    make(map[Digest][]uint8),
	}
}

// AddPeer increments the number of known peers and recomputes the phase
// thresholds.
func (s *Store) AddPeer() {
	s.peers++
	s.thresholds = thresholdsFor(s.peers)
}

// Peers returns the number of known peers.
func (s *Store) Peers() uint64 {
	return s.peers
}

// Thresholds returns the current phase thresholds.
func (s *Store) Thresholds() Thresholds {
	return s.thresholds
}

// Len returns the number of stored rumors, including terminated rumors.
func (s *Store) Len() int {
	return len(s.entries)
}

// Has returns whether a rumor with the given payload is stored.
func (s *Store) Has(payload []byte) bool {
	_, ok := s.entries[DigestOf(payload)]
	return ok
}

// Messages returns the payload of every stored rumor regardless of round
// state.
func (s *Store) Messages() [][]byte {
	messages := make([][]byte, 0, len(s.digests))
	for _, d := range s.digests {
		messages = append(messages, s.entries[d].payload)
	}
	return messages
}

// Inform stores a locally originated rumor. Does nothing if the rumor is
// already known.
func (s *Store) Inform(payload []byte) {
	s.insert(DigestOf(payload), payload, 0)
}

// Receive stores a rumor received from a peer with the peers push counter.
//
// An unknown rumor starts at the peers counter for both push and age, so the
// node doesn't repeat rounds the peer has already passed. A known rumor has
// its push counter raised to the peers counter if the peer is further
// along.
//
// The counter is recorded as a hit for the current round.
func (s *Store) Receive(counter uint8, payload []byte) {
	d := DigestOf(payload)
	if e, ok := s.entries[d]; ok {
		if counter > e.counters.Push {
			e.counters.Push = counter
		}
	} else {
		s.insert(d, payload, counter)
	}
	s.hits[d] = append(s.hits[d], counter)
}

// GetPushList returns the rumors to push to peers this round, then advances
// the round.
//
// Calling GetPushList marks the end of the current round. The returned
// counters are those before the round advanced.
func (s *Store) GetPushList() []Message {
	var messages []Message
	for _, d := range s.digests {
		e := s.entries[d]
		if e.counters.Push <= s.thresholds.Hot && e.counters.Age <= s.thresholds.Terminate {
			messages = append(messages, Message{
				Counter: e.counters.Push,
				Payload: e.payload,
			})
		}
	}

	for _, e := range s.entries {
		// Rumors in the hot phase only advance from peer hits below.
		if e.counters.Push > s.thresholds.Hot && e.counters.Push <= s.thresholds.Cold {
			e.counters.Push++
		}
		if e.counters.Age <= s.thresholds.Terminate {
			e.counters.Age++
		}
	}

	hits := s.takeHits()
	for d, counters := range hits {
		e, ok := s.entries[d]
		if !ok {
			continue
		}

		var less, greaterOrEqual int
		for _, c := range counters {
			if c < e.counters.Push {
				less++
			} else {
				greaterOrEqual++
			}
		}
		// If most peers are already at or past our counter we are lagging so
		// skip ahead.
		if greaterOrEqual > less && e.counters.Push <= s.thresholds.Hot {
			e.counters.Push++
		}
	}

	return messages
}

// HandlePull returns the rumors to send in response to a pull request.
//
// Rumors are offered on pull through both the hot and cold phases.
func (s *Store) HandlePull() []Message {
	var messages []Message
	for _, d := range s.digests {
		e := s.entries[d]
		if e.counters.Push <= s.thresholds.Cold && e.counters.Age <= s.thresholds.Terminate {
			messages = append(messages, Message{
				Counter: e.counters.Push,
				Payload: e.payload,
			})
		}
	}
	return messages
}

// Rumor returns the stored rumor with the given digest.
func (s *Store) Rumor(d Digest) (Rumor, bool) {
	e, ok := s.entries[d]
	if !ok {
		return Rumor{}, false
	}
	return Rumor{
		Digest:   d,
		Counters: e.counters,
		Payload:  e.payload,
	}, true
}

// Rumors returns every stored rumor ordered by digest.
func (s *Store) Rumors() []Rumor {
	rumors := make([]Rumor, 0, len(s.digests))
	for _, d := range s.digests {
		e := s.entries[d]
		rumors = append(rumors, Rumor{
			Digest:   d,
			Counters: e.counters,
			Payload:  e.payload,
		})
	}
	return rumors
}

func (s *Store) insert(d Digest, payload []byte, counter uint8) {
	idx, ok := slices.BinarySearchFunc(s.digests, d, compareDigests)
	if ok {
		return
	}
	s.digests = slices.Insert(s.digests, idx, d)
	s.entries[d] = &entry{
		counters: RoundCounters{
			Push: counter,
			Age:  counter,
		},
		payload: payload,
	}
}

// takeHits returns the hits recorded during the current round and resets
// the tally.
func (s *Store) takeHits() map[Digest][]uint8 {
	hits := s.hits
	s.hits = make(map[Digest][]uint8)
	return hits
}
