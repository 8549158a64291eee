package rumor

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithPeers(n int) *Store {
	s := NewStore()
	for i := 0; i != n; i++ {
		s.AddPeer()
	}
	return s
}

func counters(t *testing.T, s *Store, payload []byte) RoundCounters {
	t.Helper()

	r, ok := s.Rumor(DigestOf(payload))
	require.True(t, ok, "rumor not found: %s", payload)
	return r.Counters
}

func TestStore_New(t *testing.T) {
	s := NewStore()
	assert.Equal(t, uint64(0), s.Peers())
	assert.Equal(t, Thresholds{}, s.Thresholds())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.GetPushList())
	assert.Empty(t, s.HandlePull())
}

func TestStore_AddPeer(t *testing.T) {
	t.Run("20 peers", func(t *testing.T) {
		s := newStoreWithPeers(20)
		assert.Equal(t, uint64(20), s.Peers())
		// ln(ln(20)) ~= 1.097 and ln(20) ~= 2.996.
		assert.Equal(t, Thresholds{Hot: 1, Cold: 2, Terminate: 2}, s.Thresholds())
	})

	t.Run("single peer", func(t *testing.T) {
		s := newStoreWithPeers(1)
		assert.Equal(t, Thresholds{Hot: 1, Cold: 2, Terminate: 2}, s.Thresholds())
	})

	t.Run("monotonic", func(t *testing.T) {
		s := NewStore()
		var prev Thresholds
		for i := 0; i != 5000; i++ {
			s.AddPeer()

			th := s.Thresholds()
			assert.GreaterOrEqual(t, th.Hot, prev.Hot)
			assert.GreaterOrEqual(t, th.Cold, prev.Cold)
			assert.GreaterOrEqual(t, th.Terminate, prev.Terminate)

			assert.GreaterOrEqual(t, th.Terminate, th.Cold)
			assert.GreaterOrEqual(t, th.Cold, th.Hot)

			prev = th
		}
	})
}

func TestStore_Inform(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Inform([]byte("foo"))
		s.Inform([]byte("foo"))

		assert.Equal(t, [][]byte{[]byte("foo")}, s.Messages())
		assert.Equal(t, RoundCounters{Push: 0, Age: 0}, counters(t, s, []byte("foo")))
	})

	t.Run("does not reset counters", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Receive(2, []byte("foo"))
		s.Inform([]byte("foo"))

		assert.Equal(t, RoundCounters{Push: 2, Age: 2}, counters(t, s, []byte("foo")))
	})
}

func TestStore_Receive(t *testing.T) {
	t.Run("unknown rumor", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Receive(3, []byte("foo"))

		assert.Equal(t, RoundCounters{Push: 3, Age: 3}, counters(t, s, []byte("foo")))
		assert.True(t, s.Has([]byte("foo")))
	})

	t.Run("catch up", func(t *testing.T) {
		s := newStoreWithPeers(20)
		for _, c := range []uint8{3, 1, 5, 2} {
			s.Receive(c, []byte("foo"))
		}

		// Age is only set from the first counter seen.
		assert.Equal(t, RoundCounters{Push: 5, Age: 3}, counters(t, s, []byte("foo")))
	})

	t.Run("does not lower counter", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Inform([]byte("foo"))
		s.Receive(1, []byte("foo"))
		s.Receive(0, []byte("foo"))

		assert.Equal(t, uint8(1), counters(t, s, []byte("foo")).Push)
	})
}

func TestStore_GetPushList(t *testing.T) {
	t.Run("informed rumor", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Inform([]byte("foo"))

		assert.Equal(t, []Message{{Counter: 0, Payload: []byte("foo")}}, s.GetPushList())
		assert.Equal(t, RoundCounters{Push: 0, Age: 1}, counters(t, s, []byte("foo")))
	})

	t.Run("terminate", func(t *testing.T) {
		s := newStoreWithPeers(20)
		terminate := s.Thresholds().Terminate
		s.Inform([]byte("foo"))

		for round := 0; round != int(terminate)+1; round++ {
			assert.Equal(
				t,
				[]Message{{Counter: 0, Payload: []byte("foo")}},
				s.GetPushList(),
			)
			// Without hits the push counter never leaves the hot phase, but
			// the rumor keeps ageing.
			assert.Equal(
				t,
				RoundCounters{Push: 0, Age: uint8(round + 1)},
				counters(t, s, []byte("foo")),
			)
		}

		assert.Empty(t, s.GetPushList())
		assert.Empty(t, s.HandlePull())

		// Terminated rumors are still stored.
		assert.Equal(t, [][]byte{[]byte("foo")}, s.Messages())

		// Age stops once past the terminate threshold.
		s.GetPushList()
		assert.Equal(t, terminate+1, counters(t, s, []byte("foo")).Age)
	})

	t.Run("majority hits", func(t *testing.T) {
		s := newStoreWithPeers(20)
		hot := s.Thresholds().Hot
		s.Inform([]byte("foo"))
		s.GetPushList()

		s.Receive(hot, []byte("foo"))
		s.Receive(hot, []byte("foo"))
		s.Receive(0, []byte("foo"))
		assert.Equal(t, hot, counters(t, s, []byte("foo")).Push)

		// The push list contains the counter before advancing.
		assert.Equal(
			t,
			[]Message{{Counter: hot, Payload: []byte("foo")}},
			s.GetPushList(),
		)
		// The rumor is still hot so only advances by the single extra step
		// from two of three hits being at or past the local counter.
		assert.Equal(
			t,
			RoundCounters{Push: hot + 1, Age: 2},
			counters(t, s, []byte("foo")),
		)
	})

	t.Run("minority hits", func(t *testing.T) {
		s := newStoreWithPeers(100)
		s.Receive(1, []byte("foo"))
		s.GetPushList()
		// Consumes the hit from the first receive.
		require.Equal(t, uint8(2), counters(t, s, []byte("foo")).Push)

		s.Inform([]byte("bar"))
		s.Receive(0, []byte("bar"))
		s.Receive(1, []byte("bar"))
		s.Receive(0, []byte("bar"))
		s.GetPushList()
		// The receive of 1 raised the counter, then the two hits of 0 are
		// behind it.
		assert.Equal(t, uint8(1), counters(t, s, []byte("bar")).Push)
	})

	t.Run("hits reset each round", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Inform([]byte("foo"))
		s.Receive(0, []byte("foo"))
		s.Receive(0, []byte("foo"))

		s.GetPushList()
		assert.Equal(t, uint8(1), counters(t, s, []byte("foo")).Push)

		// No new hits so the counter stays in the hot phase.
		s.GetPushList()
		assert.Equal(t, uint8(1), counters(t, s, []byte("foo")).Push)
	})

	t.Run("cold decay", func(t *testing.T) {
		s := newStoreWithPeers(100)
		th := s.Thresholds()
		s.Receive(th.Cold, []byte("foo"))

		assert.Empty(t, s.GetPushList())
		assert.Equal(
			t,
			RoundCounters{Push: th.Cold + 1, Age: th.Cold + 1},
			counters(t, s, []byte("foo")),
		)
		assert.Empty(t, s.HandlePull())
	})
}

func TestStore_HandlePull(t *testing.T) {
	t.Run("hot and cold", func(t *testing.T) {
		s := newStoreWithPeers(100)
		th := s.Thresholds()
		s.Inform([]byte("hot"))
		s.Receive(th.Cold, []byte("cold"))
		s.Receive(th.Cold+1, []byte("retired"))

		pull := s.HandlePull()
		assert.ElementsMatch(t, []Message{
			{Counter: 0, Payload: []byte("hot")},
			{Counter: th.Cold, Payload: []byte("cold")},
		}, pull)

		push := s.GetPushList()
		assert.Equal(t, []Message{{Counter: 0, Payload: []byte("hot")}}, push)
	})

	t.Run("pure", func(t *testing.T) {
		s := newStoreWithPeers(20)
		s.Inform([]byte("foo"))
		s.Inform([]byte("bar"))
		s.Receive(1, []byte("car"))

		before := s.Rumors()
		assert.Equal(t, s.HandlePull(), s.HandlePull())
		assert.Equal(t, before, s.Rumors())
	})
}

func TestStore_Rumors(t *testing.T) {
	s := newStoreWithPeers(20)
	payloads := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for _, p := range payloads {
		s.Inform(p)
	}

	rumors := s.Rumors()
	require.Len(t, rumors, len(payloads))
	assert.True(t, sort.SliceIsSorted(rumors, func(i, j int) bool {
		return bytes.Compare(rumors[i].Digest[:], rumors[j].Digest[:]) < 0
	}))

	for _, r := range rumors {
		assert.Equal(t, DigestOf(r.Payload), r.Digest)
		assert.Equal(t, PhaseHot, r.Phase(s.Thresholds()))
	}

	_, ok := s.Rumor(DigestOf([]byte("unknown")))
	assert.False(t, ok)
}

func TestRumor_Phase(t *testing.T) {
	th := Thresholds{Hot: 1, Cold: 2, Terminate: 4}
	tests := []struct {
		counters RoundCounters
		expected Phase
	}{
		{RoundCounters{Push: 0, Age: 0}, PhaseHot},
		{RoundCounters{Push: 1, Age: 4}, PhaseHot},
		{RoundCounters{Push: 2, Age: 3}, PhaseCold},
		{RoundCounters{Push: 3, Age: 3}, PhaseRetired},
		{RoundCounters{Push: 0, Age: 5}, PhaseTerminated},
	}
	for _, tt := range tests {
		r := Rumor{Counters: tt.counters}
		assert.Equal(t, tt.expected, r.Phase(th), "counters=%+v", tt.counters)
	}
}

func TestDigest(t *testing.T) {
	d := DigestOf([]byte("foo"))

	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("zz")
	assert.Error(t, err)
	_, err = ParseDigest("abcd")
	assert.Error(t, err)
}
