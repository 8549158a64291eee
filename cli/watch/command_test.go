package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/andydunstall/rumor/pkg/backoff"
	"github.com/andydunstall/rumor/pkg/log"
	"github.com/andydunstall/rumor/pkg/websocket"
	"github.com/andydunstall/rumor/server/status/client"
)

type rumorRecorder struct {
	payloads []string
	mu       sync.Mutex
}

func (r *rumorRecorder) OnRumor(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, string(payload))
}

func (r *rumorRecorder) Payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.payloads...)
}

func TestWatch(t *testing.T) {
	t.Run("reconnect", func(t *testing.T) {
		connections := atomic.NewInt64(0)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/rumors/subscribe", r.URL.Path)

			conn, err := websocket.Upgrade(w, r)
			require.NoError(t, err)
			defer conn.Close()

			// Send a rumor then close to force the watcher to reconnect.
			n := connections.Inc()
			if n == 1 {
				assert.NoError(t, conn.WriteMessage([]byte("foo")))
				return
			}
			assert.NoError(t, conn.WriteMessage([]byte("bar")))

			// Block until the watcher disconnects.
			_, _ = conn.ReadMessage()
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var recorder rumorRecorder
		errCh := make(chan error, 1)
		go func() {
			errCh <- watch(
				ctx,
				testClient(server, t),
				backoff.New(0, time.Millisecond, time.Millisecond*10),
				recorder.OnRumor,
				log.NewNopLogger(),
			)
		}()

		assert.Eventually(t, func() bool {
			return len(recorder.Payloads()) == 2
		}, time.Second, time.Millisecond*10)
		assert.Equal(t, []string{"foo", "bar"}, recorder.Payloads())

		cancel()
		assert.NoError(t, <-errCh)
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		err := watch(
			context.Background(),
			testClient(server, t),
			backoff.New(0, time.Millisecond, time.Millisecond*10),
			func(_ []byte) {},
			log.NewNopLogger(),
		)
		assert.Error(t, err)
		assert.False(t, websocket.IsRetryable(err))
	})

	t.Run("retries exhausted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		err := watch(
			context.Background(),
			testClient(server, t),
			backoff.New(2, time.Millisecond, time.Millisecond*10),
			func(_ []byte) {},
			log.NewNopLogger(),
		)
		assert.ErrorContains(t, err, "retries exhausted")
	})
}

func testClient(server *httptest.Server, t *testing.T) *client.Gossip {
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return client.NewGossip(client.NewClient(u, time.Second))
}
