package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := Upgrade(w, r)
			require.NoError(t, err)
			defer conn.Close()

			for {
				b, err := conn.ReadMessage()
				if err != nil {
					return
				}
				assert.NoError(t, conn.WriteMessage(b))
			}
		}))
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, err := Dial(context.TODO(), url)
		require.NoError(t, err)
		defer conn.Close()

		for _, msg := range []string{"foo", "bar", ""} {
			require.NoError(t, conn.WriteMessage([]byte(msg)))

			b, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, msg, string(b))
		}

		assert.NoError(t, conn.Ping())
	})

	t.Run("peer closed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := Upgrade(w, r)
			require.NoError(t, err)
			conn.Close()
		}))
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, err := Dial(context.TODO(), url)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.ReadMessage()
		assert.True(t, IsClosed(err))
	})

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		_, err := Dial(context.TODO(), url)
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})

	t.Run("retryable status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		_, err := Dial(context.TODO(), url)
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		server.Close()

		_, err := Dial(context.TODO(), url)
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})
}
