package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = time.Second * 10
)

// retryableStatusCodes contains a set of HTTP status codes that should be
// retried.
var retryableStatusCodes = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// RetryableError indicates a error is retryable.
type RetryableError struct {
	err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{err}
}

func (e *RetryableError) Unwrap() error {
	return e.err
}

func (e *RetryableError) Error() string {
	return e.err.Error()
}

// IsRetryable returns whether the error is a RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

var upgrader = &websocket.Upgrader{}

// Conn is a message based WebSocket connection, where each message is
// sent as a binary WebSocket message.
//
// Conn supports one concurrent reader and one concurrent writer.
type Conn struct {
	wsConn *websocket.Conn

	// writeMu serialises writes, since both messages and pings are written
	// from different goroutines.
	writeMu sync.Mutex
}

func New(wsConn *websocket.Conn) *Conn {
	return &Conn{
		wsConn: wsConn,
	}
}

// Dial opens a WebSocket connection to the given URL.
//
// If dialing fails with a transport error or a retryable status code, a
// RetryableError is returned.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 60 * time.Second,
	}

	wsConn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			if _, ok := retryableStatusCodes[resp.StatusCode]; ok {
				return nil, NewRetryableError(err)
			}
			return nil, fmt.Errorf("%d: %w", resp.StatusCode, err)
		}
		return nil, NewRetryableError(err)
	}
	return New(wsConn), nil
}

// Upgrade upgrades the HTTP server connection to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(wsConn), nil
}

// ReadMessage reads the next binary message.
func (c *Conn) ReadMessage() ([]byte, error) {
	mt, b, err := c.wsConn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type: %d", mt)
	}
	return b, nil
}

// WriteMessage writes b as a binary message.
func (c *Conn) WriteMessage(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.wsConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.wsConn.WriteMessage(websocket.BinaryMessage, b)
}

// Ping sends a ping control message. The peer responds automatically.
func (c *Conn) Ping() error {
	return c.wsConn.WriteControl(
		websocket.PingMessage, nil, time.Now().Add(writeTimeout),
	)
}

// Close sends a close message then closes the underlying connection.
func (c *Conn) Close() error {
	// Ignore the close message error since the peer may have already
	// closed.
	_ = c.wsConn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
	return c.wsConn.Close()
}

// IsClosed returns whether the error indicates the peer closed the
// connection normally.
func IsClosed(err error) bool {
	return websocket.IsCloseError(
		err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
	)
}
