package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/andydunstall/rumor/pkg/websocket"
)

// Client is a client for the node admin API.
type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

func (c *Client) SetURL(url *url.URL) {
	c.url = url
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// Request sends a GET request to the given path and returns the response
// body. The caller must close the body.
func (c *Client) Request(path string) (io.ReadCloser, error) {
	return c.do(http.MethodGet, path, nil)
}

// Post sends a POST request to the given path with the given body and
// returns the response body. The caller must close the body.
func (c *Client) Post(path string, body []byte) (io.ReadCloser, error) {
	return c.do(http.MethodPost, path, bytes.NewReader(body))
}

// Dial opens a WebSocket connection to the given path.
func (c *Client) Dial(ctx context.Context, path string) (*websocket.Conn, error) {
	url := c.resolve(path)
	switch url.Scheme {
	case "https":
		url.Scheme = "wss"
	default:
		url.Scheme = "ws"
	}
	return websocket.Dial(ctx, url.String())
}

func (c *Client) do(method string, path string, body io.Reader) (io.ReadCloser, error) {
	url := c.resolve(path)

	req, err := http.NewRequest(method, url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("request: bad status: %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

func (c *Client) resolve(path string) *url.URL {
	url := new(url.URL)
	*url = *c.url
	url.Path = fspath.Join(url.Path, path)
	return url
}

type errorResponse struct {
	Error string `json:"error"`
}
