package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/rumor"
	"github.com/andydunstall/rumor/pkg/websocket"
	servergossip "github.com/andydunstall/rumor/server/gossip"
)

// Gossip is a client for the gossip status and API routes.
type Gossip struct {
	client *Client
}

func NewGossip(client *Client) *Gossip {
	return &Gossip{
		client: client,
	}
}

func (c *Gossip) Rumors() ([]servergossip.RumorStatus, error) {
	var rumors []servergossip.RumorStatus
	if err := c.get("/status/gossip/rumors", &rumors); err != nil {
		return nil, err
	}
	return rumors, nil
}

func (c *Gossip) Rumor(d rumor.Digest) (*servergossip.RumorStatus, error) {
	var r servergossip.RumorStatus
	if err := c.get("/status/gossip/rumors/"+d.String(), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Gossip) Thresholds() (*servergossip.ThresholdsStatus, error) {
	var thresholds servergossip.ThresholdsStatus
	if err := c.get("/status/gossip/thresholds", &thresholds); err != nil {
		return nil, err
	}
	return &thresholds, nil
}

func (c *Gossip) Peers() ([]gossip.Peer, error) {
	var peers []gossip.Peer
	if err := c.get("/status/gossip/peers", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Inform informs the node of a new rumor and returns the rumors digest.
func (c *Gossip) Inform(payload []byte) (rumor.Digest, error) {
	r, err := c.client.Post("/v1/rumors", payload)
	if err != nil {
		return rumor.Digest{}, err
	}
	defer r.Close()

	var resp servergossip.InformResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return rumor.Digest{}, fmt.Errorf("decode response: %w", err)
	}
	return resp.Digest, nil
}

// Subscribe opens a stream of rumors newly learned by the node.
//
// If the connection fails with a retryable error, the returned error is a
// websocket.RetryableError.
func (c *Gossip) Subscribe(ctx context.Context) (*Subscription, error) {
	conn, err := c.client.Dial(ctx, "/v1/rumors/subscribe")
	if err != nil {
		return nil, err
	}
	return &Subscription{conn: conn}, nil
}

func (c *Gossip) get(path string, v interface{}) error {
	r, err := c.client.Request(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Subscription is a stream of rumors from a node.
type Subscription struct {
	conn *websocket.Conn
}

// Next blocks until the next rumor is received.
func (s *Subscription) Next() ([]byte, error) {
	return s.conn.ReadMessage()
}

func (s *Subscription) Close() error {
	return s.conn.Close()
}
