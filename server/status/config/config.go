package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

type NodeConfig struct {
	// URL is the node admin URL.
	URL string `json:"url"`
}

func (c *NodeConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("missing url")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return nil
}

type Config struct {
	Node NodeConfig `json:"node"`

	// Timeout is the timeout for each request to the node.
	Timeout time.Duration `json:"timeout"`
}

func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if c.Timeout == 0 {
		return fmt.Errorf("missing timeout")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Node.URL,
		"node.url",
		"http://localhost:8002",
		`
Rumor node URL. This URL should point to the node admin port.
`,
	)
	fs.DurationVar(
		&c.Timeout,
		"timeout",
		time.Second*15,
		`
Timeout for each request to the node.
`,
	)
}
