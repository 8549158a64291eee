package status

import (
	"fmt"
	"os"
	"sort"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/rumor/pkg/gossip"
	"github.com/andydunstall/rumor/pkg/rumor"
	servergossip "github.com/andydunstall/rumor/server/gossip"
	"github.com/andydunstall/rumor/server/status/client"
)

func newRumorsCommand(c *client.Gossip) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rumors",
		Short: "inspect stored rumors",
		Long: `Inspect stored rumors.

Queries the node for every rumor it has stored, including rumors that no
longer circulate, ordered by digest.

Examples:
  rumor status rumors
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showRumors(c)
	}

	return cmd
}

type rumorOutput struct {
	Digest  string `json:"digest"`
	Phase   string `json:"phase"`
	Push    uint8  `json:"push"`
	Age     uint8  `json:"age"`
	Size    int    `json:"size"`
	Payload string `json:"payload"`
}

type rumorsOutput struct {
	Rumors []rumorOutput `json:"rumors"`
}

func showRumors(c *client.Gossip) {
	rumors, err := c.Rumors()
	if err != nil {
		fmt.Printf("failed to get rumors: %s\n", err.Error())
		os.Exit(1)
	}

	output := rumorsOutput{
		Rumors: make([]rumorOutput, 0, len(rumors)),
	}
	for _, r := range rumors {
		output.Rumors = append(output.Rumors, newRumorOutput(r))
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newRumorCommand(c *client.Gossip) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rumor",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a stored rumor",
		Long: `Inspect a stored rumor.

Queries the node for the rumor with the given digest. The digest is the
hex encoded SHA3-256 hash of the rumor payload, as returned by
'rumor inform'.

Examples:
  rumor status rumor 3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		d, err := rumor.ParseDigest(args[0])
		if err != nil {
			fmt.Printf("invalid digest: %s\n", err.Error())
			os.Exit(1)
		}
		showRumor(d, c)
	}

	return cmd
}

func showRumor(d rumor.Digest, c *client.Gossip) {
	r, err := c.Rumor(d)
	if err != nil {
		fmt.Printf("failed to get rumor: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(newRumorOutput(*r))
	fmt.Println(string(b))
}

func newThresholdsCommand(c *client.Gossip) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "inspect rumor phase thresholds",
		Long: `Inspect rumor phase thresholds.

Queries the node for the number of rounds each rumor phase lasts, which is
derived from the number of peers the node knows.

Examples:
  rumor status thresholds
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showThresholds(c)
	}

	return cmd
}

type thresholdsOutput struct {
	Peers     int   `json:"peers"`
	Hot       uint8 `json:"hot"`
	Cold      uint8 `json:"cold"`
	Terminate uint8 `json:"terminate"`
}

func showThresholds(c *client.Gossip) {
	thresholds, err := c.Thresholds()
	if err != nil {
		fmt.Printf("failed to get thresholds: %s\n", err.Error())
		os.Exit(1)
	}

	output := thresholdsOutput{
		Peers:     thresholds.Peers,
		Hot:       thresholds.Thresholds.Hot,
		Cold:      thresholds.Thresholds.Cold,
		Terminate: thresholds.Thresholds.Terminate,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newPeersCommand(c *client.Gossip) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect known peers",
		Long: `Inspect known peers.

Queries the node for each peer it knows, including whether the failure
detector considers the peer reachable.

Examples:
  rumor status peers
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showPeers(c)
	}

	return cmd
}

type peersOutput struct {
	Peers []gossip.Peer `json:"peers"`
}

func showPeers(c *client.Gossip) {
	peers, err := c.Peers()
	if err != nil {
		fmt.Printf("failed to get peers: %s\n", err.Error())
		os.Exit(1)
	}

	// Sort by address.
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Addr < peers[j].Addr
	})

	output := peersOutput{
		Peers: peers,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newRumorOutput(r servergossip.RumorStatus) rumorOutput {
	return rumorOutput{
		Digest:  r.Digest.String(),
		Phase:   string(r.Phase),
		Push:    r.Counters.Push,
		Age:     r.Counters.Age,
		Size:    len(r.Payload),
		Payload: string(r.Payload),
	}
}
