package status

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/rumor/server/status/client"
	"github.com/andydunstall/rumor/server/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each rumor node exposes a status API to inspect the state of the node, this
can be used to answer questions such as:
* What rumors does the node know and which phase is each in?
* How many rounds does each phase last for the current cluster size?
* What peers does the node know and are they reachable?

See 'status --help' for the available commands.

Examples:
  # Inspect the rumors known by the node.
  rumor status rumors

  # Inspect the peers known by node 10.26.104.56:8002.
  rumor status peers --node.url http://10.26.104.56:8002
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.PersistentFlags())

	c := client.NewClient(nil, 0)

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		url, _ := url.Parse(conf.Node.URL)
		c.SetURL(url)
		c.SetTimeout(conf.Timeout)
	}

	gossip := client.NewGossip(c)
	cmd.AddCommand(newRumorsCommand(gossip))
	cmd.AddCommand(newRumorCommand(gossip))
	cmd.AddCommand(newThresholdsCommand(gossip))
	cmd.AddCommand(newPeersCommand(gossip))

	return cmd
}
