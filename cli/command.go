package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/rumor/cli/inform"
	"github.com/andydunstall/rumor/cli/node"
	"github.com/andydunstall/rumor/cli/status"
	"github.com/andydunstall/rumor/cli/watch"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rumor [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Rumor disseminates messages (rumors) across a cluster of nodes using
epidemic gossip.

Each node pushes new rumors to a few random peers each round, and pulls
rumors from a random peer. Rumors circulate for a number of rounds derived
from the cluster size, then stop, so every node learns every rumor without
any central coordination.

Start a node with:

  $ rumor node

Join an existing cluster with:

  $ rumor node --cluster.join 10.26.104.14:8003

Inform the cluster of a new rumor using:

  $ rumor inform 'my message'

Watch for rumors learned by a node using:

  $ rumor watch

You can also inspect the status of a node using:

  $ rumor status
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(inform.NewCommand())
	cmd.AddCommand(watch.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
