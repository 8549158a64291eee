package inform

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/rumor/server/status/client"
	"github.com/andydunstall/rumor/server/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inform [message]",
		Args:  cobra.MaximumNArgs(1),
		Short: "inform the cluster of a new rumor",
		Long: `Inform the cluster of a new rumor.

Sends the message to a node, which stores the rumor and gossips it to the
rest of the cluster. Informing a rumor the node already knows has no effect.

If no message is given, the message is read from stdin.

Outputs the rumor digest, which can be used to inspect the rumor with
'rumor status rumor'.

Examples:
  # Inform the rumor 'my message'.
  rumor inform 'my message'

  # Inform a rumor read from a file.
  rumor inform < message.json

  # Inform a rumor using node 10.26.104.56:8002.
  rumor inform 'my message' --node.url http://10.26.104.56:8002
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		var payload []byte
		if len(args) == 1 {
			payload = []byte(args[0])
		} else {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Printf("read stdin: %s\n", err.Error())
				os.Exit(1)
			}
			payload = b
		}

		url, _ := url.Parse(conf.Node.URL)
		gossip := client.NewGossip(client.NewClient(url, conf.Timeout))

		digest, err := gossip.Inform(payload)
		if err != nil {
			fmt.Printf("failed to inform rumor: %s\n", err.Error())
			os.Exit(1)
		}
		fmt.Println(digest.String())
	}

	return cmd
}
