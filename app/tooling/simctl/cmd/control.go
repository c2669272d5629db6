package cmd

import (
	"log"
	"net/http"
	"os"

	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

// controlCmd builds a command that posts to one of the session control
// endpoints and prints the resulting snapshot.
func controlCmd(action string, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			var s state.Stats
			if err := call(http.MethodPost, "/v1/sim/"+action, nil, &s); err != nil {
				log.Fatal(err)
			}
			printStats(os.Stdout, s)
		},
	}
}

func init() {
	rootCmd.AddCommand(
		controlCmd("stop", "Stop the current session and cancel pending acceptances."),
		controlCmd("pause", "Pause the miners of the current session."),
		controlCmd("resume", "Resume a paused session."),
		controlCmd("reset", "Discard the current session."),
	)
}
