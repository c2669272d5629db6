package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var raw bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a snapshot of the current session.",
	Run: func(cmd *cobra.Command, args []string) {
		var s state.Stats
		if err := call(http.MethodGet, "/v1/sim/stats", nil, &s); err != nil {
			log.Fatal(err)
		}

		if raw {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(s); err != nil {
				log.Fatal(err)
			}
			return
		}
		printStats(os.Stdout, s)
	},
}

// chainCmd represents the chain command
var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the canonical chain of the current session.",
	Run: func(cmd *cobra.Command, args []string) {
		var blocks []chain.Block
		if err := call(http.MethodGet, "/v1/sim/chain", nil, &blocks); err != nil {
			log.Fatal(err)
		}

		for _, b := range blocks {
			fmt.Printf("%6d  %s <- %s  %-10s nonce=%-10d %q\n", b.Height, b.Hash, b.PrevHash, b.MinerID, b.Nonce, b.Data)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, chainCmd)
	statsCmd.Flags().BoolVarP(&raw, "json", "j", false, "Print the full snapshot as json.")
}
