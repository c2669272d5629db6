package cmd

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

// rateCmd represents the rate command
var rateCmd = &cobra.Command{
	Use:   "rate [miner] [hashes per second]",
	Short: "Change the hash rate of a single miner.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		rate, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			log.Fatalf("invalid rate %q: %s", args[1], err)
		}

		req := struct {
			Rate float64 `json:"rate"`
		}{
			Rate: rate,
		}

		if err := call(http.MethodPut, fmt.Sprintf("/v1/sim/miners/%s/rate", args[0]), req, nil); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s now mining at %g hashes per second\n", args[0], rate)
	},
}

func init() {
	rootCmd.AddCommand(rateCmd)
}
