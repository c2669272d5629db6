package cmd

import (
	"log"
	"net/http"
	"os"

	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var (
	miners     int
	hashRate   float64
	difficulty uint
	data       string
	delayMS    int64
	jitterMS   int64
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new simulation session.",
	Run: func(cmd *cobra.Command, args []string) {
		req := struct {
			Miners          int     `json:"miners"`
			HashRate        float64 `json:"hash_rate,omitempty"`
			Difficulty      uint    `json:"difficulty,omitempty"`
			Data            string  `json:"data,omitempty"`
			NetworkDelayMS  int64   `json:"network_delay_ms,omitempty"`
			NetworkJitterMS int64   `json:"network_jitter_ms,omitempty"`
		}{
			Miners:          miners,
			HashRate:        hashRate,
			Difficulty:      difficulty,
			Data:            data,
			NetworkDelayMS:  delayMS,
			NetworkJitterMS: jitterMS,
		}

		var s state.Stats
		if err := call(http.MethodPost, "/v1/sim/start", req, &s); err != nil {
			log.Fatal(err)
		}
		printStats(os.Stdout, s)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().IntVarP(&miners, "miners", "m", 3, "Number of miners.")
	startCmd.Flags().Float64VarP(&hashRate, "hash-rate", "r", 0, "Hash rate of every miner, node default when zero.")
	startCmd.Flags().UintVarP(&difficulty, "difficulty", "d", 0, "Initial difficulty, node default when zero.")
	startCmd.Flags().StringVar(&data, "data", "", "Initial block payload.")
	startCmd.Flags().Int64Var(&delayMS, "delay", 0, "Network delay in milliseconds.")
	startCmd.Flags().Int64Var(&jitterMS, "jitter", 0, "Network jitter in milliseconds.")
}
