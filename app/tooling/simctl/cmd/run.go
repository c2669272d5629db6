package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/powsim/business/sys/metrics"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var duration time.Duration

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation in process without a node and print the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New("SIMCTL")
		if err != nil {
			return err
		}
		defer log.Sync()

		cfg := state.Config{
			Miners:        miners,
			HashRate:      hashRate,
			Difficulty:    difficulty,
			Data:          data,
			NetworkDelay:  time.Duration(delayMS) * time.Millisecond,
			NetworkJitter: time.Duration(jitterMS) * time.Millisecond,
		}

		return runLocal(log, cfg, duration)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&miners, "miners", "m", 3, "Number of miners.")
	runCmd.Flags().Float64VarP(&hashRate, "hash-rate", "r", 0, "Hash rate of every miner.")
	runCmd.Flags().UintVarP(&difficulty, "difficulty", "d", 0, "Initial difficulty.")
	runCmd.Flags().StringVar(&data, "data", "", "Initial block payload.")
	runCmd.Flags().Int64Var(&delayMS, "delay", 0, "Network delay in milliseconds.")
	runCmd.Flags().Int64Var(&jitterMS, "jitter", 0, "Network jitter in milliseconds.")
	runCmd.Flags().DurationVarP(&duration, "duration", "t", 30*time.Second, "How long to run the simulation.")
}

// runLocal drives a session until the duration elapses or the process is
// interrupted, logging every event as it happens.
func runLocal(log *zap.SugaredLogger, cfg state.Config, d time.Duration) error {
	sink := func(evt event.Event) error {
		switch p := evt.Payload.(type) {
		case event.BlockPayload:
			log.Infow(evt.Message, "kind", evt.Kind, "miner", p.Block.MinerID, "height", p.Block.Height, "hash", p.Block.Hash)
		case event.DifficultyPayload:
			log.Infow(evt.Message, "kind", evt.Kind, "previous", p.Previous, "current", p.Current, "trigger", p.Trigger)
		default:
			log.Infow(evt.Message, "kind", evt.Kind)
		}
		return nil
	}

	sim := simulator.New(log, metrics.NewSimulation())
	if err := sim.Start(cfg, sink); err != nil {
		return fmt.Errorf("starting simulation: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case <-time.After(d):
	case sig := <-shutdown:
		log.Infow("run", "status", "interrupted", "signal", sig)
	}

	sim.Stop()
	printStats(os.Stdout, sim.Stats())

	return nil
}
