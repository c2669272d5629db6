// Package worker implements the background sweep for a simulation session.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"go.uber.org/zap"
)

// Worker manages the periodic sweep for the session.
type Worker struct {
	state    *state.State
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
	ticker   *time.Ticker
	shut     chan struct{}
	shutOnce sync.Once
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, log *zap.SugaredLogger) *Worker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	w := Worker{
		state:  st,
		log:    log,
		ticker: time.NewTicker(st.SweepInterval()),
		shut:   make(chan struct{}),
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.sweepOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for range g {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work. It is safe to call
// more than once.
func (w *Worker) Shutdown() {
	w.shutOnce.Do(func() {
		w.log.Infow("worker", "status", "shutdown started")
		defer w.log.Infow("worker", "status", "shutdown completed")

		w.ticker.Stop()

		close(w.shut)
		w.wg.Wait()
	})
}

// =============================================================================

// sweepOperations prunes the fork blocks and checks for a stalled chain on
// every tick.
func (w *Worker) sweepOperations() {
	w.log.Infow("worker", "status", "sweep G started", "interval", w.state.SweepInterval())
	defer w.log.Infow("worker", "status", "sweep G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.state.Sweep()
			}
		case <-w.shut:
			return
		}
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
