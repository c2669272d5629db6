// Package simulator is the entry point for driving a simulation. It owns at
// most one session at a time and turns lifecycle misuse into no-ops.
package simulator

import (
	"sync"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/blockchain/worker"
	"go.uber.org/zap"
)

// Simulator manages the lifecycle of the current session.
type Simulator struct {
	log *zap.SugaredLogger
	rec state.Recorder

	mu      sync.Mutex
	session *state.State
}

// New constructs a simulator with no session. The logger and recorder are
// handed to every session it starts and may be nil.
func New(log *zap.SugaredLogger, rec state.Recorder) *Simulator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Simulator{
		log: log,
		rec: rec,
	}
}

// Start constructs a new session and starts mining. Calling Start while a
// session is running or paused does nothing. A stopped session is replaced.
// Events are delivered to the sink, which must not call back into the
// simulator.
func (sim *Simulator) Start(cfg state.Config, sink event.Sink) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	if sim.session != nil && sim.session.Running() {
		return nil
	}

	if cfg.Log == nil {
		cfg.Log = sim.log
	}
	if cfg.Recorder == nil {
		cfg.Recorder = sim.rec
	}
	cfg.Sink = sink

	st, err := state.New(cfg)
	if err != nil {
		return err
	}

	// The worker package implements the background sweep. The worker will
	// register itself with the state.
	worker.Run(st, sim.log)

	st.Start()
	sim.session = st

	return nil
}

// Stop terminates the current session. The final statistics remain
// available until Reset or the next Start.
func (sim *Simulator) Stop() {
	if st := sim.current(); st != nil {
		st.Stop()
	}
}

// Pause suspends the miners of the current session.
func (sim *Simulator) Pause() {
	if st := sim.current(); st != nil {
		st.Pause()
	}
}

// Resume continues a paused session.
func (sim *Simulator) Resume() {
	if st := sim.current(); st != nil {
		st.Resume()
	}
}

// Reset stops and discards the current session.
func (sim *Simulator) Reset() {
	sim.mu.Lock()
	st := sim.session
	sim.session = nil
	sim.mu.Unlock()

	if st != nil {
		st.Stop()
		sim.log.Infow("simulator", "status", "session reset")
	}
}

// SubmitData replaces the payload of the blocks being mined. It does
// nothing without a running session.
func (sim *Simulator) SubmitData(data string) {
	if st := sim.running(); st != nil {
		st.SubmitData(data)
	}
}

// SetMinerRate changes the hash rate of one miner. It does nothing without a
// running session.
func (sim *Simulator) SetMinerRate(minerID string, rate float64) error {
	if st := sim.running(); st != nil {
		return st.SetMinerRate(minerID, rate)
	}
	return nil
}

// Stats returns a snapshot of the current session, or the zero value when
// there is none.
func (sim *Simulator) Stats() state.Stats {
	if st := sim.current(); st != nil {
		return st.Stats()
	}
	return state.Stats{}
}

// Canonical returns the canonical chain of the current session.
func (sim *Simulator) Canonical() []chain.Block {
	if st := sim.current(); st != nil {
		return st.Canonical()
	}
	return nil
}

// ForkTree returns the fork tree of the current session.
func (sim *Simulator) ForkTree() *chain.Node {
	if st := sim.current(); st != nil {
		return st.ForkTree()
	}
	return nil
}

// =============================================================================

func (sim *Simulator) current() *state.State {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	return sim.session
}

func (sim *Simulator) running() *state.State {
	st := sim.current()
	if st == nil || !st.Running() {
		return nil
	}
	return st
}
