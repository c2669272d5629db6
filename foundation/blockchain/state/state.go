// Package state is the core API for the simulation and implements all the
// business rules for accepting blocks mined by the simulated miners.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/miner"
	"github.com/ardanlabs/powsim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/powsim/foundation/validate"
	"github.com/ethereum/go-ethereum/common/mclock"
	"go.uber.org/zap"
)

// ErrMinerNotFound is returned when a miner id is not part of the session.
var ErrMinerNotFound = errors.New("miner not found")

// Default values for a zero Config.
const (
	DefaultHashRate      = 100.0
	DefaultDifficulty    = 3
	DefaultData          = "Hello Blockchain!"
	DefaultNetworkDelay  = 100 * time.Millisecond
	DefaultNetworkJitter = 50 * time.Millisecond
	DefaultSweepInterval = 5 * time.Second
	DefaultPruneDepth    = 10
)

// =============================================================================

// Worker interface represents the behavior required to be implemented by any
// package providing the background sweep for the session.
type Worker interface {
	Shutdown()
}

// Recorder receives measurements from the session. The metrics package
// provides the prometheus implementation.
type Recorder interface {
	BlockFound(minerID string)
	BlockAccepted(minerID string, interval time.Duration)
	BlockStale(reason string)
	DifficultyChanged(level uint, trigger string)
	Pruned(n int)
	SinkFailed()
}

// =============================================================================

// Config represents the configuration required to start a simulation.
type Config struct {
	Miners           int           `json:"miners" validate:"required,gte=1,lte=64"`
	HashRate         float64       `json:"hash_rate" validate:"gte=0,lte=1000000"`
	Difficulty       uint          `json:"difficulty" validate:"lte=8"`
	Data             string        `json:"data" validate:"max=256"`
	NetworkDelay     time.Duration `json:"network_delay" validate:"gte=0"`
	NetworkJitter    time.Duration `json:"network_jitter" validate:"gte=0"`
	TargetBlockTime  time.Duration `json:"target_block_time" validate:"gte=0"`
	SampleCount      int           `json:"sample_count" validate:"gte=0,lte=100"`
	StillnessTimeout time.Duration `json:"stillness_timeout" validate:"gte=0"`
	SweepInterval    time.Duration `json:"sweep_interval" validate:"gte=0"`
	PruneDepth       uint64        `json:"prune_depth"`
	MiningCycle      time.Duration `json:"mining_cycle" validate:"gte=0,lte=500ms"`
	MaxFutureDrift   time.Duration `json:"max_future_drift" validate:"gte=0"`

	Clock    mclock.Clock       `json:"-"`
	Now      func() time.Time   `json:"-"`
	Log      *zap.SugaredLogger `json:"-"`
	Recorder Recorder           `json:"-"`

	// Sink must not call back into the State. See event.Sink.
	Sink event.Sink `json:"-"`
}

// status tracks where the session is in its life cycle.
type status int

const (
	statusIdle status = iota
	statusRunning
	statusPaused
	statusStopped
)

// State manages a single simulation session. Every mutation of the chain,
// the controller and the miner roster happens under mu.
type State struct {
	log           *zap.SugaredLogger
	rec           Recorder
	sink          event.Sink
	now           func() time.Time
	networkDelay  time.Duration
	networkJitter time.Duration
	sweepInterval time.Duration
	pruneDepth    uint64

	emitMu sync.Mutex

	mu         sync.Mutex
	status     status
	data       string
	store      *chain.Store
	ctrl       *difficulty.Controller
	miners     []*miner.Miner
	sched      *scheduler.Scheduler
	found      uint64
	accepted   uint64
	stale      uint64
	acceptedBy map[string]uint64

	Worker Worker
}

// New constructs a session holding the genesis block and an idle set of
// miners. Nothing runs until Start is called.
func New(cfg Config) (*State, error) {
	if err := validate.Check(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg = withDefaults(cfg)
	now := cfg.Now()

	s := State{
		log:           cfg.Log,
		rec:           cfg.Recorder,
		sink:          cfg.Sink,
		now:           cfg.Now,
		networkDelay:  cfg.NetworkDelay,
		networkJitter: cfg.NetworkJitter,
		sweepInterval: cfg.SweepInterval,
		pruneDepth:    cfg.PruneDepth,
		data:          cfg.Data,
		acceptedBy:    make(map[string]uint64),
	}

	s.ctrl = difficulty.New(difficulty.Config{
		Initial:     cfg.Difficulty,
		Target:      cfg.TargetBlockTime,
		SampleCount: cfg.SampleCount,
		Stillness:   cfg.StillnessTimeout,
	}, now)

	s.store = chain.New(chain.Config{
		Difficulty:     s.ctrl.Difficulty(),
		MaxFutureDrift: cfg.MaxFutureDrift,
		Now:            cfg.Now,
	})

	// The scheduler reports panics from acceptance tasks to the log so a
	// bad block can never take the pipeline down.
	s.sched = scheduler.New(cfg.Clock, func(v any) {
		s.log.Errorw("acceptance", "status", "task panic", "ERROR", v)
	})

	for i := range cfg.Miners {
		m, err := miner.New(miner.Config{
			ID:       fmt.Sprintf("miner_%d", i+1),
			HashRate: cfg.HashRate,
			Cycle:    cfg.MiningCycle,
			OnFound:  s.onBlockFound,
			Now:      cfg.Now,
		})
		if err != nil {
			s.sched.Stop()
			return nil, fmt.Errorf("constructing miner %d: %w", i+1, err)
		}
		s.miners = append(s.miners, m)
	}

	s.broadcastWork()
	s.rec.DifficultyChanged(s.ctrl.Difficulty(), "")

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start the background sweep for the session.

	return &s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.HashRate == 0 {
		cfg.HashRate = DefaultHashRate
	}
	if cfg.Difficulty == 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	if cfg.Data == "" {
		cfg.Data = DefaultData
	}
	if cfg.NetworkDelay == 0 {
		cfg.NetworkDelay = DefaultNetworkDelay
	}
	if cfg.NetworkJitter == 0 {
		cfg.NetworkJitter = DefaultNetworkJitter
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PruneDepth == 0 {
		cfg.PruneDepth = DefaultPruneDepth
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Sink == nil {
		cfg.Sink = func(event.Event) error { return nil }
	}

	return cfg
}

// =============================================================================

// Start launches every miner. It is a no-op unless the session is idle.
func (s *State) Start() {
	s.mu.Lock()
	if s.status != statusIdle {
		s.mu.Unlock()
		return
	}
	s.status = statusRunning
	s.ctrl.Touch(s.now())

	for _, m := range s.miners {
		m.Start()
	}

	payload := s.lifecycle(0)
	s.log.Infow("simulation", "status", "started", "miners", payload.Miners, "difficulty", payload.Difficulty)

	s.unlockAndEmit(event.Lifecycle(event.KindSimulationStart, s.now(), "simulation started", payload))
}

// Stop terminates every miner and cancels every pending acceptance. It is
// terminal: a stopped session cannot be started again.
func (s *State) Stop() {
	s.mu.Lock()
	if s.status == statusStopped {
		s.mu.Unlock()
		return
	}
	wasIdle := s.status == statusIdle
	s.status = statusStopped
	miners := s.miners
	s.mu.Unlock()

	// Acceptance tasks and miner callbacks take mu, so it must be released
	// before they are joined.
	cancelled := s.shutdown(miners)

	// A session that never started only releases its resources.
	if wasIdle {
		return
	}

	s.mu.Lock()
	s.log.Infow("simulation", "status", "stopped", "cancelled", cancelled)
	s.unlockAndEmit(event.Lifecycle(event.KindSimulationStop, s.now(), "simulation stopped", s.lifecycle(cancelled)))
}

// shutdown stops the sweep, the scheduler and the miners.
func (s *State) shutdown(miners []*miner.Miner) int {
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	cancelled := s.sched.Stop()

	for _, m := range miners {
		if !m.Stop() {
			s.log.Warnw("simulation", "status", "miner did not stop in time", "miner", m.ID())
		}
	}

	return cancelled
}

// Pause suspends every miner in place. Acceptances already scheduled still
// complete.
func (s *State) Pause() {
	s.mu.Lock()
	if s.status != statusRunning {
		s.mu.Unlock()
		return
	}
	s.status = statusPaused

	for _, m := range s.miners {
		m.Pause()
	}

	s.unlockAndEmit(event.Lifecycle(event.KindSimulationPause, s.now(), "simulation paused", s.lifecycle(0)))
}

// Resume continues a paused session. The stillness timer restarts so the
// paused time doesn't count against the miners.
func (s *State) Resume() {
	s.mu.Lock()
	if s.status != statusPaused {
		s.mu.Unlock()
		return
	}
	s.status = statusRunning
	s.ctrl.Touch(s.now())

	for _, m := range s.miners {
		m.Resume()
	}

	s.unlockAndEmit(event.Lifecycle(event.KindSimulationResume, s.now(), "simulation resumed", s.lifecycle(0)))
}

// Running reports whether the session is mining or paused.
func (s *State) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status == statusRunning || s.status == statusPaused
}

// SweepInterval returns how often the background sweep should run.
func (s *State) SweepInterval() time.Duration {
	return s.sweepInterval
}

// =============================================================================

// SubmitData replaces the payload miners put in new blocks. Miners pick it
// up immediately.
func (s *State) SubmitData(data string) {
	s.mu.Lock()
	s.data = data
	s.broadcastWork()

	s.unlockAndEmit(event.Log(s.now(), "info", fmt.Sprintf("block data set to %q", data)))
}

// SetMinerRate changes the hash rate of a single miner.
func (s *State) SetMinerRate(minerID string, rate float64) error {
	s.mu.Lock()

	var m *miner.Miner
	for _, mnr := range s.miners {
		if mnr.ID() == minerID {
			m = mnr
			break
		}
	}
	if m == nil {
		s.mu.Unlock()
		return fmt.Errorf("%q: %w", minerID, ErrMinerNotFound)
	}

	if err := m.SetHashRate(rate); err != nil {
		s.mu.Unlock()
		return err
	}

	s.unlockAndEmit(event.Log(s.now(), "info", fmt.Sprintf("%s hash rate set to %.2f", minerID, rate)))
	return nil
}

// =============================================================================

// broadcastWork hands every miner a fresh snapshot of the tip. The caller
// must hold mu.
func (s *State) broadcastWork() {
	tip := s.store.Tip()

	work := miner.Work{
		HeadHash:   tip.Hash,
		HeadHeight: tip.Height,
		Data:       s.data,
		Difficulty: s.ctrl.Difficulty(),
	}

	for _, m := range s.miners {
		m.SetWork(work)
	}
}

// lifecycle builds the payload for the simulation_* events. The caller must
// hold mu.
func (s *State) lifecycle(cancelled int) event.LifecyclePayload {
	var rate float64
	for _, m := range s.miners {
		rate += m.HashRate()
	}

	return event.LifecyclePayload{
		Miners:     len(s.miners),
		HashRate:   rate,
		Difficulty: s.ctrl.Difficulty(),
		Height:     s.store.Tip().Height,
		Cancelled:  cancelled,
	}
}

// unlockAndEmit releases mu and hands the events to the sink. The emit lock
// is taken before mu is released so events reach the sink in the order the
// session produced them. The caller must hold mu.
func (s *State) unlockAndEmit(evts ...event.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Unlock()
	s.deliver(evts)
}

// deliver calls the sink for every event. A failing or panicking sink is
// logged and never reaches the caller.
func (s *State) deliver(evts []event.Event) {
	for _, evt := range evts {
		if err := s.send(evt); err != nil {
			s.rec.SinkFailed()
			s.log.Warnw("event", "status", "sink failed", "kind", evt.Kind, "ERROR", err)
		}
	}
}

func (s *State) send(evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	return s.sink(evt)
}

// =============================================================================

type nopRecorder struct{}

func (nopRecorder) BlockFound(string)                   {}
func (nopRecorder) BlockAccepted(string, time.Duration) {}
func (nopRecorder) BlockStale(string)                   {}
func (nopRecorder) DifficultyChanged(uint, string)      {}
func (nopRecorder) Pruned(int)                          {}
func (nopRecorder) SinkFailed()                         {}
