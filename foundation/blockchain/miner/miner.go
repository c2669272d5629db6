// Package miner implements a simulated miner. Each miner runs its own search
// loop that samples nonces against a snapshot of work and reports every
// candidate block it finds.
package miner

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
	"go.uber.org/ratelimit"
)

// MaxHashRate is the highest attempts per second a miner accepts. It keeps a
// single cycle within a few milliseconds of work.
const MaxHashRate = 1_000_000

// ErrInvalidHashRate is returned when a hash rate outside [0, MaxHashRate]
// is requested.
var ErrInvalidHashRate = fmt.Errorf("hash rate must be between 0 and %d", MaxHashRate)

// Default values for a zero Config.
const (
	DefaultCycle       = 50 * time.Millisecond
	DefaultStopTimeout = time.Second
)

// statusCheck is how many attempts run between checks for a stop or pause
// inside a cycle.
const statusCheck = 4096

// Status represents where a miner is in its life cycle.
type Status int32

// Set of miner states. Stopped is terminal.
const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusStopped
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// =============================================================================

// Work is the snapshot a miner searches against until told otherwise.
type Work struct {
	HeadHash   pow.Digest
	HeadHeight uint64
	Data       string
	Difficulty uint
}

// FoundHandler is called once for every candidate block a miner finds.
type FoundHandler func(block chain.Block)

// Config represents the settings for a miner.
type Config struct {
	ID          string
	HashRate    float64
	Cycle       time.Duration
	StopTimeout time.Duration
	OnFound     FoundHandler
	Now         func() time.Time

	// Clock paces the search loop. Nil uses the wall clock.
	Clock ratelimit.Clock
}

// Stats is a point in time view of a miner.
type Stats struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	HashRate float64 `json:"hash_rate"`
	Attempts uint64  `json:"attempts"`
	Found    uint64  `json:"found"`
}

// Miner searches for blocks against the current work snapshot.
type Miner struct {
	id          string
	cycle       time.Duration
	stopTimeout time.Duration
	onFound     FoundHandler
	now         func() time.Time
	limiter     ratelimit.Limiter

	status   atomic.Int32
	attempts atomic.Uint64
	found    atomic.Uint64

	mu       sync.Mutex
	hashRate float64
	nonce    uint32
	work     Work
	gen      uint64

	done chan struct{}
}

// New constructs an idle miner.
func New(cfg Config) (*Miner, error) {
	if !validRate(cfg.HashRate) {
		return nil, ErrInvalidHashRate
	}
	if cfg.Cycle <= 0 {
		cfg.Cycle = DefaultCycle
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnFound == nil {
		cfg.OnFound = func(chain.Block) {}
	}

	opts := []ratelimit.Option{ratelimit.Per(cfg.Cycle), ratelimit.WithoutSlack}
	if cfg.Clock != nil {
		opts = append(opts, ratelimit.WithClock(cfg.Clock))
	}

	m := Miner{
		id:          cfg.ID,
		cycle:       cfg.Cycle,
		stopTimeout: cfg.StopTimeout,
		onFound:     cfg.OnFound,
		now:         cfg.Now,
		limiter:     ratelimit.New(1, opts...),
		hashRate:    cfg.HashRate,
		nonce:       rand.Uint32(),
		done:        make(chan struct{}),
	}

	return &m, nil
}

// ID returns the miner's id.
func (m *Miner) ID() string {
	return m.id
}

// Status returns the miner's current state.
func (m *Miner) Status() Status {
	return Status(m.status.Load())
}

// HashRate returns the attempts per second the miner performs.
func (m *Miner) HashRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hashRate
}

// SetHashRate changes the attempts per second starting with the next cycle.
func (m *Miner) SetHashRate(rate float64) error {
	if !validRate(rate) {
		return ErrInvalidHashRate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hashRate = rate
	return nil
}

// Work returns the snapshot the miner is searching against.
func (m *Miner) Work() Work {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.work
}

// SetWork replaces the work snapshot. The nonce cursor is moved to a new
// random position so miners don't walk correlated nonce sequences after
// every resync.
func (m *Miner) SetWork(work Work) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.work = work
	m.nonce = rand.Uint32()
	m.gen++
}

// Stats returns a snapshot of the miner's counters.
func (m *Miner) Stats() Stats {
	return Stats{
		ID:       m.id,
		Status:   m.Status().String(),
		HashRate: m.HashRate(),
		Attempts: m.attempts.Load(),
		Found:    m.found.Load(),
	}
}

// =============================================================================

// Start moves an idle miner to running and starts the search loop. It
// reports false if the miner was not idle.
func (m *Miner) Start() bool {
	if !m.status.CompareAndSwap(int32(StatusIdle), int32(StatusRunning)) {
		return false
	}

	go m.run()
	return true
}

// Pause suspends the search loop in place. The nonce cursor is kept.
func (m *Miner) Pause() bool {
	return m.status.CompareAndSwap(int32(StatusRunning), int32(StatusPaused))
}

// Resume continues a paused search loop.
func (m *Miner) Resume() bool {
	return m.status.CompareAndSwap(int32(StatusPaused), int32(StatusRunning))
}

// Stop terminates the miner and waits up to the stop timeout for the loop
// to exit. It reports false if the loop did not exit in time.
func (m *Miner) Stop() bool {
	for {
		prev := m.status.Load()
		if Status(prev) == StatusStopped {
			return true
		}
		if m.status.CompareAndSwap(prev, int32(StatusStopped)) {
			if Status(prev) == StatusIdle {
				close(m.done)
				return true
			}
			break
		}
	}

	select {
	case <-m.done:
		return true
	case <-time.After(m.stopTimeout):
		return false
	}
}

// run is the search loop. Every cycle performs a number of attempts
// proportional to the hash rate against a single timestamp.
func (m *Miner) run() {
	defer close(m.done)

	for {
		m.limiter.Take()

		switch m.Status() {
		case StatusStopped:
			return
		case StatusPaused:
			continue
		}

		if block, found := m.cycleOnce(); found {
			m.found.Add(1)
			m.onFound(block)
		}
	}
}

// cycleOnce performs one cycle of attempts. It stops at the first solution.
func (m *Miner) cycleOnce() (chain.Block, bool) {
	m.mu.Lock()
	work := m.work
	nonce := m.nonce
	gen := m.gen
	attempts := max(1, int(math.Round(m.hashRate*m.cycle.Seconds())))
	m.mu.Unlock()

	ts := m.now().UnixMilli()
	height := work.HeadHeight + 1

	var solved bool
	var tries int
	for tries < attempts {
		nonce++
		tries++

		// A stop or pause ends the cycle early so Stop never waits on a
		// large batch.
		if tries%statusCheck == 0 && m.Status() != StatusRunning {
			break
		}

		hash := pow.Hash(work.HeadHash, height, ts, work.Data, nonce, m.id)
		if pow.MeetsDifficulty(hash, work.Difficulty) {
			solved = true
			break
		}
	}
	m.attempts.Add(uint64(tries))

	// The cursor is only written back if the work didn't change under us.
	m.mu.Lock()
	if m.gen == gen {
		m.nonce = nonce
	}
	m.mu.Unlock()

	if !solved {
		return chain.Block{}, false
	}

	return chain.NewBlock(work.HeadHash, height, ts, work.Data, nonce, m.id), true
}

func validRate(rate float64) bool {
	return rate >= 0 && rate <= MaxHashRate && !math.IsNaN(rate)
}
