package state

import (
	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/miner"
	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// MinerStats is a point in time view of one miner in the session.
type MinerStats struct {
	miner.Stats
	Accepted uint64 `json:"accepted"`
}

// Stats is a point in time snapshot of the session.
type Stats struct {
	Running          bool          `json:"running"`
	Paused           bool          `json:"paused"`
	CanonicalBlocks  []chain.Block `json:"canonical_blocks"`
	ForkTree         *chain.Node   `json:"fork_tree"`
	ActiveMiners     int           `json:"active_miner_count"`
	TotalHashRate    float64       `json:"total_hash_rate"`
	Difficulty       uint          `json:"current_difficulty"`
	Probability      float64       `json:"probability"`
	AcceptedCount    uint64        `json:"accepted_count"`
	StaleCount       uint64        `json:"stale_count"`
	FoundCount       uint64        `json:"found_count"`
	Pending          int           `json:"pending"`
	ForkRate         float64       `json:"fork_rate"`
	RecentIntervals  []float64     `json:"recent_block_intervals"`
	AverageBlockTime float64       `json:"average_block_time"`
	TargetBlockTime  float64       `json:"target_block_time"`
	Height           uint64        `json:"height"`
	PoolSize         int           `json:"pool_size"`
	Orphans          int           `json:"orphans"`
	Data             string        `json:"data"`
	Miners           []MinerStats  `json:"miners"`
}

// Stats returns a snapshot of the session. Intervals and block times are in
// seconds. It is safe to call at any rate.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active int
	var rate float64
	miners := make([]MinerStats, len(s.miners))
	for i, m := range s.miners {
		ms := m.Stats()
		if ms.Status == miner.StatusRunning.String() {
			active++
		}
		rate += ms.HashRate

		miners[i] = MinerStats{
			Stats:    ms,
			Accepted: s.acceptedBy[ms.ID],
		}
	}

	var forkRate float64
	if decided := s.accepted + s.stale; decided > 0 {
		forkRate = float64(s.stale) / float64(decided)
	}

	intervals := s.ctrl.Intervals()
	recent := make([]float64, len(intervals))
	for i, d := range intervals {
		recent[i] = d.Seconds()
	}

	difficulty := s.ctrl.Difficulty()

	return Stats{
		Running:          s.status == statusRunning || s.status == statusPaused,
		Paused:           s.status == statusPaused,
		CanonicalBlocks:  s.store.Canonical(),
		ForkTree:         s.store.ForkTree(),
		ActiveMiners:     active,
		TotalHashRate:    rate,
		Difficulty:       difficulty,
		Probability:      pow.Probability(difficulty),
		AcceptedCount:    s.accepted,
		StaleCount:       s.stale,
		FoundCount:       s.found,
		Pending:          s.sched.Pending(),
		ForkRate:         forkRate,
		RecentIntervals:  recent,
		AverageBlockTime: s.ctrl.Average().Seconds(),
		TargetBlockTime:  s.ctrl.Target().Seconds(),
		Height:           s.store.Tip().Height,
		PoolSize:         s.store.Size(),
		Orphans:          s.store.Orphans(),
		Data:             s.data,
		Miners:           miners,
	}
}

// Canonical returns a copy of the canonical chain from genesis to the tip.
func (s *State) Canonical() []chain.Block {
	return s.store.Canonical()
}

// ForkTree returns the fork tree rooted at genesis.
func (s *State) ForkTree() *chain.Node {
	return s.store.ForkTree()
}
