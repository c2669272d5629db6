package state

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// ReasonNotCanonical is the stale reason for a valid block that did not
// extend the longest chain.
const ReasonNotCanonical = "not_canonical"

// onBlockFound is called by a miner for every candidate it finds. The
// candidate is announced right away and accepted after the network delay.
func (s *State) onBlockFound(block chain.Block) {
	s.mu.Lock()
	if s.status == statusStopped || s.status == statusIdle {
		s.mu.Unlock()
		return
	}
	s.found++
	s.rec.BlockFound(block.MinerID)

	s.unlockAndEmit(event.BlockFound(s.now(), block))

	// A stopped scheduler refuses the task, which is the same as the
	// acceptance never happening.
	s.sched.Schedule(s.propagationDelay(), func() {
		s.acceptBlock(block)
	})
}

// propagationDelay returns the network delay plus a random jitter so
// candidates found close together are not accepted in lock step.
func (s *State) propagationDelay() time.Duration {
	if s.networkJitter <= 0 {
		return s.networkDelay
	}

	return s.networkDelay + rand.N(s.networkJitter)
}

// acceptBlock is the authoritative step of the pipeline. It runs on the
// scheduler once the block has propagated.
func (s *State) acceptBlock(block chain.Block) {
	s.mu.Lock()

	// Tasks scheduled before a stop can still be dispatched.
	if s.status == statusStopped {
		s.mu.Unlock()
		return
	}

	now := s.now()
	var evts []event.Event

	canonical, err := s.store.Add(block)
	switch {
	case err != nil:
		s.stale++
		s.rec.BlockStale(reasonOf(err))
		evts = append(evts, event.BlockStale(now, block, err.Error()))

	case !canonical:
		s.stale++
		s.rec.BlockStale(ReasonNotCanonical)
		evts = append(evts, event.BlockStale(now, block, "stored off the canonical chain"))

	default:
		s.accepted++
		s.acceptedBy[block.MinerID]++

		stored, _ := s.store.Block(block.Hash)
		evts = append(evts, event.BlockAccepted(now, stored))

		parent, _ := s.store.Block(block.PrevHash)
		interval := time.Duration(block.TimeStamp-parent.TimeStamp) * time.Millisecond
		s.rec.BlockAccepted(block.MinerID, interval)

		if change, ok := s.ctrl.Record(interval, now); ok {
			evts = append(evts, s.applyDifficulty(change, now))
		}
	}

	// The tip may have moved because of a competing block even when this
	// one was stale.
	s.broadcastWork()

	s.unlockAndEmit(evts...)
}

// Sweep prunes old fork blocks and applies the stillness trigger. It is
// called periodically by the worker and does nothing unless mining.
func (s *State) Sweep() {
	s.mu.Lock()
	if s.status != statusRunning {
		s.mu.Unlock()
		return
	}

	now := s.now()
	var evts []event.Event

	pruned := s.store.Prune(s.pruneDepth)
	if pruned > 0 {
		s.rec.Pruned(pruned)
		s.log.Infow("sweep", "status", "pruned fork blocks", "count", pruned)
	}

	if change, ok := s.ctrl.CheckStillness(now); ok {
		evts = append(evts, s.applyDifficulty(change, now))
		s.broadcastWork()
	}

	s.unlockAndEmit(evts...)
}

// applyDifficulty pushes a controller change to the store and builds the
// event describing it. Miners see it on the next broadcast. The caller must
// hold mu.
func (s *State) applyDifficulty(change difficulty.Change, now time.Time) event.Event {
	s.store.SetDifficulty(change.Current)
	s.rec.DifficultyChanged(change.Current, change.Trigger)

	s.log.Infow("difficulty", "status", "changed", "previous", change.Previous, "current", change.Current, "trigger", change.Trigger)

	return event.DifficultyUpdate(now, event.DifficultyPayload{
		Previous:    change.Previous,
		Current:     change.Current,
		Trigger:     change.Trigger,
		Probability: pow.Probability(change.Current),
	})
}

// reasonOf maps a validation error to a short label for metrics.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, chain.ErrHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, chain.ErrInsufficientWork):
		return "insufficient_work"
	case errors.Is(err, chain.ErrFutureBlock):
		return "future_block"
	case errors.Is(err, chain.ErrUnknownParent):
		return "unknown_parent"
	case errors.Is(err, chain.ErrInvalidHeight):
		return "invalid_height"
	case errors.Is(err, chain.ErrTimestampBeforeParent):
		return "timestamp_before_parent"
	case errors.Is(err, chain.ErrDuplicateBlock):
		return "duplicate"
	}
	return "invalid"
}
