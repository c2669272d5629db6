// Package chain maintains every block the simulation knows about, including
// forks, and the canonical chain selected by the longest-chain rule.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Set of reasons a block is rejected by Validate or Add.
var (
	ErrHashMismatch          = errors.New("block hash does not match its fields")
	ErrInsufficientWork      = errors.New("block hash does not meet difficulty")
	ErrFutureBlock           = errors.New("block timestamp too far in the future")
	ErrUnknownParent         = errors.New("parent block is unknown")
	ErrInvalidHeight         = errors.New("block is not the next height after its parent")
	ErrTimestampBeforeParent = errors.New("block timestamp is before parent block")
	ErrDuplicateBlock        = errors.New("block already known")
)

// DefaultMaxFutureDrift is how far ahead of the store's clock a block
// timestamp may be.
const DefaultMaxFutureDrift = 2 * time.Minute

// =============================================================================

// Config represents the configuration required to construct a store.
type Config struct {
	Difficulty     uint
	MaxFutureDrift time.Duration
	Now            func() time.Time
}

// node wraps a block with the order it was inserted into the pool.
type node struct {
	Block
	seq uint64
}

// Store manages the block pool and the canonical chain.
//
// Fork choice is the longest chain by height. At equal height the branch
// already canonical keeps priority. Cumulative difficulty is not considered.
type Store struct {
	mu         sync.Mutex
	pool       map[pow.Digest]*node
	canonical  []*node
	difficulty uint
	maxFuture  time.Duration
	now        func() time.Time
	seq        uint64
}

// New constructs a store holding only the genesis block.
func New(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxFutureDrift <= 0 {
		cfg.MaxFutureDrift = DefaultMaxFutureDrift
	}

	genesis := &node{Block: NewGenesis(cfg.Now())}

	return &Store{
		pool:       map[pow.Digest]*node{genesis.Hash: genesis},
		canonical:  []*node{genesis},
		difficulty: cfg.Difficulty,
		maxFuture:  cfg.MaxFutureDrift,
		now:        cfg.Now,
	}
}

// Difficulty returns the difficulty new blocks are validated against.
func (s *Store) Difficulty() uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.difficulty
}

// SetDifficulty changes the difficulty new blocks are validated against.
func (s *Store) SetDifficulty(difficulty uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.difficulty = difficulty
}

// Validate checks the block against the rules for entering the pool.
func (s *Store) Validate(block Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.validate(block)
}

// Add validates the block and stores it in the pool. It returns true when
// the block became the new canonical tip. A false return with a nil error
// means the block is stored on a branch that is not canonical. A non-nil
// error means the block was rejected and nothing changed.
func (s *Store) Add(block Block) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(block); err != nil {
		return false, err
	}

	if _, exists := s.pool[block.Hash]; exists {
		return false, ErrDuplicateBlock
	}

	s.seq++
	n := node{Block: block, seq: s.seq}
	n.Accepted = false
	s.pool[n.Hash] = &n

	tip := s.canonical[len(s.canonical)-1]
	if n.Height <= tip.Height {
		return false, nil
	}

	// Extending the current tip doesn't require a walk.
	if n.PrevHash == tip.Hash {
		n.Accepted = true
		s.canonical = append(s.canonical, &n)
		return true, nil
	}

	path := s.ancestorPath(&n)
	if path == nil {
		return false, nil
	}

	for _, c := range s.canonical {
		c.Accepted = false
	}
	for _, p := range path {
		p.Accepted = true
	}
	s.canonical = path

	return true, nil
}

// Tip returns the last block of the canonical chain.
func (s *Store) Tip() Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.canonical[len(s.canonical)-1].Block
}

// Genesis returns the genesis block.
func (s *Store) Genesis() Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.canonical[0].Block
}

// Block looks up a block in the pool by hash.
func (s *Store) Block(hash pow.Digest) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.pool[hash]
	if !exists {
		return Block{}, false
	}

	return n.Block, true
}

// Canonical returns a copy of the canonical chain from genesis to tip.
func (s *Store) Canonical() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Block, len(s.canonical))
	for i, n := range s.canonical {
		out[i] = n.Block
	}

	return out
}

// Size returns the number of blocks in the pool across all branches.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pool)
}

// Orphans returns the number of pooled blocks whose parent is no longer in
// the pool. This happens when pruning removes the base of an old branch.
func (s *Store) Orphans() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for _, n := range s.pool {
		if n.IsGenesis() {
			continue
		}
		if _, exists := s.pool[n.PrevHash]; !exists {
			count++
		}
	}

	return count
}

// Prune removes pooled blocks more than maxDepthBehind heights below the
// tip. Blocks on the canonical chain are never removed.
func (s *Store) Prune(maxDepthBehind uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipHeight := s.canonical[len(s.canonical)-1].Height
	if tipHeight <= maxDepthBehind {
		return 0
	}
	cutoff := tipHeight - maxDepthBehind

	canonical := make(map[pow.Digest]struct{}, len(s.canonical))
	for _, n := range s.canonical {
		canonical[n.Hash] = struct{}{}
	}

	var removed int
	for hash, n := range s.pool {
		if _, exists := canonical[hash]; exists {
			continue
		}
		if n.Height < cutoff {
			delete(s.pool, hash)
			removed++
		}
	}

	return removed
}

// =============================================================================

// validate performs the block checks. The caller must hold the lock.
func (s *Store) validate(block Block) error {
	if hash := block.ComputeHash(); hash != block.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, block.Hash, hash)
	}

	if !pow.MeetsDifficulty(block.Hash, s.difficulty) {
		return fmt.Errorf("%w: hash %s, difficulty %d", ErrInsufficientWork, block.Hash, s.difficulty)
	}

	limit := s.now().Add(s.maxFuture)
	if block.Time().After(limit) {
		return fmt.Errorf("%w: block %s, limit %s", ErrFutureBlock, block.Time().UTC(), limit.UTC())
	}

	// The genesis block is created with the store and can't be submitted.
	if block.Height == 0 {
		return fmt.Errorf("%w: height 0 is reserved for genesis", ErrInvalidHeight)
	}

	parent, exists := s.pool[block.PrevHash]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownParent, block.PrevHash)
	}

	if block.Height != parent.Height+1 {
		return fmt.Errorf("%w: got %d, exp %d", ErrInvalidHeight, block.Height, parent.Height+1)
	}

	if block.TimeStamp < parent.TimeStamp {
		return fmt.Errorf("%w: parent %s, block %s", ErrTimestampBeforeParent, parent.Time().UTC(), block.Time().UTC())
	}

	return nil
}

// ancestorPath walks from the specified node back to genesis and returns the
// path in height order. It returns nil if an ancestor is missing from the
// pool. The caller must hold the lock.
func (s *Store) ancestorPath(tip *node) []*node {
	path := make([]*node, tip.Height+1)

	current := tip
	for {
		path[current.Height] = current
		if current.Height == 0 {
			break
		}

		parent, exists := s.pool[current.PrevHash]
		if !exists || parent.Height+1 != current.Height {
			return nil
		}
		current = parent
	}

	if !path[0].IsGenesis() {
		return nil
	}

	return path
}
