package chain_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var start = time.UnixMilli(1_700_000_000_000)

func newStore(difficulty uint) *chain.Store {
	return chain.New(chain.Config{
		Difficulty: difficulty,
		Now:        func() time.Time { return start.Add(time.Hour) },
	})
}

// mine scans nonces until the block solves the difficulty.
func mine(parent chain.Block, data string, minerID string, difficulty uint) chain.Block {
	ts := parent.TimeStamp + 1000
	for nonce := uint32(0); ; nonce++ {
		b := chain.NewBlock(parent.Hash, parent.Height+1, ts, data, nonce, minerID)
		if pow.MeetsDifficulty(b.Hash, difficulty) {
			return b
		}
	}
}

// extend mines n blocks on top of parent and adds them to the store.
func extend(t *testing.T, s *chain.Store, parent chain.Block, n int, minerID string) []chain.Block {
	t.Helper()

	var out []chain.Block
	for i := range n {
		b := mine(parent, fmt.Sprintf("block %d", i), minerID, s.Difficulty())
		if _, err := s.Add(b); err != nil {
			t.Fatalf("\t%s\tShould be able to add block %s: %s", failed, b, err)
		}
		out = append(out, b)
		parent = b
	}

	return out
}

func checkCanonical(t *testing.T, s *chain.Store) {
	t.Helper()

	blocks := s.Canonical()
	for i, b := range blocks {
		if !b.Accepted {
			t.Fatalf("\t%s\tShould have every canonical block accepted: %s", failed, b)
		}
		if i == 0 {
			continue
		}
		if b.PrevHash != blocks[i-1].Hash || b.Height != blocks[i-1].Height+1 {
			t.Fatalf("\t%s\tShould link canonical block %d to its parent.", failed, i)
		}
	}
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start every store with a genesis block.")
	{
		s := newStore(4)

		blocks := s.Canonical()
		if len(blocks) != 1 {
			t.Fatalf("\t%s\tTest:\tShould have exactly one block: got %d", failed, len(blocks))
		}
		t.Logf("\t%s\tTest:\tShould have exactly one block.", success)

		g := blocks[0]
		if g.Height != 0 || g.PrevHash != pow.NoParent || !g.Accepted || g.MinerID != chain.GenesisMiner {
			t.Fatalf("\t%s\tTest:\tShould have a proper genesis block: %+v", failed, g)
		}
		t.Logf("\t%s\tTest:\tShould have a proper genesis block.", success)

		if g.ComputeHash() != g.Hash {
			t.Fatalf("\t%s\tTest:\tShould have a genesis hash matching its fields.", failed)
		}
		t.Logf("\t%s\tTest:\tShould have a genesis hash matching its fields.", success)

		if s.Size() != 1 {
			t.Fatalf("\t%s\tTest:\tShould have one block in the pool: got %d", failed, s.Size())
		}
		t.Logf("\t%s\tTest:\tShould have one block in the pool.", success)
	}
}

func Test_AddNextBlock(t *testing.T) {
	t.Log("Given the need to extend an empty store by one block.")
	{
		s := newStore(0)

		b := mine(s.Tip(), "Hello Blockchain!", "miner_1", 0)
		ok, err := s.Add(b)
		if err != nil || !ok {
			t.Fatalf("\t%s\tTest:\tShould accept the block: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould accept the block.", success)

		if n := len(s.Canonical()); n != 2 {
			t.Fatalf("\t%s\tTest:\tShould have a chain of length 2: got %d", failed, n)
		}
		t.Logf("\t%s\tTest:\tShould have a chain of length 2.", success)

		if tip := s.Tip(); tip.Hash != b.Hash || !tip.Accepted {
			t.Fatalf("\t%s\tTest:\tShould make the block the accepted tip.", failed)
		}
		t.Logf("\t%s\tTest:\tShould make the block the accepted tip.", success)

		checkCanonical(t, s)
	}
}

func Test_CompetingBlocks(t *testing.T) {
	t.Log("Given the need to pick one of two blocks at the same height.")
	{
		s := newStore(0)
		genesis := s.Tip()

		first := mine(genesis, "first", "miner_1", 0)
		second := mine(genesis, "second", "miner_2", 0)

		ok, err := s.Add(first)
		if err != nil || !ok {
			t.Fatalf("\t%s\tTest:\tShould accept the first block: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould accept the first block.", success)

		ok, err = s.Add(second)
		if err != nil || ok {
			t.Fatalf("\t%s\tTest:\tShould store the second block as stale: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould store the second block as stale.", success)

		if tip := s.Tip(); tip.Hash != first.Hash {
			t.Fatalf("\t%s\tTest:\tShould keep the first block as tip.", failed)
		}
		t.Logf("\t%s\tTest:\tShould keep the first block as tip.", success)

		stored, exists := s.Block(second.Hash)
		if !exists || stored.Accepted {
			t.Fatalf("\t%s\tTest:\tShould keep the second block in the pool unaccepted.", failed)
		}
		t.Logf("\t%s\tTest:\tShould keep the second block in the pool unaccepted.", success)
	}
}

func Test_Validate(t *testing.T) {
	s := newStore(0)
	genesis := s.Tip()
	good := mine(genesis, "data", "miner_1", 0)

	tampered := good
	tampered.Nonce++

	skipHeight := chain.NewBlock(genesis.Hash, 2, genesis.TimeStamp+1000, "data", 0, "miner_1")
	unknown := chain.NewBlock(12345, 1, genesis.TimeStamp+1000, "data", 0, "miner_1")
	early := chain.NewBlock(genesis.Hash, 1, genesis.TimeStamp-1, "data", 0, "miner_1")
	future := chain.NewBlock(genesis.Hash, 1, start.Add(time.Hour+time.Hour).UnixMilli(), "data", 0, "miner_1")
	zero := chain.NewBlock(genesis.Hash, 0, genesis.TimeStamp+1000, "data", 0, "miner_1")

	type table struct {
		name  string
		block chain.Block
		err   error
	}

	tt := []table{
		{name: "valid", block: good, err: nil},
		{name: "tampered", block: tampered, err: chain.ErrHashMismatch},
		{name: "skip-height", block: skipHeight, err: chain.ErrInvalidHeight},
		{name: "unknown-parent", block: unknown, err: chain.ErrUnknownParent},
		{name: "before-parent", block: early, err: chain.ErrTimestampBeforeParent},
		{name: "future", block: future, err: chain.ErrFutureBlock},
		{name: "height-zero", block: zero, err: chain.ErrInvalidHeight},
	}

	t.Log("Given the need to validate blocks before they enter the pool.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := s.Validate(tst.block)
				if !errors.Is(err, tst.err) {
					t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, err)
					t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.err)
					t.Fatalf("\t%s\tTest %d:\tShould get back the right validation result.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get back the right validation result.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_TamperedNonceAnyDifficulty(t *testing.T) {
	t.Log("Given the need to detect tampering regardless of difficulty.")
	{
		for d := uint(0); d <= 3; d++ {
			s := newStore(d)
			b := mine(s.Tip(), "data", "miner_1", d)
			b.Nonce++

			if err := s.Validate(b); !errors.Is(err, chain.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest:\tShould reject a tampered nonce at difficulty %d: %v", failed, d, err)
			}

			if _, err := s.Add(b); !errors.Is(err, chain.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest:\tShould not add a tampered block at difficulty %d: %v", failed, d, err)
			}
			if s.Size() != 1 {
				t.Fatalf("\t%s\tTest:\tShould not change the pool on rejection.", failed)
			}
		}
		t.Logf("\t%s\tTest:\tShould reject a tampered nonce at every difficulty.", success)
	}
}

func Test_InsufficientWork(t *testing.T) {
	t.Log("Given the need to enforce the store difficulty.")
	{
		s := newStore(3)
		genesis := s.Tip()

		var weak chain.Block
		for nonce := uint32(0); ; nonce++ {
			weak = chain.NewBlock(genesis.Hash, 1, genesis.TimeStamp+1000, "data", nonce, "miner_1")
			if !pow.MeetsDifficulty(weak.Hash, 3) {
				break
			}
		}

		if _, err := s.Add(weak); !errors.Is(err, chain.ErrInsufficientWork) {
			t.Fatalf("\t%s\tTest:\tShould reject a block that misses the difficulty: %v", failed, err)
		}
		t.Logf("\t%s\tTest:\tShould reject a block that misses the difficulty.", success)

		strong := mine(genesis, "data", "miner_1", 3)
		if ok, err := s.Add(strong); err != nil || !ok {
			t.Fatalf("\t%s\tTest:\tShould accept a block that meets the difficulty: %v", failed, err)
		}
		t.Logf("\t%s\tTest:\tShould accept a block that meets the difficulty.", success)

		if _, err := s.Add(strong); !errors.Is(err, chain.ErrDuplicateBlock) {
			t.Fatalf("\t%s\tTest:\tShould reject the same block twice: %v", failed, err)
		}
		t.Logf("\t%s\tTest:\tShould reject the same block twice.", success)
	}
}

func Test_Reorganize(t *testing.T) {
	t.Log("Given the need to switch to a longer branch.")
	{
		s := newStore(0)
		genesis := s.Tip()

		a := extend(t, s, genesis, 2, "miner_a")

		b1 := mine(genesis, "b1", "miner_b", 0)
		if ok, err := s.Add(b1); err != nil || ok {
			t.Fatalf("\t%s\tTest:\tShould keep a shorter branch off the chain: ok[%v] err[%v]", failed, ok, err)
		}
		b2 := mine(b1, "b2", "miner_b", 0)
		if ok, err := s.Add(b2); err != nil || ok {
			t.Fatalf("\t%s\tTest:\tShould keep an equal height branch off the chain: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould keep shorter and equal branches off the chain.", success)

		b3 := mine(b2, "b3", "miner_b", 0)
		if ok, err := s.Add(b3); err != nil || !ok {
			t.Fatalf("\t%s\tTest:\tShould switch to the longer branch: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould switch to the longer branch.", success)

		blocks := s.Canonical()
		exp := []chain.Block{genesis, b1, b2, b3}
		if len(blocks) != len(exp) {
			t.Fatalf("\t%s\tTest:\tShould have a chain of length %d: got %d", failed, len(exp), len(blocks))
		}
		for i := range exp {
			if blocks[i].Hash != exp[i].Hash {
				t.Fatalf("\t%s\tTest:\tShould have block %d from the new branch.", failed, i)
			}
		}
		t.Logf("\t%s\tTest:\tShould have the new branch as the chain.", success)

		for _, old := range a {
			stored, _ := s.Block(old.Hash)
			if stored.Accepted {
				t.Fatalf("\t%s\tTest:\tShould unmark the old branch: %s", failed, stored)
			}
		}
		t.Logf("\t%s\tTest:\tShould unmark the old branch.", success)

		checkCanonical(t, s)

		tree := s.ForkTree()
		if tree.Count() != s.Size() {
			t.Fatalf("\t%s\tTest:\tShould have every block in the fork tree: got %d, exp %d", failed, tree.Count(), s.Size())
		}
		if len(tree.Children) != 2 || tree.Children[0].Canonical || !tree.Children[1].Canonical {
			t.Fatalf("\t%s\tTest:\tShould order genesis children by insertion with the right flags.", failed)
		}
		t.Logf("\t%s\tTest:\tShould build the fork tree.", success)
	}
}

func Test_Prune(t *testing.T) {
	t.Log("Given the need to drop old fork blocks.")
	{
		s := newStore(0)
		blocks := append([]chain.Block{s.Tip()}, extend(t, s, s.Tip(), 20, "miner_1")...)

		deep := mine(blocks[4], "deep fork", "miner_2", 0)
		shallow := mine(blocks[14], "shallow fork", "miner_2", 0)
		for _, b := range []chain.Block{deep, shallow} {
			if ok, err := s.Add(b); err != nil || ok {
				t.Fatalf("\t%s\tTest:\tShould store the fork block: ok[%v] err[%v]", failed, ok, err)
			}
		}

		if deep.Height != 5 || shallow.Height != 15 || s.Tip().Height != 20 {
			t.Fatalf("\t%s\tTest:\tShould have forks at tip-15 and tip-5.", failed)
		}

		removed := s.Prune(10)
		if removed != 1 {
			t.Fatalf("\t%s\tTest:\tShould remove one block: got %d", failed, removed)
		}
		t.Logf("\t%s\tTest:\tShould remove one block.", success)

		if _, exists := s.Block(deep.Hash); exists {
			t.Fatalf("\t%s\tTest:\tShould remove the fork at tip-15.", failed)
		}
		t.Logf("\t%s\tTest:\tShould remove the fork at tip-15.", success)

		if _, exists := s.Block(shallow.Hash); !exists {
			t.Fatalf("\t%s\tTest:\tShould keep the fork at tip-5.", failed)
		}
		t.Logf("\t%s\tTest:\tShould keep the fork at tip-5.", success)

		if n := len(s.Canonical()); n != 21 {
			t.Fatalf("\t%s\tTest:\tShould keep the whole chain: got %d", failed, n)
		}
		t.Logf("\t%s\tTest:\tShould keep the whole chain.", success)
	}
}

func Test_PruneNeverCanonical(t *testing.T) {
	t.Log("Given the need to never prune the canonical chain.")
	{
		for k := uint64(0); k <= 25; k++ {
			s := newStore(0)
			extend(t, s, s.Tip(), 20, "miner_1")
			before := s.Canonical()

			s.Prune(k)

			for _, b := range before {
				if _, exists := s.Block(b.Hash); !exists {
					t.Fatalf("\t%s\tTest:\tShould keep canonical block %s with k=%d.", failed, b, k)
				}
			}
		}
		t.Logf("\t%s\tTest:\tShould keep every canonical block for any depth.", success)
	}
}

func Test_PruneOrphans(t *testing.T) {
	t.Log("Given the need to handle branches whose base was pruned.")
	{
		s := newStore(0)
		blocks := append([]chain.Block{s.Tip()}, extend(t, s, s.Tip(), 20, "miner_1")...)

		base := mine(blocks[8], "base", "miner_2", 0)
		child := mine(base, "child", "miner_2", 0)
		for _, b := range []chain.Block{base, child} {
			if _, err := s.Add(b); err != nil {
				t.Fatalf("\t%s\tTest:\tShould store the fork block: %v", failed, err)
			}
		}

		s.Prune(10)

		if s.Orphans() != 1 {
			t.Fatalf("\t%s\tTest:\tShould have one orphan: got %d", failed, s.Orphans())
		}
		t.Logf("\t%s\tTest:\tShould have one orphan.", success)

		if tree := s.ForkTree(); tree.Count() != s.Size()-1 {
			t.Fatalf("\t%s\tTest:\tShould leave the orphan out of the fork tree.", failed)
		}
		t.Logf("\t%s\tTest:\tShould leave the orphan out of the fork tree.", success)

		grandchild := mine(child, "grandchild", "miner_2", 0)
		if ok, err := s.Add(grandchild); err != nil || ok {
			t.Fatalf("\t%s\tTest:\tShould store a block on an orphaned branch as stale: ok[%v] err[%v]", failed, ok, err)
		}
		t.Logf("\t%s\tTest:\tShould store a block on an orphaned branch as stale.", success)
	}
}

func Test_ConcurrentAdd(t *testing.T) {
	const miners = 16

	t.Log("Given the need to accept only one of many concurrent blocks.")
	{
		s := newStore(0)
		genesis := s.Tip()

		candidates := make([]chain.Block, miners)
		for i := range candidates {
			candidates[i] = mine(genesis, "race", fmt.Sprintf("miner_%d", i), 0)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var accepted int

		for _, b := range candidates {
			wg.Add(1)
			go func(b chain.Block) {
				defer wg.Done()
				if ok, _ := s.Add(b); ok {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(b)
		}
		wg.Wait()

		if accepted != 1 {
			t.Fatalf("\t%s\tTest:\tShould accept exactly one block: got %d", failed, accepted)
		}
		t.Logf("\t%s\tTest:\tShould accept exactly one block.", success)

		checkCanonical(t, s)
	}
}
