package chain

import (
	"sort"

	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Node is one block in the fork tree. It only exists for visualization.
type Node struct {
	Hash      pow.Digest `json:"hash"`
	PrevHash  pow.Digest `json:"prev_hash"`
	Height    uint64     `json:"height"`
	MinerID   string     `json:"miner_id"`
	Canonical bool       `json:"canonical"`
	Accepted  bool       `json:"accepted"`
	Children  []*Node    `json:"children,omitempty"`
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}

	count := 1
	for _, c := range n.Children {
		count += c.Count()
	}

	return count
}

// ForkTree rebuilds the parent to children tree rooted at genesis from the
// prev hash links in the pool. Children are ordered by insertion. Blocks
// whose ancestry no longer reaches genesis are left out.
func (s *Store) ForkTree() *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := make(map[pow.Digest]struct{}, len(s.canonical))
	for _, n := range s.canonical {
		canonical[n.Hash] = struct{}{}
	}

	children := make(map[pow.Digest][]*node, len(s.pool))
	for _, n := range s.pool {
		if n.IsGenesis() {
			continue
		}
		children[n.PrevHash] = append(children[n.PrevHash], n)
	}
	for _, list := range children {
		sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	}

	var build func(n *node) *Node
	build = func(n *node) *Node {
		_, isCanonical := canonical[n.Hash]

		tn := Node{
			Hash:      n.Hash,
			PrevHash:  n.PrevHash,
			Height:    n.Height,
			MinerID:   n.MinerID,
			Canonical: isCanonical,
			Accepted:  n.Accepted,
		}

		for _, c := range children[n.Hash] {
			tn.Children = append(tn.Children, build(c))
		}

		return &tn
	}

	return build(s.canonical[0])
}
