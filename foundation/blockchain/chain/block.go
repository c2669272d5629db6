package chain

import (
	"fmt"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Genesis values shared by every store.
const (
	GenesisData  = "Genesis Block"
	GenesisMiner = "system"
)

// =============================================================================

// Block represents a single block mined by one of the simulated miners. All
// fields except Accepted are fixed once the block is constructed.
type Block struct {
	Height    uint64     `json:"height"`    // Number of blocks between this one and genesis.
	PrevHash  pow.Digest `json:"prev_hash"` // Hash of the parent, pow.NoParent for genesis.
	TimeStamp int64      `json:"timestamp"` // Unix milliseconds of the mining cycle that found it.
	Data      string     `json:"data"`      // Payload the miner was working on.
	Nonce     uint32     `json:"nonce"`     // Value that solved the threshold test.
	MinerID   string     `json:"miner_id"`  // Miner that found the block.
	Hash      pow.Digest `json:"hash"`      // Digest over all the fields above.
	Accepted  bool       `json:"accepted"`  // True only while on the canonical chain.
}

// NewBlock constructs a block and computes its hash.
func NewBlock(prevHash pow.Digest, height uint64, timeStamp int64, data string, nonce uint32, minerID string) Block {
	b := Block{
		Height:    height,
		PrevHash:  prevHash,
		TimeStamp: timeStamp,
		Data:      data,
		Nonce:     nonce,
		MinerID:   minerID,
	}
	b.Hash = b.ComputeHash()

	return b
}

// NewGenesis constructs the genesis block for a store created at the
// specified time.
func NewGenesis(t time.Time) Block {
	b := NewBlock(pow.NoParent, 0, t.UnixMilli(), GenesisData, 0, GenesisMiner)
	b.Accepted = true

	return b
}

// ComputeHash recomputes the digest from the block's fields. It ignores the
// stored Hash so it can be compared against it.
func (b Block) ComputeHash() pow.Digest {
	return pow.Hash(b.PrevHash, b.Height, b.TimeStamp, b.Data, b.Nonce, b.MinerID)
}

// Time returns the block's timestamp as a time value.
func (b Block) Time() time.Time {
	return time.UnixMilli(b.TimeStamp)
}

// IsGenesis reports whether this is the genesis block.
func (b Block) IsGenesis() bool {
	return b.Height == 0 && b.PrevHash == pow.NoParent
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%d]:%s:prev[%s]:miner[%s]", b.Height, b.Hash, b.PrevHash, b.MinerID)
}
