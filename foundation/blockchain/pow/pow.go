// Package pow implements the hash model for the simulation. A block's fields
// are mixed into a bounded integer digest and a difficulty level decides how
// small that digest must be for the block to count as solved.
//
// CORE NOTE: This is not a cryptographic hash. It is an arithmetic mixing
// function that is cheap enough to run millions of times per second across
// many simulated miners while still scattering nonces evenly over the digest
// range. The same threshold schedule is used for mining, validation, and the
// probability numbers shown to a user.
//
// The schedule divides the digest space by ten per level, so the ceiling is
// modest: MaxDifficulty leaves 10 winning digests out of 10^9, a success
// probability of 1e-8 per attempt. At the miner's maximum rate of 10^6
// attempts per second that is one block every 100 seconds per miner. Hard
// to find for a classroom, never astronomically so.
package pow

import (
	"fmt"
	"math"
)

// Modulus is the size of the digest space. Every digest is in [0, Modulus).
const Modulus = 1_000_000_000

// MaxDifficulty is the highest difficulty the threshold schedule supports.
// Anything above it is evaluated as MaxDifficulty. One more level would
// leave a threshold of 1 out of the digest space and the next would be 0,
// making blocks unsolvable.
const MaxDifficulty = 8

// NoParent is the previous hash carried by the genesis block. It sits outside
// the digest range so it can never collide with a real block hash.
const NoParent Digest = math.MaxUint32

// Distinct odd multipliers, one per field, so that swapping two field values
// produces a different digest.
const (
	mulPrev   uint64 = 0x9E3779B97F4A7C15
	mulHeight uint64 = 0xC2B2AE3D27D4EB4F
	mulTime   uint64 = 0x165667B19E3779F9
	mulData   uint64 = 0x27D4EB2F165667C5
	mulNonce  uint64 = 0xFF51AFD7ED558CCD
	mulMiner  uint64 = 0xC4CEB9FE1A85EC53
)

// =============================================================================

// Digest is the integer hash of a block.
type Digest uint32

// String renders the digest zero padded to the width of the digest space.
func (d Digest) String() string {
	if d == NoParent {
		return "genesis"
	}
	return fmt.Sprintf("%09d", uint32(d))
}

// Hash mixes the six block fields into a digest. Identical inputs always
// produce the identical digest so any block can be re-validated later.
func Hash(prev Digest, height uint64, timestamp int64, data string, nonce uint32, minerID string) Digest {
	acc := uint64(prev) * mulPrev
	acc = rotl(acc, 31) ^ (height * mulHeight)
	acc = rotl(acc, 27) ^ (uint64(timestamp) * mulTime)
	acc = rotl(acc, 33) ^ (fold(data) * mulData)
	acc = rotl(acc, 29) ^ (uint64(nonce) * mulNonce)
	acc = rotl(acc, 23) ^ (fold(minerID) * mulMiner)

	return Digest(finalize(acc) % Modulus)
}

// Threshold returns the exclusive upper bound a digest must stay under to
// satisfy the specified difficulty. Each level is ten times harder than the
// previous one. Difficulty 0 accepts every digest.
func Threshold(difficulty uint) uint32 {
	if difficulty > MaxDifficulty {
		difficulty = MaxDifficulty
	}

	t := uint32(Modulus)
	for range difficulty {
		t /= 10
	}

	return t
}

// MeetsDifficulty reports whether the digest is small enough for the
// specified difficulty.
func MeetsDifficulty(digest Digest, difficulty uint) bool {
	return uint32(digest) < Threshold(difficulty)
}

// Probability returns the chance a single attempt solves a block at the
// specified difficulty.
func Probability(difficulty uint) float64 {
	return float64(Threshold(difficulty)) / Modulus
}

// ExpectedAttempts returns the mean number of attempts needed to solve a
// block at the specified difficulty.
func ExpectedAttempts(difficulty uint) float64 {
	return 1 / Probability(difficulty)
}

// =============================================================================

// fold reduces a string to 64 bits using FNV-1a.
func fold(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)

	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}

	return h
}

// finalize is the splitmix64 avalanche step. Consecutive nonces must scatter
// across the whole digest range.
func finalize(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func rotl(x uint64, k uint) uint64 {
	return (x << k) | (x >> (64 - k))
}
