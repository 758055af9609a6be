// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package consensus implements per-shard consensus rules: block
// acceptance checks (shard membership, coordinate validity, difficulty,
// timestamp bounds, cross-shard reference integrity, proof-of-work) and
// sliding-window difficulty retargeting.
package consensus

import (
	"math/big"
	"math/bits"
	"strings"
	"sync"
	"time"

	"github.com/littlekickoffkittie/legacy-protocol/block"
	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
)

// DefaultTargetBlockTime, DefaultDifficultyWindow, DefaultMaxDifficultyChange,
// and DefaultInitialDifficulty are this module's default tunables.
const (
	DefaultTargetBlockTime      = 600
	DefaultDifficultyWindow     = 2016
	DefaultMaxDifficultyChange  = 4.0
	DefaultInitialDifficulty    = 16
	maxFutureDrift              = 7200
)

type blockTime struct {
	height    uint64
	timestamp int64
}

// ShardConsensus holds the consensus parameters and sliding-window
// difficulty-retargeting state for a single shard.
type ShardConsensus struct {
	ShardID               int
	TargetBlockTime       int64
	DifficultyWindow      int
	MaxDifficultyChange   float64
	InitialDifficulty     int

	mu            sync.Mutex
	recentBlocks  []blockTime
}

// New builds consensus rules for shardID using the given tunables; a
// zero value for any tunable falls back to its default.
func New(shardID int, targetBlockTime int64, difficultyWindow int, maxDifficultyChange float64, initialDifficulty int) *ShardConsensus {
	if targetBlockTime == 0 {
		targetBlockTime = DefaultTargetBlockTime
	}
	if difficultyWindow == 0 {
		difficultyWindow = DefaultDifficultyWindow
	}
	if maxDifficultyChange == 0 {
		maxDifficultyChange = DefaultMaxDifficultyChange
	}
	if initialDifficulty == 0 {
		initialDifficulty = DefaultInitialDifficulty
	}
	return &ShardConsensus{
		ShardID:             shardID,
		TargetBlockTime:     targetBlockTime,
		DifficultyWindow:    difficultyWindow,
		MaxDifficultyChange: maxDifficultyChange,
		InitialDifficulty:   initialDifficulty,
	}
}

// ValidateBlock checks b against every consensus rule: shard membership,
// coordinate validity, expected difficulty and timestamp bounds (when
// prev is given), cross-shard reference integrity, and proof-of-work.
func (c *ShardConsensus) ValidateBlock(b *block.Block, prev *block.Block, crossShardRefs map[int]*block.Block) error {
	if b.ShardID() != c.ShardID {
		return chainerr.New(chainerr.ErrConsensusViolation, "block belongs to shard %d, expected %d", b.ShardID(), c.ShardID)
	}

	if err := c.validateCoordinate(b.Header.Coordinate); err != nil {
		return err
	}

	if prev != nil {
		expected := c.NextDifficulty(prev)
		if b.Header.Difficulty != expected {
			return chainerr.New(chainerr.ErrConsensusViolation, "invalid difficulty: got %d, expected %d", b.Header.Difficulty, expected)
		}

		if b.Header.Timestamp <= prev.Header.Timestamp {
			return chainerr.New(chainerr.ErrConsensusViolation, "block timestamp does not advance from previous block")
		}
		if b.Header.Timestamp > time.Now().Unix()+maxFutureDrift {
			return chainerr.New(chainerr.ErrConsensusViolation, "block timestamp too far in the future")
		}
	}

	if err := c.validateCrossRefs(b, crossShardRefs); err != nil {
		return err
	}

	return c.validatePoW(b)
}

// validateCoordinate checks that coord resolves to this shard, carries
// enough depth to express the shard id in binary, and that its leading
// path digits match the shard id's MSB-first bit pattern.
func (c *ShardConsensus) validateCoordinate(coord *coordinate.Coordinate) error {
	if coord.ShardID() != c.ShardID {
		return chainerr.New(chainerr.ErrInvalidCoordinate, "coordinate shard %d does not match expected shard %d", coord.ShardID(), c.ShardID)
	}

	minDepth := bits.Len(uint(c.ShardID))
	if coord.Depth() < minDepth {
		return chainerr.New(chainerr.ErrInvalidCoordinate, "coordinate depth %d insufficient for shard %d (need %d)", coord.Depth(), c.ShardID, minDepth)
	}

	shardBits := shardBitPattern(c.ShardID)
	path := coord.Path()
	for i, bit := range shardBits {
		if path[i] != bit {
			return chainerr.New(chainerr.ErrInvalidCoordinate, "coordinate path does not match shard %d's bit pattern", c.ShardID)
		}
	}

	return nil
}

// shardBitPattern returns shardID's MSB-first binary digits.
func shardBitPattern(shardID int) []int {
	n := bits.Len(uint(shardID))
	pattern := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		pattern[i] = shardID & 1
		shardID >>= 1
	}
	return pattern
}

// validatePoW checks b's proof-of-work against its declared difficulty.
func (c *ShardConsensus) validatePoW(b *block.Block) error {
	if b.BlockHash == "" {
		return chainerr.New(chainerr.ErrConsensusViolation, "block not mined")
	}

	hashInt := new(big.Int)
	if _, ok := hashInt.SetString(b.BlockHash, 16); !ok {
		return chainerr.New(chainerr.ErrConsensusViolation, "block hash is not valid hex")
	}

	target := big.NewInt(1)
	target.Lsh(target, uint(256-b.Header.Difficulty))

	if hashInt.Cmp(target) >= 0 {
		return chainerr.New(chainerr.ErrConsensusViolation, "invalid proof-of-work")
	}
	return nil
}

// validateCrossRefs checks every cross-shard reference in b's header
// against the actual referenced block from crossShardRefs: the
// "mesh_root|block_hash" format parses, and both halves match the
// referenced block's real values.
func (c *ShardConsensus) validateCrossRefs(b *block.Block, crossShardRefs map[int]*block.Block) error {
	for shard, ref := range b.Header.CrossShardRefs {
		refBlock, ok := crossShardRefs[shard]
		if !ok {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "missing referenced block for shard %d", shard)
		}

		parts := strings.SplitN(ref, "|", 2)
		if len(parts) != 2 {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "malformed cross-shard ref for shard %d", shard)
		}
		meshRoot, blockHash := parts[0], parts[1]

		if blockHash != refBlock.BlockHash {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "cross-shard ref block hash mismatch for shard %d", shard)
		}
		if meshRoot != refBlock.Header.MerkleMeshRoot {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "cross-shard ref mesh root mismatch for shard %d", shard)
		}
	}
	return nil
}

// NextDifficulty computes the difficulty the block following prev must
// carry. It maintains a sliding window of the last DifficultyWindow
// (height, timestamp) pairs seen across calls; until the window fills,
// it returns prev's own difficulty unchanged.
func (c *ShardConsensus) NextDifficulty(prev *block.Block) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentBlocks = append(c.recentBlocks, blockTime{height: prev.Header.Height, timestamp: prev.Header.Timestamp})
	if len(c.recentBlocks) > c.DifficultyWindow {
		c.recentBlocks = c.recentBlocks[len(c.recentBlocks)-c.DifficultyWindow:]
	}

	if len(c.recentBlocks) < c.DifficultyWindow {
		return prev.Header.Difficulty
	}

	first := c.recentBlocks[0]
	last := c.recentBlocks[len(c.recentBlocks)-1]
	timeSpan := last.timestamp - first.timestamp
	avgBlockTime := float64(timeSpan) / float64(c.DifficultyWindow-1)

	adjustment := float64(c.TargetBlockTime) / avgBlockTime
	if adjustment > c.MaxDifficultyChange {
		adjustment = c.MaxDifficultyChange
	} else if adjustment < 1.0/c.MaxDifficultyChange {
		adjustment = 1.0 / c.MaxDifficultyChange
	}

	newDifficulty := int(float64(prev.Header.Difficulty) * adjustment)
	if newDifficulty < c.InitialDifficulty {
		return c.InitialDifficulty
	}
	return newDifficulty
}

// ResetDifficulty clears the sliding-window difficulty state, e.g. after
// a reorg invalidates the recorded block-time history.
func (c *ShardConsensus) ResetDifficulty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentBlocks = nil
}

// MinTimestamp returns the minimum timestamp a block extending prev may
// carry.
func (c *ShardConsensus) MinTimestamp(prev *block.Block) int64 {
	return prev.Header.Timestamp + 1
}

// MaxTimestamp returns the maximum timestamp a new block may carry,
// bounded by how far into the future a block is allowed to claim.
func (c *ShardConsensus) MaxTimestamp() int64 {
	return time.Now().Unix() + maxFutureDrift
}

// ValidateDifficultyTransition reports whether the change from
// oldDifficulty to newDifficulty stays within MaxDifficultyChange in
// either direction.
func (c *ShardConsensus) ValidateDifficultyTransition(oldDifficulty, newDifficulty int) bool {
	ratio := float64(newDifficulty) / float64(oldDifficulty)
	inverse := float64(oldDifficulty) / float64(newDifficulty)
	if inverse > ratio {
		ratio = inverse
	}
	return ratio <= c.MaxDifficultyChange
}
