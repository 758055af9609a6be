// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainengine implements a single shard's chain: block
// acceptance, fork choice, orphan resolution, cross-shard reference
// indexing, and reorganization.
package chainengine

import (
	"strings"
	"sync"

	"github.com/littlekickoffkittie/legacy-protocol/block"
	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/consensus"
	"github.com/littlekickoffkittie/legacy-protocol/validator"
)

// ChainHead tracks the tip of a candidate chain: its block, height,
// cumulative difficulty (the raw additive sum of every ancestor's
// difficulty, per this module's fork-choice convention), and the
// ValidationContext its acceptance produced.
type ChainHead struct {
	Block           *block.Block
	Height          uint64
	TotalDifficulty uint64
	Context         *validator.ValidationContext
}

// chainRecord is the height/cumulative-difficulty pair retained for
// every validated block, independent of whether it currently holds a
// ChainHead entry. heads only tracks active tips — an interior block
// loses its head status the moment a child is accepted — but a later
// competing block may need its ancestor's height and cumulative
// difficulty long after that ancestor stopped being a tip, so this is
// tracked separately per block hash for the engine's lifetime.
type chainRecord struct {
	height          uint64
	totalDifficulty uint64
}

// ChainEngine manages one shard's view of the chain: every known block,
// the active heads competing for best-chain status, the current best
// head, parked orphans, and an index of cross-shard references other
// shards have declared against this shard.
type ChainEngine struct {
	ShardID   int
	Validator *validator.BlockValidator
	Consensus *consensus.ShardConsensus

	mu        sync.Mutex
	blocks    map[string]*block.Block
	heads     map[string]*ChainHead
	mainHead  *ChainHead
	orphans   map[string]*block.Block // keyed by the missing parent hash
	crossRefs map[int]map[string]*block.Block
	contexts  map[string]*validator.ValidationContext
	records   map[string]chainRecord
}

// New builds an empty chain engine. Call InitGenesis before AddBlock.
func New(shardID int, val *validator.BlockValidator, cons *consensus.ShardConsensus) *ChainEngine {
	return &ChainEngine{
		ShardID:   shardID,
		Validator: val,
		Consensus: cons,
		blocks:    make(map[string]*block.Block),
		heads:     make(map[string]*ChainHead),
		orphans:   make(map[string]*block.Block),
		crossRefs: make(map[int]map[string]*block.Block),
		contexts:  make(map[string]*validator.ValidationContext),
		records:   make(map[string]chainRecord),
	}
}

// InitGenesis validates and applies genesis, installing it as the
// chain's only block and main head.
func (e *ChainEngine) InitGenesis(genesis *block.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, err := e.Validator.ValidateBlock(genesis, nil, nil)
	if err != nil {
		return err
	}
	if err := e.Validator.ApplyBlock(genesis, ctx); err != nil {
		return err
	}

	head := &ChainHead{
		Block:           genesis,
		Height:          0,
		TotalDifficulty: uint64(genesis.Header.Difficulty),
		Context:         ctx,
	}

	e.blocks[genesis.BlockHash] = genesis
	e.heads[genesis.BlockHash] = head
	e.contexts[genesis.BlockHash] = ctx
	e.records[genesis.BlockHash] = chainRecord{height: 0, totalDifficulty: head.TotalDifficulty}
	e.mainHead = head

	e.indexCrossRefsLocked(genesis)
	return nil
}

// AddBlock admits b to the engine.
//
//  1. A block already known is a no-op success.
//  2. A block whose parent is unknown is parked as an orphan, keyed by
//     its prev_hash, and ErrMissingParent is returned.
//  3. Otherwise b is validated against its parent and crossShardRefs.
//  4. A ChainHead is built from the parent's recorded height and
//     cumulative difficulty (tracked independent of current head status,
//     so a competing block may extend any previously validated block,
//     not only a current tip — needed for scenarios where a later block
//     overtakes a parent long since demoted from heads).
//  5. The block and head are indexed; the parent's (now stale) head
//     entry is dropped.
//  6. If this is the chain's new best (by cumulative difficulty),
//     reorganize to it — this is the only point at which a block's
//     state changes are actually applied to the store; see
//     reorganizeLocked.
//  7. Any orphan whose parent is now known is processed recursively.
//  8. Cross-shard references the block declares are indexed.
func (e *ChainEngine) AddBlock(b *block.Block, crossShardRefs map[int]*block.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addBlockLocked(b, crossShardRefs)
}

func (e *ChainEngine) addBlockLocked(b *block.Block, crossShardRefs map[int]*block.Block) error {
	if _, exists := e.blocks[b.BlockHash]; exists {
		return nil
	}

	parent, ok := e.blocks[b.Header.PrevHash]
	if !ok {
		e.orphans[b.Header.PrevHash] = b
		return chainerr.New(chainerr.ErrMissingParent, "parent block %s not known", b.Header.PrevHash)
	}

	parentRecord, ok := e.records[parent.BlockHash]
	if !ok {
		return chainerr.AssertError("known block missing its chain record: " + parent.BlockHash)
	}

	ctx, err := e.Validator.ValidateBlock(b, parent, crossShardRefs)
	if err != nil {
		return err
	}

	newHead := &ChainHead{
		Block:           b,
		Height:          parentRecord.height + 1,
		TotalDifficulty: parentRecord.totalDifficulty + uint64(b.Header.Difficulty),
		Context:         ctx,
	}

	e.blocks[b.BlockHash] = b
	e.heads[b.BlockHash] = newHead
	e.contexts[b.BlockHash] = ctx
	e.records[b.BlockHash] = chainRecord{height: newHead.Height, totalDifficulty: newHead.TotalDifficulty}
	delete(e.heads, parent.BlockHash)

	if e.mainHead == nil || newHead.TotalDifficulty > e.mainHead.TotalDifficulty {
		if err := e.reorganizeLocked(newHead); err != nil {
			return err
		}
	}

	e.processOrphansLocked()
	e.indexCrossRefsLocked(b)

	return nil
}

// reorganizeLocked switches the main chain to newHead: it walks both the
// current main chain and newHead's chain back by height until their
// hashes agree (the common ancestor), reverts the abandoned chain
// top-down, then applies the winning chain bottom-up.
//
// Every block's ValidationContext is fetched from e.contexts rather than
// from a ChainHead still present in e.heads, because an ancestor several
// blocks deep has long since lost its head entry by the time a deep
// reorg needs to revert or re-apply it.
//
// This is also the only place ApplyBlock/RevertBlock ever run: AddBlock
// does not apply a block's effects the moment it is accepted, only when
// it becomes part of the winning chain. A block on a losing branch is
// fully validated and its context retained for a possible future
// promotion, but never touches the store unless reorganizeLocked commits
// it.
func (e *ChainEngine) reorganizeLocked(newHead *ChainHead) error {
	if e.mainHead == nil {
		// addBlockLocked only reaches here once a parent is already
		// registered, which only happens after InitGenesis has set
		// mainHead, so this should be unreachable in practice.
		panic(chainerr.AssertError("reorganize called with no existing main head"))
	}

	var oldBlocks, newBlocks []*block.Block
	old := e.mainHead.Block
	next := newHead.Block

	for old.Header.Height > next.Header.Height {
		oldBlocks = append(oldBlocks, old)
		old = e.blocks[old.Header.PrevHash]
	}
	for next.Header.Height > old.Header.Height {
		newBlocks = append([]*block.Block{next}, newBlocks...)
		next = e.blocks[next.Header.PrevHash]
	}
	for old.BlockHash != next.BlockHash {
		oldBlocks = append(oldBlocks, old)
		newBlocks = append([]*block.Block{next}, newBlocks...)
		old = e.blocks[old.Header.PrevHash]
		next = e.blocks[next.Header.PrevHash]
	}

	for _, b := range oldBlocks {
		if err := e.Validator.RevertBlock(b, e.contexts[b.BlockHash]); err != nil {
			return err
		}
	}
	for _, b := range newBlocks {
		if err := e.Validator.ApplyBlock(b, e.contexts[b.BlockHash]); err != nil {
			return err
		}
	}

	e.mainHead = newHead
	return nil
}

// processOrphansLocked admits any orphan whose parent has since become
// known, repeating until a pass makes no progress.
func (e *ChainEngine) processOrphansLocked() {
	for {
		progressed := false
		for prevHash, orphan := range e.orphans {
			if _, ok := e.blocks[prevHash]; !ok {
				continue
			}
			delete(e.orphans, prevHash)
			if err := e.addBlockLocked(orphan, nil); err == nil {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// indexCrossRefsLocked records b under every shard it declares a
// cross-shard reference for.
func (e *ChainEngine) indexCrossRefsLocked(b *block.Block) {
	for shard := range b.Header.CrossShardRefs {
		if e.crossRefs[shard] == nil {
			e.crossRefs[shard] = make(map[string]*block.Block)
		}
		e.crossRefs[shard][b.BlockHash] = b
	}
}

// GetBlock retrieves a block by hash.
func (e *ChainEngine) GetBlock(hash string) (*block.Block, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.blocks[hash]
	return b, ok
}

// GetBlockHeight returns the height of a known block.
func (e *ChainEngine) GetBlockHeight(hash string) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[hash]
	return rec.height, ok
}

// GetChainHead returns the current best head, or nil before genesis.
func (e *ChainEngine) GetChainHead() *ChainHead {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mainHead
}

// GetBlocksAfter returns the main chain's successors of fromHash, in
// ascending height order, capped at the first maxBlocks of them. It
// returns nil when fromHash is unknown or not on the main chain.
func (e *ChainEngine) GetBlocksAfter(fromHash string, maxBlocks int) []*block.Block {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mainHead == nil || maxBlocks <= 0 {
		return nil
	}
	if _, ok := e.blocks[fromHash]; !ok {
		return nil
	}

	var result []*block.Block
	current := e.mainHead.Block
	for current.BlockHash != fromHash {
		result = append([]*block.Block{current}, result...)
		current = e.blocks[current.Header.PrevHash]
		if current == nil {
			return nil
		}
	}
	if len(result) > maxBlocks {
		result = result[:maxBlocks]
	}
	return result
}

// GetCrossShardRefs returns the cross-shard references recorded against
// shard, optionally filtered to those whose declaring block's main-chain
// height is strictly greater than sinceBlock's.
func (e *ChainEngine) GetCrossShardRefs(shard int, sinceBlock string) map[string]*block.Block {
	e.mu.Lock()
	defer e.mu.Unlock()

	refs, ok := e.crossRefs[shard]
	if !ok {
		return map[string]*block.Block{}
	}
	if sinceBlock == "" {
		result := make(map[string]*block.Block, len(refs))
		for k, v := range refs {
			result[k] = v
		}
		return result
	}

	sinceRecord, ok := e.records[sinceBlock]
	if !ok {
		return map[string]*block.Block{}
	}

	result := make(map[string]*block.Block)
	for hash, b := range refs {
		if rec, ok := e.records[hash]; ok && rec.height > sinceRecord.height {
			result[hash] = b
		}
	}
	return result
}

// ValidateChain walks back from the main head, revalidating each block
// against its predecessor and the cross-shard references recorded for
// it, stopping after maxBlocks steps (0 means unbounded) or at genesis,
// whose prev_hash is the 64-'0' sentinel.
func (e *ChainEngine) ValidateChain(maxBlocks int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mainHead == nil {
		return nil
	}

	current := e.mainHead.Block
	for count := 0; maxBlocks <= 0 || count < maxBlocks; count++ {
		if current.Header.PrevHash == block.GenesisPrevHash {
			return nil
		}

		prevBlock, ok := e.blocks[current.Header.PrevHash]
		if !ok {
			return chainerr.New(chainerr.ErrMissingParent, "missing block %s", current.Header.PrevHash)
		}

		crossRefs := make(map[int]*block.Block)
		for shard, ref := range current.Header.CrossShardRefs {
			parts := strings.SplitN(ref, "|", 2)
			if len(parts) != 2 {
				continue
			}
			blockHash := parts[1]
			if refs, ok := e.crossRefs[shard]; ok {
				if refBlock, ok := refs[blockHash]; ok {
					crossRefs[shard] = refBlock
				}
			}
		}

		if _, err := e.Validator.ValidateBlock(current, prevBlock, crossRefs); err != nil {
			return chainerr.New(chainerr.ErrConsensusViolation, "invalid block %s: %v", current.BlockHash, err)
		}

		current = prevBlock
	}

	return nil
}
