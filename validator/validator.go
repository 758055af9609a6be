// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package validator ties consensus, block structure, and per-transaction
// rules together into a single block acceptance pipeline: validate,
// apply, and revert, with a ValidationContext recording exactly what a
// block touched so revert can undo it.
package validator

import (
	"github.com/littlekickoffkittie/legacy-protocol/block"
	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/consensus"
	"github.com/littlekickoffkittie/legacy-protocol/mempool"
	"github.com/littlekickoffkittie/legacy-protocol/txn"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// ValidationContext records what ValidateBlock touched while checking a
// block, so ApplyBlock and RevertBlock can act on exactly that set
// rather than recomputing it.
//
// SpentUTXOs holds the actual UTXO objects removed by the block's
// transactions, captured at validation time before ApplyBlock removes
// them from the store — not just their ids. Capturing the objects
// themselves (rather than looking them up again during revert, after
// they are already gone) is what makes RevertBlock a true inverse of
// ApplyBlock.
type ValidationContext struct {
	SpentUTXOs     map[string]*utxo.UTXO
	CreatedUTXOIDs map[string]struct{}
	CrossShardDeps map[int]map[string]struct{}
}

// NewValidationContext returns an empty context.
func NewValidationContext() *ValidationContext {
	return &ValidationContext{
		SpentUTXOs:     make(map[string]*utxo.UTXO),
		CreatedUTXOIDs: make(map[string]struct{}),
		CrossShardDeps: make(map[int]map[string]struct{}),
	}
}

// siblingLister is the optional capability a Storage implementation may
// offer to enumerate UTXOs by shard, used to locate FRACTAL_MERGE sibling
// candidates. A store that does not implement it simply can't host
// FRACTAL_MERGE spends.
type siblingLister interface {
	GetUTXOsByShard(shard int) []*utxo.UTXO
}

// BlockValidator applies a single shard's consensus rules, block
// structure checks, and per-transaction validation to incoming blocks.
type BlockValidator struct {
	Consensus *consensus.ShardConsensus
	Store     utxo.Storage
	Verifier  utxo.SignatureVerifier
	Mempool   *mempool.Mempool // may be nil
}

// New builds a BlockValidator from its collaborators.
func New(c *consensus.ShardConsensus, store utxo.Storage, verifier utxo.SignatureVerifier, mp *mempool.Mempool) *BlockValidator {
	return &BlockValidator{
		Consensus: c,
		Store:     store,
		Verifier:  verifier,
		Mempool:   mp,
	}
}

// ValidateBlock runs the full acceptance pipeline: consensus rules,
// block structural verification, then per-transaction validation in
// order (rejecting intra-block double spends), then cross-shard state
// validation. It returns the ValidationContext ApplyBlock/RevertBlock
// need, or an error from the first failing check.
func (v *BlockValidator) ValidateBlock(b *block.Block, prev *block.Block, crossShardRefs map[int]*block.Block) (*ValidationContext, error) {
	if err := v.Consensus.ValidateBlock(b, prev, crossShardRefs); err != nil {
		return nil, err
	}
	if err := b.Verify(prev, v.Store, v.Verifier); err != nil {
		return nil, err
	}

	ctx := NewValidationContext()
	for _, tx := range b.Transactions {
		if err := v.validateTransaction(tx, b, ctx); err != nil {
			return nil, err
		}
	}

	if err := v.validateCrossShardState(b, crossShardRefs, ctx); err != nil {
		return nil, err
	}

	return ctx, nil
}

// validateTransaction checks tx against the UTXO store and the in-block
// spend set built up so far, then records its effect on ctx.
func (v *BlockValidator) validateTransaction(tx *txn.Transaction, b *block.Block, ctx *ValidationContext) error {
	for _, in := range tx.Inputs {
		if _, alreadySpent := ctx.SpentUTXOs[in.UTXOID]; alreadySpent {
			return chainerr.New(chainerr.ErrInputSpent, "input UTXO %s double-spent within block", in.UTXOID)
		}
	}

	if err := tx.Validate(v.Store, v.Verifier, b.Header.Height, nil); err != nil {
		return err
	}

	for _, in := range tx.Inputs {
		u, ok := v.Store.GetUTXO(in.UTXOID)
		if !ok {
			return chainerr.New(chainerr.ErrInputMissing, "input UTXO %s not found", in.UTXOID)
		}
		if err := v.checkMergeSiblings(u, b.Header.Height); err != nil {
			return err
		}
		ctx.SpentUTXOs[in.UTXOID] = u
	}

	newUTXOs, err := tx.Execute(v.Store, v.Verifier, b.Header.Height)
	if err != nil {
		return err
	}
	for _, u := range newUTXOs {
		ctx.CreatedUTXOIDs[u.ID] = struct{}{}
	}

	if tx.CrossShard {
		proof, ok := b.CrossShardProofs[tx.ID]
		if !ok {
			return chainerr.New(chainerr.ErrProofInvalid, "cross-shard transaction %s missing proof", tx.ID)
		}
		for shard := range proof.TargetShards {
			if ctx.CrossShardDeps[shard] == nil {
				ctx.CrossShardDeps[shard] = make(map[string]struct{})
			}
			ctx.CrossShardDeps[shard][tx.ID] = struct{}{}
		}
	}

	return nil
}

// checkMergeSiblings enforces the FRACTAL_MERGE precondition that the
// utxo package's script executor cannot see on its own: u's siblings
// must actually exist in the store, share u's parent coordinate, and be
// owned by the same owner, before the mechanical merge effect is
// accepted. See siblingLister: stores that don't implement it can't host
// FRACTAL_MERGE spends.
func (v *BlockValidator) checkMergeSiblings(u *utxo.UTXO, currentHeight uint64) error {
	if u.Script.Kind != utxo.FractalMerge {
		return nil
	}

	lister, ok := v.Store.(siblingLister)
	if !ok {
		return chainerr.New(chainerr.ErrBadScript, "store does not support FRACTAL_MERGE sibling lookup")
	}

	parent := u.Coordinate.Parent()
	if parent == nil {
		return chainerr.New(chainerr.ErrBadScript, "FRACTAL_MERGE input %s has no parent coordinate", u.ID)
	}

	var siblings []*utxo.UTXO
	for _, candidate := range lister.GetUTXOsByShard(u.ShardAffinity) {
		if candidate.ID == u.ID {
			continue
		}
		if candidate.Owner != u.Owner {
			continue
		}
		candidateParent := candidate.Coordinate.Parent()
		if candidateParent == nil || !candidateParent.Equal(parent) {
			continue
		}
		siblings = append(siblings, candidate)
	}

	if len(siblings) == 0 {
		return chainerr.New(chainerr.ErrBadScript, "FRACTAL_MERGE input %s has no eligible sibling UTXOs", u.ID)
	}

	result := u.ExecuteScript(utxo.ScriptContext{Siblings: siblings, CurrentHeight: currentHeight})
	if !result.Status {
		return chainerr.New(chainerr.ErrBadScript, "FRACTAL_MERGE precondition failed for %s: %s", u.ID, result.Err)
	}
	return nil
}

// validateCrossShardState re-verifies every recorded cross-shard
// dependency against the referenced blocks supplied by the caller: the
// referenced block must be present, its (mesh_root, block_hash) must
// match the header's cross-shard reference for that shard, and every
// dependent transaction's proof must verify against the header's
// cross-reference maps.
func (v *BlockValidator) validateCrossShardState(b *block.Block, crossShardRefs map[int]*block.Block, ctx *ValidationContext) error {
	if len(ctx.CrossShardDeps) == 0 {
		return nil
	}

	meshRoots, blockHashes, err := b.CrossRefMaps()
	if err != nil {
		return err
	}

	for shard, txIDs := range ctx.CrossShardDeps {
		refBlock, ok := crossShardRefs[shard]
		if !ok {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "missing referenced block for shard %d", shard)
		}

		ref, ok := b.Header.CrossShardRefs[shard]
		if !ok {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "block header carries no cross-reference for shard %d", shard)
		}
		if ref != refBlock.Header.MerkleMeshRoot+"|"+refBlock.BlockHash {
			return chainerr.New(chainerr.ErrInvalidCrossRef, "cross-reference for shard %d does not match the referenced block", shard)
		}

		for txID := range txIDs {
			proof, ok := b.CrossShardProofs[txID]
			if !ok {
				return chainerr.New(chainerr.ErrProofInvalid, "missing proof for cross-shard transaction %s", txID)
			}
			if err := proof.Verify(meshRoots, blockHashes); err != nil {
				return err
			}
		}
	}

	return nil
}

// ApplyBlock commits a validated block's effects: it executes each
// transaction against the still-unmodified store to mint its outputs,
// then removes every spent UTXO, and drops the block's transactions
// from the mempool (if one is configured). Minting must happen before
// removal: Execute re-runs Validate, which resolves each input against
// the store, so removing spent inputs first would make every spending
// transaction fail with a missing-input error. Newly minted outputs are
// not visible to other transactions in the same block regardless of
// ordering, since they are only added to the store after every
// transaction has executed.
func (v *BlockValidator) ApplyBlock(b *block.Block, ctx *ValidationContext) error {
	var newUTXOs []*utxo.UTXO
	for _, tx := range b.Transactions {
		minted, err := tx.Execute(v.Store, v.Verifier, b.Header.Height)
		if err != nil {
			return err
		}
		newUTXOs = append(newUTXOs, minted...)
	}

	for utxoID := range ctx.SpentUTXOs {
		if err := v.Store.RemoveUTXO(utxoID); err != nil {
			return err
		}
	}

	for _, u := range newUTXOs {
		if err := v.Store.AddUTXO(u); err != nil {
			return err
		}
	}

	if v.Mempool != nil {
		for _, tx := range b.Transactions {
			v.Mempool.Remove(tx.ID)
		}
	}

	return nil
}

// RevertBlock undoes ApplyBlock: it removes every UTXO the block
// created, reinstates every UTXO it spent (from the objects ctx
// captured at validation time, not by looking them up again — by the
// time revert runs they are already gone from the store), and returns
// the block's transactions to the mempool.
func (v *BlockValidator) RevertBlock(b *block.Block, ctx *ValidationContext) error {
	for utxoID := range ctx.CreatedUTXOIDs {
		if err := v.Store.RemoveUTXO(utxoID); err != nil {
			return err
		}
	}

	for _, u := range ctx.SpentUTXOs {
		if err := v.Store.AddUTXO(u); err != nil {
			return err
		}
	}

	if v.Mempool != nil {
		for _, tx := range b.Transactions {
			if err := v.Mempool.AddTransaction(tx, v.Store, v.Verifier, b.Header.Height, tx.Timestamp); err != nil {
				log.Debugf("not returning transaction %s to mempool after revert: %v", tx.ID, err)
			}
		}
	}

	return nil
}
