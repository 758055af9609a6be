// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainengine

import (
	"testing"

	"github.com/littlekickoffkittie/legacy-protocol/block"
	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/consensus"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/sigverify"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
	"github.com/littlekickoffkittie/legacy-protocol/validator"
)

func mustCoord(t *testing.T) *coordinate.Coordinate {
	t.Helper()
	c, err := coordinate.New(0, nil)
	if err != nil {
		t.Fatalf("coordinate.New: %v", err)
	}
	return c
}

// newEngine builds a fresh shard-0 chain engine seeded with a mined
// genesis block and returns both.
func newEngine(t *testing.T) (*ChainEngine, *block.Block) {
	t.Helper()
	coord := mustCoord(t)
	store := utxo.NewStore(0)
	cons := consensus.New(0, 0, 0, 0, 1)
	bv := validator.New(cons, store, sigverify.PlaceholderVerifier{}, nil)

	genesis := block.New(1, block.GenesisPrevHash, 1000, 1, 0, coord, nil)
	if !genesis.Mine(1 << 20) {
		t.Fatal("failed to mine genesis block")
	}

	e := New(0, bv, cons)
	if err := e.InitGenesis(genesis); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	return e, genesis
}

// mineChild builds and mines a block extending parent at the same
// difficulty, which is what this module's strict difficulty-retargeting
// check requires before the sliding window has filled.
func mineChild(t *testing.T, parent *block.Block, coord *coordinate.Coordinate) *block.Block {
	t.Helper()
	b := block.New(parent.Header.Version, parent.BlockHash, parent.Header.Timestamp+1, parent.Header.Difficulty, parent.Header.Height+1, coord, nil)
	if !b.Mine(1 << 20) {
		t.Fatal("failed to mine block")
	}
	return b
}

func TestInitGenesisAndAddBlock(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}

	head := e.GetChainHead()
	if head.Block.BlockHash != b1.BlockHash {
		t.Fatalf("chain head = %s, want %s", head.Block.BlockHash, b1.BlockHash)
	}
	if head.Height != 1 {
		t.Fatalf("chain head height = %d, want 1", head.Height)
	}

	height, ok := e.GetBlockHeight(b1.BlockHash)
	if !ok || height != 1 {
		t.Fatalf("GetBlockHeight(b1) = (%d, %v), want (1, true)", height, ok)
	}

	got, ok := e.GetBlock(genesis.BlockHash)
	if !ok || got.BlockHash != genesis.BlockHash {
		t.Fatal("expected genesis to be retrievable by hash")
	}
}

func TestAddBlockDuplicateIsNoOp(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("re-adding a known block should be a no-op, got: %v", err)
	}
}

// TestOrphanAdmissionCascades mirrors a genesis chain G->B1->B2->B3 added
// out of order: B3 then B2 then B1. Each of B3 and B2 is parked as an
// orphan until its parent arrives; adding B1 should cascade-admit both,
// leaving main_head at B3 and no orphans behind.
func TestOrphanAdmissionCascades(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	b2 := mineChild(t, b1, coord)
	b3 := mineChild(t, b2, coord)

	if err := e.AddBlock(b3, nil); !chainerr.HasCode(err, chainerr.ErrMissingParent) {
		t.Fatalf("AddBlock(b3) = %v, want ErrMissingParent", err)
	}
	if err := e.AddBlock(b2, nil); !chainerr.HasCode(err, chainerr.ErrMissingParent) {
		t.Fatalf("AddBlock(b2) = %v, want ErrMissingParent", err)
	}
	if len(e.orphans) != 2 {
		t.Fatalf("expected 2 parked orphans, got %d", len(e.orphans))
	}

	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}

	if len(e.orphans) != 0 {
		t.Fatalf("expected orphans to drain after b1 is admitted, got %d left", len(e.orphans))
	}
	head := e.GetChainHead()
	if head.Block.BlockHash != b3.BlockHash {
		t.Fatalf("chain head = %s, want b3 (%s)", head.Block.BlockHash, b3.BlockHash)
	}
	if head.Height != 3 {
		t.Fatalf("chain head height = %d, want 3", head.Height)
	}
}

// TestReorgToLongerCompetingChain builds G->B1->B2 and then a competing
// G->B1'->B2'->B3' branch, one block longer. Adding the competing chain
// after the first should trigger a reorg: the longer branch's greater
// cumulative difficulty makes it the new main chain, while both histories
// remain known.
func TestReorgToLongerCompetingChain(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}
	b2 := mineChild(t, b1, coord)
	if err := e.AddBlock(b2, nil); err != nil {
		t.Fatalf("AddBlock(b2): %v", err)
	}

	if head := e.GetChainHead(); head.Block.BlockHash != b2.BlockHash {
		t.Fatalf("chain head = %s, want b2 (%s)", head.Block.BlockHash, b2.BlockHash)
	}

	// mineChild(genesis) would rebuild b1 exactly; a later timestamp makes
	// b1' a distinct block at the same height.
	b1p := block.New(genesis.Header.Version, genesis.BlockHash, genesis.Header.Timestamp+2, genesis.Header.Difficulty, 1, coord, nil)
	if !b1p.Mine(1 << 20) {
		t.Fatal("failed to mine b1'")
	}
	if err := e.AddBlock(b1p, nil); err != nil {
		t.Fatalf("AddBlock(b1'): %v", err)
	}
	if head := e.GetChainHead(); head.Block.BlockHash != b2.BlockHash {
		t.Fatalf("adding a same-height competitor should not yet reorg; head = %s, want b2", head.Block.BlockHash)
	}

	b2p := mineChild(t, b1p, coord)
	if err := e.AddBlock(b2p, nil); err != nil {
		t.Fatalf("AddBlock(b2'): %v", err)
	}
	if head := e.GetChainHead(); head.Block.BlockHash != b2.BlockHash {
		t.Fatalf("equal-length competitor should not yet reorg; head = %s, want b2", head.Block.BlockHash)
	}

	b3p := mineChild(t, b2p, coord)
	if err := e.AddBlock(b3p, nil); err != nil {
		t.Fatalf("AddBlock(b3'): %v", err)
	}

	head := e.GetChainHead()
	if head.Block.BlockHash != b3p.BlockHash {
		t.Fatalf("chain head = %s, want b3' (%s)", head.Block.BlockHash, b3p.BlockHash)
	}
	if head.Height != 3 {
		t.Fatalf("chain head height = %d, want 3", head.Height)
	}

	for _, hash := range []string{b2.BlockHash, b1p.BlockHash, b2p.BlockHash, b3p.BlockHash} {
		if _, ok := e.GetBlock(hash); !ok {
			t.Fatalf("expected both histories to remain known; missing %s", hash)
		}
	}
}

func TestValidateChainAcceptsKnownGoodChain(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}
	b2 := mineChild(t, b1, coord)
	if err := e.AddBlock(b2, nil); err != nil {
		t.Fatalf("AddBlock(b2): %v", err)
	}

	if err := e.ValidateChain(0); err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
}

func TestGetBlocksAfter(t *testing.T) {
	e, genesis := newEngine(t)
	coord := mustCoord(t)

	b1 := mineChild(t, genesis, coord)
	if err := e.AddBlock(b1, nil); err != nil {
		t.Fatalf("AddBlock(b1): %v", err)
	}
	b2 := mineChild(t, b1, coord)
	if err := e.AddBlock(b2, nil); err != nil {
		t.Fatalf("AddBlock(b2): %v", err)
	}

	got := e.GetBlocksAfter(genesis.BlockHash, 10)
	if len(got) != 2 {
		t.Fatalf("GetBlocksAfter(genesis) returned %d blocks, want 2", len(got))
	}
	if got[0].BlockHash != b1.BlockHash || got[1].BlockHash != b2.BlockHash {
		t.Fatal("GetBlocksAfter(genesis) did not return b1, b2 in ascending order")
	}
}
