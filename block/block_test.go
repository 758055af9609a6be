// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package block

import (
	"math/big"
	"testing"

	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/sigverify"
	"github.com/littlekickoffkittie/legacy-protocol/txn"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

func mustCoord(t *testing.T, depth int, path []int) *coordinate.Coordinate {
	t.Helper()
	c, err := coordinate.New(depth, path)
	if err != nil {
		t.Fatalf("coordinate.New: %v", err)
	}
	return c
}

// selfConsistentTx funds a store with one UTXO and returns a transaction
// spending it, both sitting at the root coordinate (shard 0).
func selfConsistentTx(t *testing.T) (*utxo.Store, *txn.Transaction) {
	t.Helper()
	coord := mustCoord(t, 0, nil)
	store := utxo.NewStore(0)

	funding, err := utxo.New("alice", 10, coord, 0, utxo.NewCheckSigScript(), "", 0)
	if err != nil {
		t.Fatalf("utxo.New: %v", err)
	}
	if err := store.AddUTXO(funding); err != nil {
		t.Fatalf("AddUTXO: %v", err)
	}

	tx, err := txn.New(
		[]txn.Input{{UTXOID: funding.ID, Signature: "s", PublicKey: "p"}},
		[]txn.Output{{Owner: "bob", Amount: 9, Coordinate: coord, Script: utxo.NewCheckSigScript()}},
		1000, 1,
	)
	if err != nil {
		t.Fatalf("txn.New: %v", err)
	}
	return store, tx
}

// TestMineMeetsProofOfWorkTarget exercises the mining scenario: a
// difficulty-4 block containing one self-consistent transaction, after
// which the hash interpreted as an integer is below 2^252.
func TestMineMeetsProofOfWorkTarget(t *testing.T) {
	_, tx := selfConsistentTx(t)
	coord := mustCoord(t, 0, nil)

	b := New(1, GenesisPrevHash, 1000, 4, 1, coord, nil)
	if err := b.AddTransaction(tx, nil); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	if !b.Mine(1 << 20) {
		t.Fatal("expected mining to succeed within the nonce budget")
	}
	if len(b.BlockHash) != 64 {
		t.Fatalf("BlockHash length = %d, want 64", len(b.BlockHash))
	}

	hashInt := new(big.Int)
	hashInt.SetString(b.BlockHash, 16)
	limit := new(big.Int).Lsh(big.NewInt(1), 252)
	if hashInt.Cmp(limit) >= 0 {
		t.Fatalf("mined hash %s does not satisfy 2^252 bound", b.BlockHash)
	}
}

func TestAddTransactionRejectsCrossShardWithoutProof(t *testing.T) {
	coord := mustCoord(t, 1, []int{0})
	other := mustCoord(t, 1, []int{1})
	store := utxo.NewStore(0)

	funding, err := utxo.New("alice", 10, coord, 0, utxo.NewCheckSigScript(), "", 0)
	if err != nil {
		t.Fatalf("utxo.New: %v", err)
	}
	store.AddUTXO(funding)

	tx, err := txn.New(
		[]txn.Input{{UTXOID: funding.ID, Signature: "s", PublicKey: "p"}},
		[]txn.Output{
			{Owner: "bob", Amount: 4, Coordinate: coord, Script: utxo.NewCheckSigScript()},
			{Owner: "carol", Amount: 4, Coordinate: other, Script: utxo.NewCheckSigScript()},
		},
		1000, 1,
	)
	if err != nil {
		t.Fatalf("txn.New: %v", err)
	}
	if !tx.CrossShard {
		t.Fatal("expected transaction spanning two shards to be cross-shard")
	}

	b := New(1, GenesisPrevHash, 1000, 1, 1, coord, nil)
	if err := b.AddTransaction(tx, nil); err == nil {
		t.Fatal("expected cross-shard transaction without a proof to be rejected")
	}
}

func TestVerifyFailsWhenUnmined(t *testing.T) {
	coord := mustCoord(t, 0, nil)
	b := New(1, GenesisPrevHash, 1000, 4, 1, coord, nil)

	if err := b.Verify(nil, nil, nil); err == nil {
		t.Fatal("expected verification of an unmined block to fail")
	}
}

func TestVerifyRoundTripsAfterMining(t *testing.T) {
	store, tx := selfConsistentTx(t)
	coord := mustCoord(t, 0, nil)

	b := New(1, GenesisPrevHash, 1000, 2, 1, coord, nil)
	if err := b.AddTransaction(tx, nil); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if !b.Mine(1 << 20) {
		t.Fatal("expected mining to succeed")
	}

	verifier := sigverify.PlaceholderVerifier{}
	if err := b.Verify(nil, store, verifier); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyDetectsBrokenChainLink(t *testing.T) {
	store, tx := selfConsistentTx(t)
	coord := mustCoord(t, 0, nil)

	genesis := New(1, GenesisPrevHash, 1000, 1, 0, coord, nil)
	genesis.Mine(1 << 20)

	next := New(1, "wrong-prev-hash", 2000, 2, 1, coord, nil)
	if err := next.AddTransaction(tx, nil); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	next.Mine(1 << 20)

	verifier := sigverify.PlaceholderVerifier{}
	if err := next.Verify(genesis, store, verifier); err == nil {
		t.Fatal("expected verification to fail on mismatched prev hash")
	}
}
