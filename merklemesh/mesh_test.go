// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package merklemesh

import (
	"testing"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
)

func mustCoord(t *testing.T, depth int, path []int) *coordinate.Coordinate {
	t.Helper()
	c, err := coordinate.New(depth, path)
	if err != nil {
		t.Fatalf("coordinate.New: %v", err)
	}
	return c
}

func TestEmptyMeshHasNilRootAndProofFails(t *testing.T) {
	m := New()
	m.Build()

	if m.Root != nil {
		t.Fatal("expected nil root for empty mesh")
	}
	if m.GetRootHash() != "" {
		t.Fatal("expected empty root hash for empty mesh")
	}
	if _, err := m.GetProof("nonexistent", nil); !chainerr.HasCode(err, chainerr.ErrMeshNotBuilt) {
		t.Fatalf("expected ErrMeshNotBuilt, got %v", err)
	}
}

func TestSingleLeafRootEqualsLeafAndEmptyProofVerifies(t *testing.T) {
	m := New()
	coord := mustCoord(t, 0, nil)
	m.AddTransaction("tx1", coord, nil)
	m.Build()

	if m.GetRootHash() != "tx1" {
		t.Fatalf("GetRootHash() = %s, want tx1", m.GetRootHash())
	}

	proof, err := m.GetProof("tx1", nil)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected empty proof for single-leaf mesh, got %d steps", len(proof))
	}

	if !m.VerifyProof("tx1", proof, m.GetRootHash()) {
		t.Fatal("expected empty proof to verify when tx hash equals root")
	}
	if m.VerifyProof("tx2", proof, m.GetRootHash()) {
		t.Fatal("expected empty proof to fail verification for a non-matching hash")
	}
}

func TestProofRoundTripForEveryLeaf(t *testing.T) {
	m := New()
	coord := mustCoord(t, 0, nil)
	hashes := []string{"tx1", "tx2", "tx3", "tx4", "tx5"} // odd count exercises duplication
	for _, h := range hashes {
		m.AddTransaction(h, coord, nil)
	}
	m.Build()

	for _, h := range hashes {
		proof, err := m.GetProof(h, nil)
		if err != nil {
			t.Fatalf("GetProof(%s): %v", h, err)
		}
		if !m.VerifyProof(h, proof, m.GetRootHash()) {
			t.Fatalf("proof for %s failed to verify against root", h)
		}
	}
}

func TestProofFailsWithTamperedSiblingHash(t *testing.T) {
	m := New()
	coord := mustCoord(t, 0, nil)
	for _, h := range []string{"tx1", "tx2", "tx3", "tx4"} {
		m.AddTransaction(h, coord, nil)
	}
	m.Build()

	proof, err := m.GetProof("tx1", nil)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	proof[0].SiblingHash = "deadbeef"

	if m.VerifyProof("tx1", proof, m.GetRootHash()) {
		t.Fatal("expected tampered proof to fail verification")
	}
}

func TestGetProofRejectsUnknownTransaction(t *testing.T) {
	m := New()
	coord := mustCoord(t, 0, nil)
	m.AddTransaction("tx1", coord, nil)
	m.Build()

	if _, err := m.GetProof("ghost", nil); !chainerr.HasCode(err, chainerr.ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}
}

func TestCrossShardTaggingAndShardTagInProof(t *testing.T) {
	m := New()
	shard0 := mustCoord(t, 1, []int{0})
	shard1 := mustCoord(t, 1, []int{1})

	m.AddTransaction("tx-shard0", shard0, nil)
	m.AddTransaction("tx-shard1", shard1, nil)
	m.Build()

	if m.Root == nil || !m.Root.IsCrossShard {
		t.Fatal("expected root to be tagged cross-shard when children span distinct shards")
	}
	if m.Root.ShardID != 1 {
		t.Fatalf("expected cross-shard tag to record the right child's shard (1), got %d", m.Root.ShardID)
	}

	// Leaves are never tagged, so a proof step carries a shard tag only
	// where its sibling is a tagged internal node: here (tx-c, tx-d).
	m2 := New()
	m2.AddTransaction("tx-a", shard0, nil)
	m2.AddTransaction("tx-b", shard0, nil)
	m2.AddTransaction("tx-c", shard0, nil)
	m2.AddTransaction("tx-d", shard1, nil)
	m2.Build()

	target := 1
	proof, err := m2.GetProof("tx-a", &target)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if len(proof) != 2 || proof[0].ShardTag != nil || proof[1].ShardTag == nil || *proof[1].ShardTag != 1 {
		t.Fatalf("expected only the second proof step tagged with target shard 1, got %+v", proof)
	}
}

func TestCrossShardRefsAccumulate(t *testing.T) {
	m := New()
	coord := mustCoord(t, 0, nil)
	m.AddTransaction("tx1", coord, map[int]string{2: "ref-a"})
	m.AddTransaction("tx2", coord, map[int]string{2: "ref-b", 3: "ref-c"})
	m.Build()

	refs2 := m.GetCrossShardRefs(2)
	if _, ok := refs2["ref-a"]; !ok {
		t.Fatal("expected ref-a under shard 2")
	}
	if _, ok := refs2["ref-b"]; !ok {
		t.Fatal("expected ref-b under shard 2")
	}
	refs3 := m.GetCrossShardRefs(3)
	if _, ok := refs3["ref-c"]; !ok {
		t.Fatal("expected ref-c under shard 3")
	}
}
