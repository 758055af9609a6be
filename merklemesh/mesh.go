// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package merklemesh implements the Merkle Mesh: a binary Merkle tree over
// transaction ids whose internal nodes are additionally tagged when their
// two subtrees span different shards, and which can produce and verify
// proof paths annotated with those cross-shard tags.
package merklemesh

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
)

// MerkleNode is a node in the mesh: a leaf carries a transaction hash and
// its primary coordinate; an internal node carries the combined hash of
// its two children and, when those children span distinct shards, a
// cross-shard tag naming the right child's shard.
type MerkleNode struct {
	Hash         string
	Left         *MerkleNode
	Right        *MerkleNode
	IsCrossShard bool
	ShardID      int
	Coordinate   *coordinate.Coordinate
}

// ProofStep is one element of a Merkle proof path: the sibling hash to
// combine with the running hash, whether that sibling sits to the left
// from the verifier's perspective, and — when the sibling is a
// cross-shard node tagged for the proof's target shard — that shard id.
type ProofStep struct {
	SiblingHash string
	IsLeft      bool
	ShardTag    *int
}

// MerkleMesh accumulates leaves, builds the tree bottom-up, and answers
// proof/verification queries against it.
type MerkleMesh struct {
	Root      *MerkleNode
	Leaves    []*MerkleNode
	CrossRefs map[int]map[string]struct{}

	// levels holds every level of the built tree, leaves first and the
	// single-node root level last, so proof generation can read the
	// true cross-shard tags of each ancestor rather than recomputing
	// untagged placeholder nodes.
	levels [][]*MerkleNode
}

// New returns an empty mesh.
func New() *MerkleMesh {
	return &MerkleMesh{CrossRefs: make(map[int]map[string]struct{})}
}

// HashPair combines two child hashes into their parent's hash.
func HashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + "|" + right))
	return hex.EncodeToString(sum[:])
}

// AddTransaction appends a leaf for txHash at coordinate, and records any
// cross-shard references the transaction carries. Build must be called
// after all transactions are added.
func (m *MerkleMesh) AddTransaction(txHash string, coord *coordinate.Coordinate, crossShardRefs map[int]string) {
	m.Leaves = append(m.Leaves, &MerkleNode{Hash: txHash, Coordinate: coord})

	for shardID, refHash := range crossShardRefs {
		if m.CrossRefs[shardID] == nil {
			m.CrossRefs[shardID] = make(map[string]struct{})
		}
		m.CrossRefs[shardID][refHash] = struct{}{}
	}
}

// Build constructs the tree bottom-up from the added leaves: levels are
// paired left to right, the last node of an odd-length level is
// duplicated against itself, and each parent is tagged cross-shard when
// its two children's coordinates resolve to distinct shards.
func (m *MerkleMesh) Build() {
	if len(m.Leaves) == 0 {
		m.Root = nil
		m.levels = nil
		return
	}

	current := m.Leaves
	levels := [][]*MerkleNode{current}

	for len(current) > 1 {
		next := make([]*MerkleNode, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			right := left
			if i+1 < len(current) {
				right = current[i+1]
			}

			parent := &MerkleNode{
				Hash:  HashPair(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			}
			if left.Coordinate != nil && right.Coordinate != nil {
				leftShard := left.Coordinate.ShardID()
				rightShard := right.Coordinate.ShardID()
				if leftShard != rightShard {
					parent.IsCrossShard = true
					parent.ShardID = rightShard
				}
			}
			next = append(next, parent)
		}
		levels = append(levels, next)
		current = next
	}

	m.levels = levels
	m.Root = current[0]
}

// GetProof returns the sibling path from the leaf carrying txHash to the
// root. When targetShard is non-nil, any sibling tagged cross-shard for
// that shard has its shard id recorded in the corresponding step.
func (m *MerkleMesh) GetProof(txHash string, targetShard *int) ([]ProofStep, error) {
	if m.Root == nil {
		return nil, chainerr.New(chainerr.ErrMeshNotBuilt, "mesh not built")
	}

	leafIdx := -1
	for i, leaf := range m.Leaves {
		if leaf.Hash == txHash {
			leafIdx = i
			break
		}
	}
	if leafIdx == -1 {
		return nil, chainerr.New(chainerr.ErrTxNotFound, "transaction %s not found in mesh", txHash)
	}

	var proof []ProofStep
	idx := leafIdx

	for level := 0; level < len(m.levels)-1; level++ {
		nodes := m.levels[level]
		isLeft := idx%2 == 0
		siblingIdx := idx + 1
		if !isLeft {
			siblingIdx = idx - 1
		}
		if siblingIdx >= len(nodes) {
			siblingIdx = idx
		}
		sibling := nodes[siblingIdx]

		var shardTag *int
		if targetShard != nil && sibling.IsCrossShard && sibling.ShardID == *targetShard {
			tag := sibling.ShardID
			shardTag = &tag
		}

		proof = append(proof, ProofStep{
			SiblingHash: sibling.Hash,
			IsLeft:      !isLeft,
			ShardTag:    shardTag,
		})

		idx /= 2
	}

	return proof, nil
}

// VerifyProof folds proof over txHash and compares the result against
// rootHash. An empty proof verifies only when txHash already equals
// rootHash, covering the single-leaf mesh.
func (m *MerkleMesh) VerifyProof(txHash string, proof []ProofStep, rootHash string) bool {
	if len(proof) == 0 {
		return txHash == rootHash
	}

	current := txHash
	for _, step := range proof {
		if step.IsLeft {
			current = HashPair(step.SiblingHash, current)
		} else {
			current = HashPair(current, step.SiblingHash)
		}
	}
	return current == rootHash
}

// GetRootHash returns the mesh's root hash, or "" if the mesh has no
// leaves.
func (m *MerkleMesh) GetRootHash() string {
	if m.Root == nil {
		return ""
	}
	return m.Root.Hash
}

// GetCrossShardRefs returns the set of cross-shard reference hashes
// recorded against shardID.
func (m *MerkleMesh) GetCrossShardRefs(shardID int) map[string]struct{} {
	return m.CrossRefs[shardID]
}
