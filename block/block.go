// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package block implements the per-shard block type: header, transaction
// list, Merkle Mesh construction, proof-of-work mining, and structural
// verification.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/crossproof"
	"github.com/littlekickoffkittie/legacy-protocol/merklemesh"
	"github.com/littlekickoffkittie/legacy-protocol/txn"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// GenesisPrevHash is the sentinel previous-block hash a shard's genesis
// block carries: 64 '0' characters, matching block_hash's hex rendering.
var GenesisPrevHash = strings.Repeat("0", 64)

// Header carries a block's consensus-relevant metadata.
type Header struct {
	Version         int
	PrevHash        string
	MerkleMeshRoot  string
	Timestamp       int64
	Difficulty      int
	Nonce           uint64
	Height          uint64
	Coordinate      *coordinate.Coordinate
	CrossShardRefs  map[int]string // shard -> "mesh_root|block_hash"
}

// Block is a shard's unit of consensus: a header, an ordered transaction
// list, the Merkle Mesh built over those transactions, and any
// cross-shard proofs attached to cross-shard transactions it contains.
type Block struct {
	Header            Header
	Transactions      []*txn.Transaction
	Mesh              *merklemesh.MerkleMesh
	CrossShardProofs  map[string]*crossproof.CrossShardProof
	BlockHash         string
}

// New builds an unmined block at the given coordinate and height,
// chained from prevHash.
func New(version int, prevHash string, timestamp int64, difficulty int, height uint64, coord *coordinate.Coordinate, crossShardRefs map[int]string) *Block {
	refs := crossShardRefs
	if refs == nil {
		refs = make(map[int]string)
	}
	return &Block{
		Header: Header{
			Version:        version,
			PrevHash:       prevHash,
			MerkleMeshRoot: strings.Repeat("0", 64),
			Timestamp:      timestamp,
			Difficulty:     difficulty,
			Height:         height,
			Coordinate:     coord,
			CrossShardRefs: refs,
		},
		Mesh:             merklemesh.New(),
		CrossShardProofs: make(map[string]*crossproof.CrossShardProof),
	}
}

// AddTransaction appends tx to the block. Cross-shard transactions must
// carry a proof and non-cross-shard transactions must not; when a proof
// is supplied it is verified against the header's cross-shard
// references before being recorded.
func (b *Block) AddTransaction(tx *txn.Transaction, proof *crossproof.CrossShardProof) error {
	if tx.CrossShard && proof == nil {
		return chainerr.New(chainerr.ErrProofInvalid, "cross-shard transaction %s requires a proof", tx.ID)
	}
	if !tx.CrossShard && proof != nil {
		return chainerr.New(chainerr.ErrProofInvalid, "non-cross-shard transaction %s cannot carry a proof", tx.ID)
	}

	if proof != nil {
		meshRoots, blockHashes, err := b.CrossRefMaps()
		if err != nil {
			return err
		}
		if err := proof.Verify(meshRoots, blockHashes); err != nil {
			return fmt.Errorf("invalid cross-shard proof for %s: %w", tx.ID, err)
		}
		b.CrossShardProofs[tx.ID] = proof
	}

	b.Transactions = append(b.Transactions, tx)
	return nil
}

// CrossRefMaps splits the header's "mesh_root|block_hash" cross-shard
// references into separate per-shard maps.
func (b *Block) CrossRefMaps() (map[int]string, map[int]string, error) {
	meshRoots := make(map[int]string, len(b.Header.CrossShardRefs))
	blockHashes := make(map[int]string, len(b.Header.CrossShardRefs))

	for shard, ref := range b.Header.CrossShardRefs {
		parts := strings.SplitN(ref, "|", 2)
		if len(parts) != 2 {
			return nil, nil, chainerr.New(chainerr.ErrInvalidCrossRef, "malformed cross-shard ref for shard %d: %q", shard, ref)
		}
		meshRoots[shard] = parts[0]
		blockHashes[shard] = parts[1]
	}
	return meshRoots, blockHashes, nil
}

// buildMesh rebuilds the block's Merkle Mesh from its current
// transaction list and updates the header's mesh root.
func (b *Block) buildMesh() {
	b.Mesh = merklemesh.New()

	shard := b.Header.Coordinate.ShardID()
	for _, tx := range b.Transactions {
		var crossRefs map[int]string
		if tx.CrossShard {
			if proof, ok := b.CrossShardProofs[tx.ID]; ok {
				crossRefs = make(map[int]string)
				for s, coords := range proof.ShardCoordinates() {
					if s == shard || len(coords) == 0 {
						continue
					}
					crossRefs[s] = coords[0].Hash()
				}
			}
		}
		b.Mesh.AddTransaction(tx.ID, tx.Outputs[0].Coordinate, crossRefs)
	}

	b.Mesh.Build()
	if b.Mesh.Root != nil {
		b.Header.MerkleMeshRoot = b.Mesh.Root.Hash
	}
}

// computeHash hashes the header's fields, including cross-shard
// references sorted by shard id for determinism.
func (b *Block) computeHash() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s|%s|%d|%d|%d|%d|%s",
		b.Header.Version, b.Header.PrevHash, b.Header.MerkleMeshRoot,
		b.Header.Timestamp, b.Header.Difficulty, b.Header.Nonce,
		b.Header.Height, b.Header.Coordinate.Hash())

	shards := make([]int, 0, len(b.Header.CrossShardRefs))
	for shard := range b.Header.CrossShardRefs {
		shards = append(shards, shard)
	}
	sort.Ints(shards)
	for _, shard := range shards {
		sb.WriteString("|")
		sb.WriteString(strconv.Itoa(shard))
		sb.WriteString(":")
		sb.WriteString(b.Header.CrossShardRefs[shard])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// powTarget returns 2^(256-difficulty).
func powTarget(difficulty int) *big.Int {
	target := big.NewInt(1)
	target.Lsh(target, uint(256-difficulty))
	return target
}

// Mine builds the Merkle Mesh and searches nonces 0..maxNonce for one
// whose block hash interpreted as a 256-bit integer is below the
// proof-of-work target. On success it sets BlockHash (64 lowercase hex
// characters) and returns true.
func (b *Block) Mine(maxNonce uint64) bool {
	b.buildMesh()
	target := powTarget(b.Header.Difficulty)

	for nonce := uint64(0); nonce < maxNonce; nonce++ {
		b.Header.Nonce = nonce
		hashHex := b.computeHash()

		hashInt := new(big.Int)
		hashInt.SetString(hashHex, 16)

		if hashInt.Cmp(target) < 0 {
			b.BlockHash = hashHex
			return true
		}
	}
	return false
}

// Verify checks: the block has been mined and its hash satisfies the
// proof-of-work target; when prev is non-nil, the header correctly
// chains from it; when store is non-nil, every transaction validates
// against it (verifier must be non-nil whenever store is); every
// cross-shard transaction carries a proof; and the Merkle Mesh rebuilt
// from the transaction list matches the header's recorded root.
func (b *Block) Verify(prev *Block, store utxo.Storage, verifier utxo.SignatureVerifier) error {
	if b.BlockHash == "" {
		return chainerr.New(chainerr.ErrConsensusViolation, "block not mined")
	}

	hashInt := new(big.Int)
	if _, ok := hashInt.SetString(b.BlockHash, 16); !ok {
		return chainerr.New(chainerr.ErrConsensusViolation, "block hash %q is not valid hex", b.BlockHash)
	}
	if hashInt.Cmp(powTarget(b.Header.Difficulty)) >= 0 {
		return chainerr.New(chainerr.ErrConsensusViolation, "proof-of-work target not met")
	}

	if prev != nil {
		if b.Header.PrevHash != prev.BlockHash {
			return chainerr.New(chainerr.ErrConsensusViolation, "previous block hash mismatch")
		}
		if b.Header.Height != prev.Header.Height+1 {
			return chainerr.New(chainerr.ErrConsensusViolation, "invalid block height")
		}
		if b.Header.Timestamp <= prev.Header.Timestamp {
			return chainerr.New(chainerr.ErrConsensusViolation, "timestamp does not advance from previous block")
		}
	}

	if store != nil {
		for _, tx := range b.Transactions {
			if err := tx.Validate(store, verifier, b.Header.Height, nil); err != nil {
				return fmt.Errorf("invalid transaction %s: %w", tx.ID, err)
			}
		}
	}

	for _, tx := range b.Transactions {
		if tx.CrossShard {
			if _, ok := b.CrossShardProofs[tx.ID]; !ok {
				return chainerr.New(chainerr.ErrProofInvalid, "missing cross-shard proof for %s", tx.ID)
			}
		}
	}

	recordedRoot := b.Header.MerkleMeshRoot
	b.buildMesh()
	if b.Mesh.Root == nil {
		return chainerr.New(chainerr.ErrConsensusViolation, "failed to build merkle mesh")
	}
	if b.Mesh.Root.Hash != recordedRoot {
		return chainerr.New(chainerr.ErrConsensusViolation, "merkle mesh root mismatch")
	}

	return nil
}

// ShardID returns the shard this block belongs to.
func (b *Block) ShardID() int {
	return b.Header.Coordinate.ShardID()
}

// CrossShardTransactions returns the block's cross-shard transactions.
func (b *Block) CrossShardTransactions() []*txn.Transaction {
	var out []*txn.Transaction
	for _, tx := range b.Transactions {
		if tx.CrossShard {
			out = append(out, tx)
		}
	}
	return out
}
