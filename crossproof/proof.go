// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crossproof implements cross-shard proof bundles: the evidence a
// cross-shard transaction carries that lets a peer shard confirm the
// transaction is included and valid in every shard it touches, without
// replaying that shard's full chain.
package crossproof

import (
	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/merklemesh"
)

// ProofElement is one shard's contribution to a cross-shard proof: the
// block it was included in, the Merkle path proving inclusion, the
// shard id and coordinate it was observed at, and the cross-shard
// reference hashes it carries.
type ProofElement struct {
	BlockHash   string
	MerkleProof []merklemesh.ProofStep
	ShardID     int
	Coordinate  *coordinate.Coordinate
	RefHashes   map[string]struct{}
}

// NewProofElement builds a ProofElement from the given fields.
func NewProofElement(blockHash string, merkleProof []merklemesh.ProofStep, shardID int, coord *coordinate.Coordinate, refHashes map[string]struct{}) ProofElement {
	if refHashes == nil {
		refHashes = make(map[string]struct{})
	}
	return ProofElement{
		BlockHash:   blockHash,
		MerkleProof: merkleProof,
		ShardID:     shardID,
		Coordinate:  coord,
		RefHashes:   refHashes,
	}
}

// CrossShardProof bundles the proof elements for a single cross-shard
// transaction across its source shard and every shard it targets.
type CrossShardProof struct {
	TxHash       string
	SourceShard  int
	TargetShards map[int]struct{}
	Elements     []ProofElement
}

// New builds an empty proof for txHash spanning sourceShard and
// targetShards.
func New(txHash string, sourceShard int, targetShards map[int]struct{}) *CrossShardProof {
	if targetShards == nil {
		targetShards = make(map[int]struct{})
	}
	return &CrossShardProof{
		TxHash:       txHash,
		SourceShard:  sourceShard,
		TargetShards: targetShards,
	}
}

// AddElement appends elem, rejecting it if its shard is neither the
// proof's source shard nor one of its target shards.
func (p *CrossShardProof) AddElement(elem ProofElement) error {
	if elem.ShardID != p.SourceShard {
		if _, ok := p.TargetShards[elem.ShardID]; !ok {
			return chainerr.New(chainerr.ErrProofInvalid,
				"element shard %d not in proof shards", elem.ShardID)
		}
	}
	p.Elements = append(p.Elements, elem)
	return nil
}

// Verify checks the proof against the supplied per-shard mesh roots and
// block hashes:
//  1. the proof's elements cover exactly {source} ∪ targets;
//  2. each element's block hash matches the shard's supplied block hash;
//  3. each element's Merkle proof verifies against the shard's mesh root
//     for the proof's tx hash;
//  4. every pair of target-shard elements shares at least one reference
//     hash, linking the target shards together.
func (p *CrossShardProof) Verify(meshRoots map[int]string, blockHashes map[int]string) error {
	required := make(map[int]struct{}, len(p.TargetShards)+1)
	required[p.SourceShard] = struct{}{}
	for shard := range p.TargetShards {
		required[shard] = struct{}{}
	}

	present := make(map[int]struct{}, len(p.Elements))
	for _, elem := range p.Elements {
		present[elem.ShardID] = struct{}{}
	}
	if !sameShardSet(required, present) {
		return chainerr.New(chainerr.ErrProofInvalid, "missing proof elements for some shards")
	}

	mesh := merklemesh.New() // stateless VerifyProof helper

	for _, elem := range p.Elements {
		blockHash, ok := blockHashes[elem.ShardID]
		if !ok {
			return chainerr.New(chainerr.ErrProofInvalid, "missing block hash for shard %d", elem.ShardID)
		}
		if elem.BlockHash != blockHash {
			return chainerr.New(chainerr.ErrProofInvalid, "invalid block hash for shard %d", elem.ShardID)
		}

		rootHash, ok := meshRoots[elem.ShardID]
		if !ok {
			return chainerr.New(chainerr.ErrProofInvalid, "missing mesh root for shard %d", elem.ShardID)
		}
		if !mesh.VerifyProof(p.TxHash, elem.MerkleProof, rootHash) {
			return chainerr.New(chainerr.ErrProofInvalid, "invalid merkle proof for shard %d", elem.ShardID)
		}
	}

	for i, elem1 := range p.Elements {
		if _, ok := p.TargetShards[elem1.ShardID]; !ok {
			continue
		}
		for _, elem2 := range p.Elements[i+1:] {
			if _, ok := p.TargetShards[elem2.ShardID]; !ok {
				continue
			}
			if !refHashesIntersect(elem1.RefHashes, elem2.RefHashes) {
				return chainerr.New(chainerr.ErrProofInvalid, "missing cross-shard references between shards %d and %d", elem1.ShardID, elem2.ShardID)
			}
		}
	}

	return nil
}

// ShardCoordinates groups each element's coordinate by shard id.
func (p *CrossShardProof) ShardCoordinates() map[int][]*coordinate.Coordinate {
	coords := make(map[int][]*coordinate.Coordinate)
	for _, elem := range p.Elements {
		coords[elem.ShardID] = append(coords[elem.ShardID], elem.Coordinate)
	}
	return coords
}

// ValidatePath checks that the proof's elements form a coherent path
// through fractal space: every shard in {source} ∪ targets contributed
// at least one coordinate, and every target shard has a coordinate
// adjacent to some source-shard coordinate (same depth, differing in
// exactly one path digit).
func (p *CrossShardProof) ValidatePath() error {
	coords := p.ShardCoordinates()

	sourceCoords, ok := coords[p.SourceShard]
	if !ok || len(sourceCoords) == 0 {
		return chainerr.New(chainerr.ErrProofInvalid, "missing source shard coordinates")
	}

	for target := range p.TargetShards {
		targetCoords, ok := coords[target]
		if !ok || len(targetCoords) == 0 {
			return chainerr.New(chainerr.ErrProofInvalid, "missing coordinates for target shard %d", target)
		}

		reachable := false
		for _, src := range sourceCoords {
			for _, tgt := range targetCoords {
				if coordinatesAdjacent(src, tgt) {
					reachable = true
					break
				}
			}
			if reachable {
				break
			}
		}
		if !reachable {
			return chainerr.New(chainerr.ErrProofInvalid, "no valid path to shard %d", target)
		}
	}

	return nil
}

func coordinatesAdjacent(a, b *coordinate.Coordinate) bool {
	if a.Depth() != b.Depth() {
		return false
	}
	pathA, pathB := a.Path(), b.Path()
	diff := 0
	for i := range pathA {
		if pathA[i] != pathB[i] {
			diff++
		}
	}
	return diff == 1
}

func sameShardSet(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for shard := range a {
		if _, ok := b[shard]; !ok {
			return false
		}
	}
	return true
}

func refHashesIntersect(a, b map[string]struct{}) bool {
	for h := range a {
		if _, ok := b[h]; ok {
			return true
		}
	}
	return false
}
