// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txn implements the transaction model: inputs, outputs, id
// computation, validation against a UTXO store and mempool, and output
// execution.
package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// Input is a transaction input: a reference to the UTXO being spent plus
// the signature and public key authorizing the spend.
type Input struct {
	UTXOID    string
	Signature string
	PublicKey string
}

// Output is a transaction output: the new UTXO's fields, prior to
// creation-height assignment at execution time.
type Output struct {
	Owner             string
	Amount            float64
	Coordinate        *coordinate.Coordinate
	Script            utxo.Script
	ContractStateHash string
	GasLimit          uint64
}

// MempoolView is the subset of mempool behavior transaction validation
// needs: whether a given UTXO id is already claimed by a pending
// transaction. Defined here (rather than importing the mempool package)
// to avoid a cycle, since mempool depends on txn.
type MempoolView interface {
	IsUTXOSpent(utxoID string) bool
}

// Transaction spends Inputs and creates Outputs. Once constructed, every
// field is immutable.
type Transaction struct {
	Inputs     []Input
	Outputs    []Output
	Timestamp  int64
	Nonce      uint64
	ID         string
	CrossShard bool
}

// New constructs a transaction, failing if there are no inputs or no
// outputs, then computes its id and cross-shard flag.
func New(inputs []Input, outputs []Output, timestamp int64, nonce uint64) (*Transaction, error) {
	if len(inputs) == 0 {
		return nil, chainerr.New(chainerr.ErrBadScript, "transaction must have at least one input")
	}
	if len(outputs) == 0 {
		return nil, chainerr.New(chainerr.ErrBadScript, "transaction must have at least one output")
	}

	tx := &Transaction{
		Inputs:    append([]Input(nil), inputs...),
		Outputs:   append([]Output(nil), outputs...),
		Timestamp: timestamp,
		Nonce:     nonce,
	}
	tx.ID = tx.computeID()

	shards := make(map[int]struct{})
	for _, out := range outputs {
		shards[out.Coordinate.ShardID()] = struct{}{}
	}
	tx.CrossShard = len(shards) > 1

	return tx, nil
}

// computeID derives the SHA-256 hex digest of inputs|outputs|timestamp|nonce,
// where inputs are utxo_id values joined by "|" and outputs are
// "owner:amount:coord_hash" triples joined by "|".
func (tx *Transaction) computeID() string {
	inputIDs := make([]string, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputIDs[i] = in.UTXOID
	}

	outputParts := make([]string, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputParts[i] = out.Owner + ":" + strconv.FormatFloat(out.Amount, 'f', -1, 64) + ":" + out.Coordinate.Hash()
	}

	data := strings.Join(inputIDs, "|") + "|" + strings.Join(outputParts, "|") + "|" +
		strconv.FormatInt(tx.Timestamp, 10) + "|" + strconv.FormatUint(tx.Nonce, 10)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Validate checks a transaction's inputs resolve, are unspent (per
// mempool, if provided), pass signature verification, that the
// conservation invariant holds, that CONTRACTCALL outputs carry a state
// hash and positive gas limit, and that every output coordinate is
// well-formed. mempool may be nil when validating outside mempool
// context (e.g. during block validation, where the validator tracks
// intra-block double-spend itself).
func (tx *Transaction) Validate(store utxo.Storage, verifier utxo.SignatureVerifier, currentHeight uint64, mempool MempoolView) error {
	var inputSum float64

	for _, in := range tx.Inputs {
		u, ok := store.GetUTXO(in.UTXOID)
		if !ok {
			return chainerr.New(chainerr.ErrInputMissing, "input UTXO %s not found", in.UTXOID)
		}

		if mempool != nil && mempool.IsUTXOSpent(in.UTXOID) {
			return chainerr.New(chainerr.ErrInputSpent, "input UTXO %s already spent in mempool", in.UTXOID)
		}

		canSpend, err := u.CanSpendWith(verifier, in.Signature, in.PublicKey)
		if err != nil {
			return err
		}
		if !canSpend {
			return chainerr.New(chainerr.ErrBadSignature, "invalid signature for UTXO %s", in.UTXOID)
		}

		inputSum += u.Amount
	}

	var outputSum float64
	for _, out := range tx.Outputs {
		outputSum += out.Amount
	}
	if outputSum > inputSum {
		return chainerr.New(chainerr.ErrOverspend, "output amount %f exceeds input amount %f", outputSum, inputSum)
	}

	for _, out := range tx.Outputs {
		if out.Script.Kind == utxo.ContractCall {
			if out.ContractStateHash == "" {
				return chainerr.New(chainerr.ErrBadScript, "CONTRACTCALL output missing contract state hash")
			}
			if out.GasLimit == 0 {
				return chainerr.New(chainerr.ErrBadScript, "CONTRACTCALL output missing positive gas limit")
			}
		}
		if out.Coordinate.Depth() < 0 {
			return chainerr.New(chainerr.ErrInvalidCoordinate, "output coordinate has negative depth")
		}
	}

	return nil
}

// Execute validates the transaction, then produces the new UTXOs its
// outputs describe, with creation_height set to currentHeight. Execute
// never mutates store.
func (tx *Transaction) Execute(store utxo.Storage, verifier utxo.SignatureVerifier, currentHeight uint64) ([]*utxo.UTXO, error) {
	if err := tx.Validate(store, verifier, currentHeight, nil); err != nil {
		return nil, err
	}

	newUTXOs := make([]*utxo.UTXO, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		u, err := utxo.New(out.Owner, out.Amount, out.Coordinate, currentHeight, out.Script, out.ContractStateHash, out.GasLimit)
		if err != nil {
			return nil, err
		}
		newUTXOs = append(newUTXOs, u)
	}
	return newUTXOs, nil
}

// Fee computes Σin − Σout by resolving inputs against store. It returns
// an error under the same conditions Validate's input-resolution step
// does.
func (tx *Transaction) Fee(store utxo.Storage) (float64, error) {
	var inputSum, outputSum float64
	for _, in := range tx.Inputs {
		u, ok := store.GetUTXO(in.UTXOID)
		if !ok {
			return 0, chainerr.New(chainerr.ErrInputMissing, "input UTXO %s not found", in.UTXOID)
		}
		inputSum += u.Amount
	}
	for _, out := range tx.Outputs {
		outputSum += out.Amount
	}
	return inputSum - outputSum, nil
}

// PrimaryCoordinate returns the coordinate of the transaction's first
// output, used as a Merkle Mesh leaf's spatial tag.
func (tx *Transaction) PrimaryCoordinate() *coordinate.Coordinate {
	return tx.Outputs[0].Coordinate
}

// EstimatedSize approximates the transaction's serialized byte length for
// fee-rate purposes, by summing a fixed per-field overhead with the
// length of every variable-length string field.
func (tx *Transaction) EstimatedSize() int {
	const fixedOverhead = 16 // timestamp + nonce
	size := fixedOverhead

	for _, in := range tx.Inputs {
		size += len(in.UTXOID) + len(in.Signature) + len(in.PublicKey)
	}
	for _, out := range tx.Outputs {
		size += len(out.Owner) + len(out.Script.String()) + len(out.ContractStateHash) + 16
	}

	return size
}
