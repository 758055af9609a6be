// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxo implements the value-bearing output layer: the UTXO type
// itself, its script dispatch, a spatial index over UTXO positions, and
// in-memory and LevelDB-backed stores.
package utxo

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
)

// SignatureVerifier is the external collaborator that checks an ECDSA
// signature over a UTXO id. This core never implements cryptographic
// verification itself; callers supply an implementation (see the
// sigverify package for a real secp256k1-backed one and a placeholder).
type SignatureVerifier interface {
	Verify(owner, pubkey, sig, msg string) (bool, error)
}

// ContractResult is returned by a ContractEngine call.
type ContractResult struct {
	StateRoot string
	GasUsed   uint64
	Err       string
}

// ContractEngine is the external collaborator that executes CONTRACTCALL
// scripts. This core treats it as opaque.
type ContractEngine interface {
	CallContract(addr string, inputData []byte, caller string, gasLimit uint64) (ContractResult, error)
}

// UTXO is an unspent transaction output: value, owner, spending script, and
// spatial coordinate. Once constructed all fields are immutable.
type UTXO struct {
	Owner             string
	Amount            float64
	Coordinate        *coordinate.Coordinate
	CreationHeight    uint64
	Script            Script
	ContractStateHash string // empty when not CONTRACTCALL
	GasLimit          uint64 // zero when not CONTRACTCALL

	ShardAffinity int
	ID            string
}

// New constructs a UTXO, validating amount positivity and the
// CONTRACTCALL invariant (state hash and gas limit both present), then
// computes its deterministic id.
func New(owner string, amount float64, coord *coordinate.Coordinate, creationHeight uint64, script Script, contractStateHash string, gasLimit uint64) (*UTXO, error) {
	if amount <= 0 {
		return nil, chainerr.New(chainerr.ErrBadScript, "UTXO amount must be positive, got %f", amount)
	}
	if script.Kind == ContractCall {
		if contractStateHash == "" {
			return nil, chainerr.New(chainerr.ErrBadScript, "contract_state_hash required for CONTRACTCALL")
		}
		if gasLimit == 0 {
			return nil, chainerr.New(chainerr.ErrBadScript, "gas_limit required for CONTRACTCALL")
		}
	}

	u := &UTXO{
		Owner:             owner,
		Amount:            amount,
		Coordinate:        coord,
		CreationHeight:    creationHeight,
		Script:            script,
		ContractStateHash: contractStateHash,
		GasLimit:          gasLimit,
		ShardAffinity:     coord.ShardID(),
	}
	u.ID = u.computeID()
	return u, nil
}

// computeID derives the SHA-256 hex digest uniquely identifying this UTXO:
// owner|amount(8dp)|script|coord_hash|creation_height[|state_hash|gas_limit].
func (u *UTXO) computeID() string {
	parts := []string{
		u.Owner,
		strconv.FormatFloat(u.Amount, 'f', 8, 64),
		u.Script.String(),
		u.Coordinate.Hash(),
		strconv.FormatUint(u.CreationHeight, 10),
	}
	if u.ContractStateHash != "" {
		parts = append(parts, u.ContractStateHash, strconv.FormatUint(u.GasLimit, 10))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// CanSpendWith reports whether sig/pubkey authorize spending this UTXO.
// RETURN outputs can never be spent. CONTRACTCALL outputs are always
// spendable here — the contract engine enforces its own authorization.
// Everything else delegates to verifier, which checks the signature over
// this UTXO's id.
func (u *UTXO) CanSpendWith(verifier SignatureVerifier, sig, pubkey string) (bool, error) {
	switch u.Script.Kind {
	case Return:
		return false, nil
	case ContractCall:
		return true, nil
	default:
		return verifier.Verify(u.Owner, pubkey, sig, u.ID)
	}
}

// ScriptContext carries the collaborators and ambient data ExecuteScript
// needs for scripts whose effect depends on more than the UTXO itself.
type ScriptContext struct {
	ContractManager ContractEngine
	InputData       []byte
	CurrentHeight   uint64
	Siblings        []*UTXO
	ReturnData      []byte
}

// ScriptResult is the outcome of executing a UTXO's script.
type ScriptResult struct {
	Status       bool
	Data         []byte
	NewUTXOs     []*UTXO // FRACTAL_SPLIT
	NewUTXO      *UTXO   // FRACTAL_MERGE
	GasUsed      uint64
	NewStateRoot string
	Err          string
}

// ExecuteScript dispatches on the UTXO's script kind and returns the
// mechanical effect. For FRACTAL_MERGE it does not itself verify that
// ctx.Siblings are actually siblings of u or co-owned with it — that
// policy belongs to the validator, which has visibility into the full
// UTXO set.
func (u *UTXO) ExecuteScript(ctx ScriptContext) ScriptResult {
	switch u.Script.Kind {
	case CheckSig:
		return ScriptResult{Status: true}

	case Return:
		return ScriptResult{Status: true, Data: ctx.ReturnData}

	case ContractCall:
		return u.executeContractCall(ctx)

	case FractalSplit:
		return u.executeFractalSplit(ctx)

	case FractalMerge:
		return u.executeFractalMerge(ctx)

	default:
		return ScriptResult{Status: false, Err: "unknown script opcode"}
	}
}

func (u *UTXO) executeContractCall(ctx ScriptContext) ScriptResult {
	if u.Script.ContractAddr == "" {
		return ScriptResult{Status: false, Err: "invalid CONTRACTCALL script"}
	}
	if ctx.ContractManager == nil {
		return ScriptResult{Status: false, Err: "contract manager not provided"}
	}

	gasLimit := u.GasLimit
	result, err := ctx.ContractManager.CallContract(u.Script.ContractAddr, ctx.InputData, u.Owner, gasLimit)
	if err != nil {
		return ScriptResult{Status: false, Err: err.Error()}
	}

	return ScriptResult{
		Status:       result.Err == "",
		NewStateRoot: result.StateRoot,
		GasUsed:      result.GasUsed,
		Err:          result.Err,
	}
}

func (u *UTXO) executeFractalSplit(ctx ScriptContext) ScriptResult {
	children := u.Coordinate.Children()
	splitAmount := u.Amount / 3.0

	newUTXOs := make([]*UTXO, 0, 3)
	for _, coord := range children {
		child, err := New(u.Owner, splitAmount, coord, ctx.CurrentHeight, NewCheckSigScript(), "", 0)
		if err != nil {
			return ScriptResult{Status: false, Err: err.Error()}
		}
		newUTXOs = append(newUTXOs, child)
	}

	return ScriptResult{Status: true, NewUTXOs: newUTXOs}
}

func (u *UTXO) executeFractalMerge(ctx ScriptContext) ScriptResult {
	if len(ctx.Siblings) == 0 {
		return ScriptResult{Status: false, Err: "no sibling UTXOs provided for merge"}
	}

	total := u.Amount
	for _, sib := range ctx.Siblings {
		total += sib.Amount
	}

	merged, err := New(u.Owner, total, u.Coordinate.Parent(), ctx.CurrentHeight, NewCheckSigScript(), "", 0)
	if err != nil {
		return ScriptResult{Status: false, Err: err.Error()}
	}

	return ScriptResult{Status: true, NewUTXO: merged}
}

// SpatialNeighbors returns every UTXO the indexer reports within radius of
// u's coordinate, excluding u itself. Supplemented from the original
// FractalUTXO.get_spatial_neighbors.
func (u *UTXO) SpatialNeighbors(radius float64, store *Store) []*UTXO {
	x, y := u.Coordinate.Cartesian()
	ids := store.index.QueryRange(x, y, radius)

	neighbors := make([]*UTXO, 0, len(ids))
	for id := range ids {
		if id == u.ID {
			continue
		}
		if n, ok := store.GetUTXO(id); ok {
			neighbors = append(neighbors, n)
		}
	}
	return neighbors
}
