// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainerr centralizes the error taxonomy every package in this
// module reports validation failures with: a single ErrorCode enum with
// a RuleError wrapper, so callers can type-assert instead of
// string-matching.
package chainerr

import "fmt"

// ErrorCode identifies the specific rule a RuleError reports.
type ErrorCode int

const (
	// ErrInvalidCoordinate indicates a fractal coordinate failed
	// construction or validation.
	ErrInvalidCoordinate ErrorCode = iota

	// ErrInputMissing indicates a transaction input references an
	// unknown UTXO.
	ErrInputMissing
	// ErrInputSpent indicates a transaction input is already spent by
	// another transaction in the mempool.
	ErrInputSpent
	// ErrBadSignature indicates a transaction input failed signature
	// verification.
	ErrBadSignature
	// ErrOverspend indicates a transaction's outputs exceed its inputs.
	ErrOverspend
	// ErrBadScript indicates a UTXO or output script is malformed or
	// unrecognized.
	ErrBadScript

	// ErrProofInvalid indicates a cross-shard proof failed verification.
	ErrProofInvalid
	// ErrMeshNotBuilt indicates an operation was attempted on a Merkle
	// Mesh before Build was called or on one with no leaves.
	ErrMeshNotBuilt
	// ErrTxNotFound indicates a requested transaction hash is not a leaf
	// of the mesh.
	ErrTxNotFound

	// ErrMissingParent indicates a block's parent is not yet known; the
	// caller should park the block as an orphan.
	ErrMissingParent
	// ErrConsensusViolation indicates a block failed a consensus rule
	// (shard, coordinate, difficulty, timestamp, or proof-of-work).
	ErrConsensusViolation
	// ErrInvalidCrossRef indicates a cross-shard reference is malformed
	// or does not match the referenced block.
	ErrInvalidCrossRef

	// ErrDuplicateUTXO indicates an attempt to add a UTXO id already
	// present in a store.
	ErrDuplicateUTXO
	// ErrUnknownUTXO indicates an operation referenced a UTXO id absent
	// from a store.
	ErrUnknownUTXO

	// ErrMempoolFull indicates a mempool could not make room for a new
	// transaction.
	ErrMempoolFull
	// ErrFeeTooLow indicates a transaction's fee rate is below the
	// configured floor.
	ErrFeeTooLow
	// ErrAlreadyInMempool indicates a transaction id is already pending.
	ErrAlreadyInMempool
)

var errCodeStrings = map[ErrorCode]string{
	ErrInvalidCoordinate:  "ErrInvalidCoordinate",
	ErrInputMissing:       "ErrInputMissing",
	ErrInputSpent:         "ErrInputSpent",
	ErrBadSignature:       "ErrBadSignature",
	ErrOverspend:          "ErrOverspend",
	ErrBadScript:          "ErrBadScript",
	ErrProofInvalid:       "ErrProofInvalid",
	ErrMeshNotBuilt:       "ErrMeshNotBuilt",
	ErrTxNotFound:         "ErrTxNotFound",
	ErrMissingParent:      "ErrMissingParent",
	ErrConsensusViolation: "ErrConsensusViolation",
	ErrInvalidCrossRef:    "ErrInvalidCrossRef",
	ErrDuplicateUTXO:      "ErrDuplicateUTXO",
	ErrUnknownUTXO:        "ErrUnknownUTXO",
	ErrMempoolFull:        "ErrMempoolFull",
	ErrFeeTooLow:          "ErrFeeTooLow",
	ErrAlreadyInMempool:   "ErrAlreadyInMempool",
}

// String returns the symbolic name of the error code.
func (e ErrorCode) String() string {
	if s, ok := errCodeStrings[e]; ok {
		return s
	}
	return "ErrUnknown"
}

// RuleError represents a rejected operation: a value/state/transition that
// failed one of this module's defined invariants rather than an unexpected
// internal failure. Validation-facing functions in this module return one
// of these either directly or wrapped with fmt.Errorf's %w; HasCode only
// recognizes an unwrapped RuleError, while errors.Is also sees wrapped ones.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error implements the error interface.
func (e RuleError) Error() string {
	return e.Description
}

// New builds a RuleError with the given code and formatted description.
func New(code ErrorCode, format string, args ...interface{}) RuleError {
	return RuleError{ErrorCode: code, Description: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a RuleError with the given code, so callers can
// write `errors.Is(err, chainerr.RuleError{ErrorCode: chainerr.ErrOverspend})`
// or more simply use HasCode.
func (e RuleError) Is(target error) bool {
	t, ok := target.(RuleError)
	if !ok {
		return false
	}
	return e.ErrorCode == t.ErrorCode
}

// HasCode reports whether err is a RuleError carrying code.
func HasCode(err error, code ErrorCode) bool {
	re, ok := err.(RuleError)
	if !ok {
		return false
	}
	return re.ErrorCode == code
}

// AssertError indicates an invariant this module itself is supposed to
// maintain was violated — a programming bug, not a rejected input.
type AssertError string

// Error implements the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}
