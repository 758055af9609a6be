// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2024 The Flokicoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mempool holds pending transactions awaiting inclusion in a block.

Admission (AddTransaction) rejects a transaction id already in the pool,
validates the transaction against a UTXO store with the pool itself passed
in as the double-spend view, so inputs already claimed by a pending
transaction are rejected, computes the fee per byte from EstimatedSize,
rejects rates below the configured floor, and when the pool is full evicts
lower fee-rate entries to make room.

The pool indexes entries by transaction id, by output shard and by spent
UTXO id, records block inclusion (MarkIncludedInBlock,
RemoveBlockTransactions), and can save and reload a bzip2-compressed
snapshot of its contents. There is no orphan pool and no priority or
standardness policy.

# Errors

Rule violations are reported as chainerr.RuleError values carrying
ErrAlreadyInMempool, ErrFeeTooLow, ErrMempoolFull, or the code of the
transaction validation check that failed. Snapshot I/O and decoding
failures are returned as ordinary errors.
*/
package mempool
