// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool implements the pending-transaction pool: admission with
// fee-rate checks and low-fee eviction, shard/spent-UTXO indices, and
// block-inclusion bookkeeping for reorg handling.
package mempool

import (
	"sort"
	"sync"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/txn"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// DefaultMaxSize and DefaultMinFeePerByte are the default admission
// tunables used when a mempool is built without explicit overrides.
const (
	DefaultMaxSize       = 50_000
	DefaultMinFeePerByte = 0.00001
)

// Entry wraps a pending transaction with the metadata admission computed.
type Entry struct {
	Transaction *txn.Transaction
	Fee         float64
	FeePerByte  float64
	InsertedAt  int64
	InBlocks    map[string]struct{}
}

// Mempool holds pending transactions, indexed by id, by output shard, and
// by the UTXO ids they spend.
type Mempool struct {
	mu            sync.RWMutex
	transactions  map[string]*Entry
	shardTxs      map[int]map[string]struct{}
	spentUTXOs    map[string]string // utxo_id -> tx_id
	maxSize       int
	minFeePerByte float64
}

// New builds an empty mempool with the given admission tunables. A
// non-positive maxSize falls back to DefaultMaxSize.
func New(maxSize int, minFeePerByte float64) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Mempool{
		transactions:  make(map[string]*Entry),
		shardTxs:      make(map[int]map[string]struct{}),
		spentUTXOs:    make(map[string]string),
		maxSize:       maxSize,
		minFeePerByte: minFeePerByte,
	}
}

// IsUTXOSpent implements txn.MempoolView.
func (m *Mempool) IsUTXOSpent(utxoID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, spent := m.spentUTXOs[utxoID]
	return spent
}

// SpendingTransaction returns the transaction that currently spends
// utxoID in the mempool, if any. Supplemented from the original
// TransactionMempool.get_spending_transaction.
func (m *Mempool) SpendingTransaction(utxoID string) (*txn.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txID, ok := m.spentUTXOs[utxoID]
	if !ok {
		return nil, false
	}
	entry, ok := m.transactions[txID]
	if !ok {
		return nil, false
	}
	return entry.Transaction, true
}

// AddTransaction validates tx against store, computes its fee rate, and
// admits it if the fee rate clears the floor and a slot is available
// (evicting lower fee-rate entries first if the pool is at capacity).
func (m *Mempool) AddTransaction(tx *txn.Transaction, store utxo.Storage, verifier utxo.SignatureVerifier, currentHeight uint64, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transactions[tx.ID]; exists {
		return chainerr.New(chainerr.ErrAlreadyInMempool, "transaction %s already in mempool", tx.ID)
	}

	if err := tx.Validate(store, verifier, currentHeight, m); err != nil {
		return err
	}

	fee, err := tx.Fee(store)
	if err != nil {
		return err
	}

	size := tx.EstimatedSize()
	var feePerByte float64
	if size > 0 {
		feePerByte = fee / float64(size)
	}

	if feePerByte < m.minFeePerByte {
		return chainerr.New(chainerr.ErrFeeTooLow, "fee per byte %f below minimum %f", feePerByte, m.minFeePerByte)
	}

	if len(m.transactions) >= m.maxSize {
		m.evictLowestFeeLocked(feePerByte)
		if len(m.transactions) >= m.maxSize {
			return chainerr.New(chainerr.ErrMempoolFull, "mempool at capacity (%d entries)", m.maxSize)
		}
	}

	entry := &Entry{
		Transaction: tx,
		Fee:         fee,
		FeePerByte:  feePerByte,
		InsertedAt:  now,
		InBlocks:    make(map[string]struct{}),
	}
	m.transactions[tx.ID] = entry

	for _, out := range tx.Outputs {
		shard := out.Coordinate.ShardID()
		if m.shardTxs[shard] == nil {
			m.shardTxs[shard] = make(map[string]struct{})
		}
		m.shardTxs[shard][tx.ID] = struct{}{}
	}

	for _, in := range tx.Inputs {
		m.spentUTXOs[in.UTXOID] = tx.ID
	}

	return nil
}

// evictLowestFeeLocked removes the lowest fee-per-byte entries until the
// pool has a free slot, but never evicts down to make room for an
// incoming transaction whose own fee rate would not beat the entry being
// evicted — callers should have already checked incomingFeePerByte clears
// the floor; this only orders eviction preference.
func (m *Mempool) evictLowestFeeLocked(incomingFeePerByte float64) {
	entries := make([]*Entry, 0, len(m.transactions))
	for _, e := range m.transactions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FeePerByte < entries[j].FeePerByte
	})

	for _, e := range entries {
		if len(m.transactions) < m.maxSize {
			break
		}
		if e.FeePerByte >= incomingFeePerByte {
			break
		}
		m.removeLocked(e.Transaction.ID)
	}
}

// Remove drops tx_id and cleans all indices. Removing an id that is not
// present is a no-op, mirroring the original's idempotent removal.
func (m *Mempool) Remove(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(txID)
}

func (m *Mempool) removeLocked(txID string) {
	entry, ok := m.transactions[txID]
	if !ok {
		return
	}

	for _, out := range entry.Transaction.Outputs {
		shard := out.Coordinate.ShardID()
		if set, ok := m.shardTxs[shard]; ok {
			delete(set, txID)
			if len(set) == 0 {
				delete(m.shardTxs, shard)
			}
		}
	}

	for _, in := range entry.Transaction.Inputs {
		delete(m.spentUTXOs, in.UTXOID)
	}

	delete(m.transactions, txID)
}

// GetTransaction retrieves a pending transaction by id.
func (m *Mempool) GetTransaction(txID string) (*txn.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.transactions[txID]
	if !ok {
		return nil, false
	}
	return entry.Transaction, true
}

// ShardTransactions returns transactions touching shardID, ordered by
// descending fee-per-byte, limited to maxCount (0 means unlimited) and
// optionally filtered to a minimum fee-per-byte floor. Supplemented from
// the original TransactionMempool.get_shard_transactions.
func (m *Mempool) ShardTransactions(shardID int, maxCount int, minFeePerByte *float64) []*txn.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.shardTxs[shardID]
	if !ok {
		return nil
	}

	entries := make([]*Entry, 0, len(ids))
	for id := range ids {
		if e, ok := m.transactions[id]; ok {
			entries = append(entries, e)
		}
	}

	if minFeePerByte != nil {
		filtered := entries[:0]
		for _, e := range entries {
			if e.FeePerByte >= *minFeePerByte {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FeePerByte > entries[j].FeePerByte
	})

	if maxCount > 0 && len(entries) > maxCount {
		entries = entries[:maxCount]
	}

	result := make([]*txn.Transaction, len(entries))
	for i, e := range entries {
		result[i] = e.Transaction
	}
	return result
}

// MarkIncludedInBlock records that blockID included txID, without
// removing it from the pool — useful while a block is a candidate but
// not yet the main-chain tip.
func (m *Mempool) MarkIncludedInBlock(txID, blockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.transactions[txID]; ok {
		entry.InBlocks[blockID] = struct{}{}
	}
}

// RemoveBlockTransactions drops every transaction marked as included in
// blockID.
func (m *Mempool) RemoveBlockTransactions(blockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toRemove []string
	for txID, entry := range m.transactions {
		if _, ok := entry.InBlocks[blockID]; ok {
			toRemove = append(toRemove, txID)
		}
	}
	for _, txID := range toRemove {
		m.removeLocked(txID)
	}
}

// Clear empties the mempool and its indices.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = make(map[string]*Entry)
	m.shardTxs = make(map[int]map[string]struct{})
	m.spentUTXOs = make(map[string]string)
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}
