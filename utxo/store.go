// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"sync"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
)

// Storage is the collaborator interface every component holding a
// reference to a UTXO store depends on, per the external-interfaces
// contract: get_utxo(id), add_utxo(u), remove_utxo(id).
type Storage interface {
	GetUTXO(id string) (*UTXO, bool)
	AddUTXO(u *UTXO) error
	RemoveUTXO(id string) error
}

// Store is the in-memory implementation of Storage: a keyed UTXO map, a
// shard index, and a spatial index. Reads may run concurrently with each
// other; mutation is guarded by a single mutex, consistent with this
// module's single-writer concurrency model.
type Store struct {
	mu            sync.RWMutex
	utxos         map[string]*UTXO
	shardIndex    map[int][]string
	index         *SpatialIndex
}

// NewStore builds an empty store whose spatial index uses gridSize (pass
// <= 0 for the default).
func NewStore(gridSize float64) *Store {
	return &Store{
		utxos:      make(map[string]*UTXO),
		shardIndex: make(map[int][]string),
		index:      NewSpatialIndex(gridSize),
	}
}

// AddUTXO inserts u, updating the shard and spatial indices. If any
// sub-index update were to fail the store is left exactly as it was
// before the call (atomic add) — in practice no sub-index operation here
// can fail once the duplicate check passes, but the ordering mirrors that
// requirement explicitly.
func (s *Store) AddUTXO(u *UTXO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.utxos[u.ID]; exists {
		return chainerr.New(chainerr.ErrDuplicateUTXO, "UTXO %s already exists", u.ID)
	}

	s.utxos[u.ID] = u

	x, y := u.Coordinate.Cartesian()
	s.index.Insert(u.ID, x, y)

	s.shardIndex[u.ShardAffinity] = append(s.shardIndex[u.ShardAffinity], u.ID)

	return nil
}

// RemoveUTXO deletes id, updating the shard and spatial indices.
func (s *Store) RemoveUTXO(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.utxos[id]
	if !ok {
		return chainerr.New(chainerr.ErrUnknownUTXO, "UTXO %s not found", id)
	}

	// The spatial index tracks its own membership independent of the
	// store; errors from it here would indicate the two structures have
	// already diverged, which ensureComputed-style callers treat as a
	// programming bug rather than a rule violation.
	if err := s.index.Remove(id); err != nil {
		panic(chainerr.AssertError("store and spatial index diverged: " + err.Error()))
	}

	ids := s.shardIndex[u.ShardAffinity]
	for i, candidate := range ids {
		if candidate == id {
			s.shardIndex[u.ShardAffinity] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.shardIndex[u.ShardAffinity]) == 0 {
		delete(s.shardIndex, u.ShardAffinity)
	}

	delete(s.utxos, id)
	return nil
}

// GetUTXO retrieves a UTXO by id.
func (s *Store) GetUTXO(id string) (*UTXO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.utxos[id]
	return u, ok
}

// GetUTXOsByShard returns all UTXOs currently assigned to shard.
func (s *Store) GetUTXOsByShard(shard int) []*UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.shardIndex[shard]
	result := make([]*UTXO, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.utxos[id]; ok {
			result = append(result, u)
		}
	}
	return result
}

// GetSpatialNeighbors finds all UTXOs within radius of u's coordinate,
// excluding u itself.
func (s *Store) GetSpatialNeighbors(u *UTXO, radius float64) []*UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, y := u.Coordinate.Cartesian()
	ids := s.index.QueryRange(x, y, radius)

	result := make([]*UTXO, 0, len(ids))
	for id := range ids {
		if id == u.ID {
			continue
		}
		if n, ok := s.utxos[id]; ok {
			result = append(result, n)
		}
	}
	return result
}

// TotalBalance sums the amount of every stored UTXO.
func (s *Store) TotalBalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, u := range s.utxos {
		total += u.Amount
	}
	return total
}

// BalanceByShard sums amounts per shard.
func (s *Store) BalanceByShard() map[int]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make(map[int]float64)
	for _, u := range s.utxos {
		balances[u.ShardAffinity] += u.Amount
	}
	return balances
}

// AllUTXOs returns every stored UTXO, in no particular order.
func (s *Store) AllUTXOs() []*UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*UTXO, 0, len(s.utxos))
	for _, u := range s.utxos {
		result = append(result, u)
	}
	return result
}

// Clear empties the store and its indices.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos = make(map[string]*UTXO)
	s.shardIndex = make(map[int][]string)
	s.index.Clear()
}
