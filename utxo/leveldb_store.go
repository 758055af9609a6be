// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"encoding/json"
	"fmt"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelDBStore is an alternate Storage implementation that persists UTXOs
// to a LevelDB database instead of keeping them only in memory. The
// in-memory Store remains the reference implementation this core assumes;
// LevelDBStore exists for callers that want the same Storage contract
// backed by disk, without changing anything about validation or chain
// logic, which only ever depend on the Storage interface.
type LevelDBStore struct {
	db *leveldb.DB
}

// leveldbRecord is the on-disk encoding of a UTXO. Coordinate is stored as
// its depth and path rather than its hash, so it can be fully
// reconstructed on load.
type leveldbRecord struct {
	Owner             string `json:"owner"`
	Amount            float64 `json:"amount"`
	Depth             int     `json:"depth"`
	Path              []int   `json:"path"`
	CreationHeight    uint64  `json:"creation_height"`
	Script            string  `json:"script"`
	ContractStateHash string  `json:"contract_state_hash,omitempty"`
	GasLimit          uint64  `json:"gas_limit,omitempty"`
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb store: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func encodeUTXO(u *UTXO) ([]byte, error) {
	rec := leveldbRecord{
		Owner:             u.Owner,
		Amount:            u.Amount,
		Depth:             u.Coordinate.Depth(),
		Path:              u.Coordinate.Path(),
		CreationHeight:    u.CreationHeight,
		Script:            u.Script.String(),
		ContractStateHash: u.ContractStateHash,
		GasLimit:          u.GasLimit,
	}
	return json.Marshal(rec)
}

func decodeUTXO(data []byte) (*UTXO, error) {
	var rec leveldbRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	coord, err := coordinate.New(rec.Depth, rec.Path)
	if err != nil {
		return nil, err
	}
	script, err := ParseScript(rec.Script)
	if err != nil {
		return nil, err
	}
	return New(rec.Owner, rec.Amount, coord, rec.CreationHeight, script, rec.ContractStateHash, rec.GasLimit)
}

// GetUTXO retrieves a UTXO by id, decoding it from disk.
func (s *LevelDBStore) GetUTXO(id string) (*UTXO, bool) {
	data, err := s.db.Get([]byte(id), nil)
	if err != nil {
		return nil, false
	}
	u, err := decodeUTXO(data)
	if err != nil {
		log.Errorf("leveldb store: corrupt record for %s: %v", id, err)
		return nil, false
	}
	return u, true
}

// AddUTXO persists u, rejecting a duplicate id.
func (s *LevelDBStore) AddUTXO(u *UTXO) error {
	_, err := s.db.Get([]byte(u.ID), nil)
	if err == nil {
		return chainerr.New(chainerr.ErrDuplicateUTXO, "UTXO %s already exists", u.ID)
	}
	if err != errors.ErrNotFound {
		return fmt.Errorf("leveldb store: checking existing record: %w", err)
	}

	data, err := encodeUTXO(u)
	if err != nil {
		return fmt.Errorf("leveldb store: encoding UTXO: %w", err)
	}
	return s.db.Put([]byte(u.ID), data, nil)
}

// RemoveUTXO deletes id, rejecting an unknown id.
func (s *LevelDBStore) RemoveUTXO(id string) error {
	_, err := s.db.Get([]byte(id), nil)
	if err == errors.ErrNotFound {
		return chainerr.New(chainerr.ErrUnknownUTXO, "UTXO %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("leveldb store: checking existing record: %w", err)
	}
	return s.db.Delete([]byte(id), nil)
}
