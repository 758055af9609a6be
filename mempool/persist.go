// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/littlekickoffkittie/legacy-protocol/coordinate"
	"github.com/littlekickoffkittie/legacy-protocol/txn"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// Snapshotting a mempool follows a small versioned-binary-format,
// atomic-write pattern: magic, version, a length-prefixed payload, all
// written to a temp file then renamed into place. The payload is
// compressed with bzip2 (via dsnet/compress, since the standard library
// only ships a bzip2 reader, not a writer) since a full transaction set
// is much larger than a fee histogram.
const (
	snapshotMagic   = "MPL1"
	snapshotVersion = uint32(1)
)

// ErrInvalidSnapshot indicates a snapshot file failed a structural check.
var ErrInvalidSnapshot = errors.New("invalid mempool snapshot")

type snapshotInput struct {
	UTXOID    string
	Signature string
	PublicKey string
}

type snapshotOutput struct {
	Owner             string
	Amount            float64
	CoordDepth        int
	CoordPath         []int
	Script            string
	ContractStateHash string
	GasLimit          uint64
}

type snapshotEntry struct {
	Inputs     []snapshotInput
	Outputs    []snapshotOutput
	Timestamp  int64
	Nonce      uint64
	Fee        float64
	FeePerByte float64
	InsertedAt int64
	InBlocks   []string
}

// SaveSnapshot writes every pending transaction and its admission
// metadata to path, bzip2-compressed.
func (m *Mempool) SaveSnapshot(path string) error {
	m.mu.RLock()
	entries := make([]snapshotEntry, 0, len(m.transactions))
	for _, e := range m.transactions {
		entries = append(entries, toSnapshotEntry(e))
	}
	m.mu.RUnlock()

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(entries); err != nil {
		return fmt.Errorf("encoding mempool snapshot: %w", err)
	}

	var compressed bytes.Buffer
	bw, err := bzip2.NewWriter(&compressed, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return fmt.Errorf("building bzip2 writer: %w", err)
	}
	if _, err := bw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compressing mempool snapshot: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("closing bzip2 writer: %w", err)
	}

	out := bytes.NewBuffer(make([]byte, 0, compressed.Len()+16))
	out.WriteString(snapshotMagic)
	if err := binary.Write(out, binary.BigEndian, snapshotVersion); err != nil {
		return err
	}
	if err := binary.Write(out, binary.BigEndian, uint32(compressed.Len())); err != nil {
		return err
	}
	out.Write(compressed.Bytes())

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot restores a previously saved snapshot, re-admitting each
// transaction via AddTransaction so every invariant (fee floor, capacity,
// index consistency) is re-checked rather than trusted blindly.
func (m *Mempool) LoadSnapshot(path string, store utxo.Storage, verifier utxo.SignatureVerifier, currentHeight uint64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	reader := bytes.NewReader(raw)
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return err
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidSnapshot, string(magic))
	}

	var version uint32
	if err := binary.Read(reader, binary.BigEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("%w: unexpected version %d", ErrInvalidSnapshot, version)
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return err
	}
	compressed := make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, compressed); err != nil {
		return err
	}

	br, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return fmt.Errorf("building bzip2 reader: %w", err)
	}
	defer br.Close()

	var decompressed bytes.Buffer
	if _, err := io.Copy(&decompressed, br); err != nil {
		return fmt.Errorf("decompressing mempool snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := gob.NewDecoder(&decompressed).Decode(&entries); err != nil {
		return fmt.Errorf("decoding mempool snapshot: %w", err)
	}

	for _, se := range entries {
		tx, err := fromSnapshotEntry(se)
		if err != nil {
			log.Warnf("skipping unreadable snapshot entry: %v", err)
			continue
		}
		if err := m.AddTransaction(tx, store, verifier, currentHeight, se.InsertedAt); err != nil {
			log.Debugf("snapshot transaction %s not re-admitted: %v", tx.ID, err)
		}
	}
	return nil
}

func toSnapshotEntry(e *Entry) snapshotEntry {
	tx := e.Transaction
	inputs := make([]snapshotInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = snapshotInput{UTXOID: in.UTXOID, Signature: in.Signature, PublicKey: in.PublicKey}
	}

	outputs := make([]snapshotOutput, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = snapshotOutput{
			Owner:             out.Owner,
			Amount:            out.Amount,
			CoordDepth:        out.Coordinate.Depth(),
			CoordPath:         out.Coordinate.Path(),
			Script:            out.Script.String(),
			ContractStateHash: out.ContractStateHash,
			GasLimit:          out.GasLimit,
		}
	}

	inBlocks := make([]string, 0, len(e.InBlocks))
	for b := range e.InBlocks {
		inBlocks = append(inBlocks, b)
	}

	return snapshotEntry{
		Inputs:     inputs,
		Outputs:    outputs,
		Timestamp:  tx.Timestamp,
		Nonce:      tx.Nonce,
		Fee:        e.Fee,
		FeePerByte: e.FeePerByte,
		InsertedAt: e.InsertedAt,
		InBlocks:   inBlocks,
	}
}

func fromSnapshotEntry(se snapshotEntry) (*txn.Transaction, error) {
	inputs := make([]txn.Input, len(se.Inputs))
	for i, in := range se.Inputs {
		inputs[i] = txn.Input{UTXOID: in.UTXOID, Signature: in.Signature, PublicKey: in.PublicKey}
	}

	outputs := make([]txn.Output, len(se.Outputs))
	for i, out := range se.Outputs {
		coord, err := coordinate.New(out.CoordDepth, out.CoordPath)
		if err != nil {
			return nil, err
		}
		script, err := utxo.ParseScript(out.Script)
		if err != nil {
			return nil, err
		}
		outputs[i] = txn.Output{
			Owner:             out.Owner,
			Amount:            out.Amount,
			Coordinate:        coord,
			Script:            script,
			ContractStateHash: out.ContractStateHash,
			GasLimit:          out.GasLimit,
		}
	}

	return txn.New(inputs, outputs, se.Timestamp, se.Nonce)
}
