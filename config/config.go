// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the node-wide tunables that wire a shard together:
// mempool admission limits, consensus retargeting parameters, and the
// spatial index grid size. Values are read from YAML at startup; no core
// operation in this module reads the filesystem directly. An optional
// Watch mode hot-reloads the file and republishes the decoded Config to a
// subscriber channel.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/littlekickoffkittie/legacy-protocol/consensus"
	"github.com/littlekickoffkittie/legacy-protocol/mempool"
	"github.com/littlekickoffkittie/legacy-protocol/utxo"
)

// Mempool holds the mempool admission tunables of §6.
type Mempool struct {
	MaxSize       int     `yaml:"max_size"`
	MinFeePerByte float64 `yaml:"min_fee_per_byte"`
}

// Consensus holds one shard's consensus tunables of §6.
type Consensus struct {
	TargetBlockTime            int64   `yaml:"target_block_time"`
	DifficultyAdjustmentWindow int     `yaml:"difficulty_adjustment_window"`
	MaxDifficultyChange        float64 `yaml:"max_difficulty_change"`
	InitialDifficulty          int     `yaml:"initial_difficulty"`
}

// SpatialIndex holds the UTXO spatial index tunable of §6.
type SpatialIndex struct {
	GridSize float64 `yaml:"grid_size"`
}

// Config is the complete set of tunables a shard is wired together from.
type Config struct {
	Mempool      Mempool      `yaml:"mempool"`
	Consensus    Consensus    `yaml:"consensus"`
	SpatialIndex SpatialIndex `yaml:"spatial_index"`
}

// Default returns a Config carrying this module's documented defaults,
// sourced from the same constants the mempool, consensus, and utxo
// packages fall back to when constructed with a zero value.
func Default() Config {
	return Config{
		Mempool: Mempool{
			MaxSize:       mempool.DefaultMaxSize,
			MinFeePerByte: mempool.DefaultMinFeePerByte,
		},
		Consensus: Consensus{
			TargetBlockTime:            consensus.DefaultTargetBlockTime,
			DifficultyAdjustmentWindow: consensus.DefaultDifficultyWindow,
			MaxDifficultyChange:        consensus.DefaultMaxDifficultyChange,
			InitialDifficulty:          consensus.DefaultInitialDifficulty,
		},
		SpatialIndex: SpatialIndex{
			GridSize: utxo.DefaultGridSize,
		},
	}
}

// Load reads and decodes the YAML file at path over Default(): a field
// absent from the file keeps its default value, since yaml.Unmarshal only
// overwrites the keys it actually finds.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first tunable that falls outside the range every
// dependent package requires.
func (c Config) Validate() error {
	if c.Mempool.MaxSize <= 0 {
		return fmt.Errorf("mempool.max_size must be positive, got %d", c.Mempool.MaxSize)
	}
	if c.Mempool.MinFeePerByte < 0 {
		return fmt.Errorf("mempool.min_fee_per_byte must not be negative, got %f", c.Mempool.MinFeePerByte)
	}
	if c.Consensus.TargetBlockTime <= 0 {
		return fmt.Errorf("consensus.target_block_time must be positive, got %d", c.Consensus.TargetBlockTime)
	}
	if c.Consensus.DifficultyAdjustmentWindow <= 1 {
		return fmt.Errorf("consensus.difficulty_adjustment_window must exceed 1, got %d", c.Consensus.DifficultyAdjustmentWindow)
	}
	if c.Consensus.MaxDifficultyChange <= 1.0 {
		return fmt.Errorf("consensus.max_difficulty_change must exceed 1.0, got %f", c.Consensus.MaxDifficultyChange)
	}
	if c.Consensus.InitialDifficulty <= 0 {
		return fmt.Errorf("consensus.initial_difficulty must be positive, got %d", c.Consensus.InitialDifficulty)
	}
	if c.SpatialIndex.GridSize <= 0 {
		return fmt.Errorf("spatial_index.grid_size must be positive, got %f", c.SpatialIndex.GridSize)
	}
	return nil
}
