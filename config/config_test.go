// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesOnlyPresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	const contents = `
mempool:
  max_size: 1000
consensus:
  initial_difficulty: 4
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Mempool.MaxSize = 1000
	want.Consensus.InitialDifficulty = 4

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("Load(%s) mismatch (-want +got):\n%s\nfull config: %s", path, diff, spew.Sdump(cfg))
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	const contents = `
mempool:
  max_size: -1
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeTunables(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Mempool.MaxSize = 0 },
		func(c *Config) { c.Mempool.MinFeePerByte = -1 },
		func(c *Config) { c.Consensus.TargetBlockTime = 0 },
		func(c *Config) { c.Consensus.DifficultyAdjustmentWindow = 1 },
		func(c *Config) { c.Consensus.MaxDifficultyChange = 1.0 },
		func(c *Config) { c.Consensus.InitialDifficulty = 0 },
		func(c *Config) { c.SpatialIndex.GridSize = 0 },
	}

	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		require.Errorf(t, cfg.Validate(), "case %d: %s", i, spew.Sdump(cfg))
	}
}

func TestWatchRepublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mempool:\n  max_size: 1000\n"), 0o644))

	cfg, w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 1000, cfg.Mempool.MaxSize)

	require.NoError(t, os.WriteFile(path, []byte("mempool:\n  max_size: 2000\n"), 0o644))

	select {
	case updated := <-w.Updates:
		require.Equal(t, 2000, updated.Mempool.MaxSize)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
