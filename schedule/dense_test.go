// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/dynsched/workload"
)

func bertSet() *workload.InstanceSet {
	return workload.NewInstanceSet().
		Add(1, 5, 768, 2304).
		Add(1, 128, 768, 2304)
}

func TestDenseEnumerate(t *testing.T) {
	dense := NewDense(16)
	pool, err := dense.Enumerate(bertSet())
	require.NoError(t, err)
	require.NotEmpty(t, pool)

	seenKeys := make(map[string]bool)
	for i, cand := range pool {
		assert.Equal(t, i, cand.ID, "IDs must follow enumeration order")
		assert.Equal(t, "dense", cand.Template)
		require.False(t, seenKeys[cand.Key()], "duplicate candidate %s", cand.Key())
		seenKeys[cand.Key()] = true

		fp := &cand.Footprint
		assert.GreaterOrEqual(t, fp.ThreadsPerGroup, 32)
		assert.LessOrEqual(t, fp.ThreadsPerGroup, 1024)
		assert.Positive(t, fp.FLOPs)
		assert.Positive(t, fp.BytesPerLevel[LevelGlobal])
		assert.Positive(t, fp.BytesPerLevel[LevelShared])
		assert.Positive(t, fp.SharedBytesPerGroup)
		assert.Positive(t, fp.GroupCount)
		assert.Equal(t, LevelShared, fp.InnermostActiveLevel())

		// Group tiles are multiples of the per-thread micro tiles.
		for _, tiles := range cand.SpaceTiles {
			assert.Zero(t, tiles[0]%tiles[1])
		}
	}
}

func TestDenseEnumerateDeterministic(t *testing.T) {
	dense := NewDense(16)
	poolA, err := dense.Enumerate(bertSet())
	require.NoError(t, err)
	poolB, err := dense.Enumerate(bertSet())
	require.NoError(t, err)
	require.Equal(t, len(poolA), len(poolB))
	for i := range poolA {
		assert.Equal(t, poolA[i].Key(), poolB[i].Key())
		assert.Equal(t, poolA[i].Footprint, poolB[i].Footprint)
	}
}

func TestDensePaddingFilter(t *testing.T) {
	// A one-token instance (M = 16) makes every group tile beyond 16 pad at
	// least half of its rows; disabling the threshold brings them back.
	tiny := workload.NewInstanceSet().Add(1, 1, 768, 2304)

	filtered, err := NewDense(16).Enumerate(tiny)
	require.NoError(t, err)
	require.NotEmpty(t, filtered)

	open := NewDense(16)
	open.MinPaddingRatio = 0
	all, err := open.Enumerate(tiny)
	require.NoError(t, err)

	assert.Less(t, len(filtered), len(all))
	for _, cand := range filtered {
		assert.Equal(t, 16, cand.SpaceTiles[0][0],
			"only the exact row tile survives the default threshold")
	}
}

func TestDenseFootprintScalesWithInstances(t *testing.T) {
	dense := NewDense(16)
	small, err := dense.Enumerate(workload.NewInstanceSet().Add(1, 8, 768, 768))
	require.NoError(t, err)
	large, err := dense.Enumerate(workload.NewInstanceSet().Add(1, 128, 768, 2304))
	require.NoError(t, err)
	require.NotEmpty(t, small)
	require.NotEmpty(t, large)

	// Footprints are sized at the largest instance of the set.
	assert.Less(t, small[0].Footprint.FLOPs, large[0].Footprint.FLOPs)
}

func TestDenseRejectsInvalidSet(t *testing.T) {
	dense := NewDense(16)
	_, err := dense.Enumerate(workload.NewInstanceSet().Add(1, 5, 768)) // wrong arity
	var invalid *workload.InvalidInstanceError
	require.ErrorAs(t, err, &invalid)
}

func TestCandidateKeyAndDescribe(t *testing.T) {
	cand := &Candidate{
		Template:    "dense",
		SpaceTiles:  [][2]int{{64, 4}, {64, 4}},
		ReduceTiles: []int{16},
		DType:       Float32,
	}
	assert.Equal(t, "dense_s64x4_s64x4_r16_f32", cand.Key())
	assert.Contains(t, cand.Describe(), "dense_s64x4_s64x4_r16_f32")

	other := &Candidate{
		Template:    "dense",
		SpaceTiles:  [][2]int{{64, 4}, {64, 8}},
		ReduceTiles: []int{16},
		DType:       Float32,
	}
	assert.NotEqual(t, cand.Key(), other.Key())
}
