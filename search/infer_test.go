// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/workload"
)

// trainFixture trains a two-candidate run where candidate 0 wins T=64 and
// candidate 1 wins T=128, and returns the backend for replaying.
func trainFixture(t *testing.T) (*Result, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{gflops: byInstance(
		map[int]float64{64: 10, 96: 11, 128: 5},
		map[int]float64{64: 8, 96: 12, 128: 20},
	)}
	set := workload.NewInstanceSet().Add(1, 64).Add(3, 128)
	result, err := Train(context.Background(), &fixedTemplate{candidates: 2}, set,
		hardware.MustPreset("v100"), backend)
	require.NoError(t, err)
	return result, backend
}

func TestInferReplaysTrainedBest(t *testing.T) {
	result, backend := trainFixture(t)

	set := workload.NewInstanceSet().Add(1, 64).Add(1, 128)
	replays, err := InferResult(context.Background(), &fixedTemplate{candidates: 2}, set,
		result, backend)
	require.NoError(t, err)
	require.Len(t, replays, 2)

	assert.Equal(t, 0, replays[0].Candidate.ID)
	assert.InDelta(t, 10.0, replays[0].GFLOPS, 1e-9)
	assert.Equal(t, 1, replays[1].Candidate.ID)
	assert.InDelta(t, 20.0, replays[1].GFLOPS, 1e-9)
	assert.False(t, replays[0].Validated, "no oracle configured")
}

func TestInferCoversByRange(t *testing.T) {
	// T=96 was never trained; it falls between the exact tuples but inside
	// neither entry's single-point bucket, so coverage needs a real range.
	backend := &fakeBackend{gflops: byInstance(map[int]float64{64: 10, 96: 9, 128: 8})}
	set := workload.NewInstanceSet().Add(1, 64).Add(1, 128)
	result, err := Train(context.Background(), &fixedTemplate{candidates: 1}, set,
		hardware.MustPreset("v100"), backend)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, []int{64}, result.Entries[0].Applicability.Min)
	assert.Equal(t, []int{128}, result.Entries[0].Applicability.Max)

	replays, err := InferResult(context.Background(), &fixedTemplate{candidates: 1},
		workload.NewInstanceSet().Add(1, 96), result, backend)
	require.NoError(t, err)
	require.Len(t, replays, 1)
	assert.InDelta(t, 9.0, replays[0].GFLOPS, 1e-9)
}

func TestInferNoCoverage(t *testing.T) {
	result, backend := trainFixture(t)

	_, err := InferResult(context.Background(), &fixedTemplate{candidates: 2},
		workload.NewInstanceSet().Add(1, 1024), result, backend)
	var noCoverage *NoCoverageError
	require.ErrorAs(t, err, &noCoverage)
	assert.Equal(t, "fixed", noCoverage.Template)
	assert.Equal(t, []int{1024}, noCoverage.Instance.Values)
}

func TestInferTemplateMismatch(t *testing.T) {
	result, backend := trainFixture(t)
	result.Template = "other"

	_, err := InferResult(context.Background(), &fixedTemplate{candidates: 2},
		workload.NewInstanceSet().Add(1, 64), result, backend)
	require.ErrorContains(t, err, `"other"`)
}

func TestInferOracleValidation(t *testing.T) {
	result, backend := trainFixture(t)
	set := workload.NewInstanceSet().Add(1, 64)

	replays, err := InferResult(context.Background(), &fixedTemplate{candidates: 2}, set,
		result, backend, WithOracle(&fakeOracle{}))
	require.NoError(t, err)
	require.Len(t, replays, 1)
	assert.True(t, replays[0].Validated)
	assert.InDelta(t, 100.0, replays[0].ReferenceGFLOPS, 1e-9)
}

func TestInferOracleMismatchFails(t *testing.T) {
	result, backend := trainFixture(t)
	set := workload.NewInstanceSet().Add(1, 64)

	_, err := InferResult(context.Background(), &fixedTemplate{candidates: 2}, set,
		result, backend, WithOracle(&fakeOracle{skew: 1.1}))
	require.ErrorContains(t, err, "validation failed")

	// A loose enough tolerance accepts the skewed reference.
	_, err = InferResult(context.Background(), &fixedTemplate{candidates: 2}, set,
		result, backend, WithOracle(&fakeOracle{skew: 1.1}), WithValidationTolerance(0.5))
	require.NoError(t, err)
}

// fakeOracle returns the canonical reference output, optionally skewed to
// force a validation mismatch.
type fakeOracle struct {
	skew float32
}

func (o *fakeOracle) Reference(_ context.Context, inst workload.Instance) (float64, []float32, error) {
	out := referenceOutput(inst)
	if o.skew != 0 {
		for i := range out {
			out[i] *= o.skew
		}
	}
	return 100, out, nil
}
