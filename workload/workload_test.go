// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var bertVars = []ShapeVar{{Name: "T"}, {Name: "I"}, {Name: "H"}}

func TestNormalizedWeights(t *testing.T) {
	set := NewInstanceSet().
		Add(1, 5, 768, 2304).
		Add(3, 128, 768, 2304)
	require.NoError(t, set.Validate(bertVars))

	weights := set.NormalizedWeights()
	assert.Equal(t, []float64{0.25, 0.75}, weights)

	// Any non-empty set with a positive weight normalizes to sum 1.
	set = NewInstanceSet()
	for i := 1; i <= 7; i++ {
		set.Add(float64(i)*0.3, i, 768, 2304)
	}
	assert.InDelta(t, 1.0, floats.Sum(set.NormalizedWeights()), 1e-12)
}

func TestValidate(t *testing.T) {
	t.Run("empty set", func(t *testing.T) {
		require.Error(t, NewInstanceSet().Validate(bertVars))
	})

	t.Run("arity mismatch", func(t *testing.T) {
		err := NewInstanceSet().Add(1, 5, 768).Validate(bertVars)
		var invalid *InvalidInstanceError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 0, invalid.Index)
		assert.Contains(t, invalid.Error(), "3 shape variables")
	})

	t.Run("non-positive value", func(t *testing.T) {
		err := NewInstanceSet().Add(1, 5, 0, 2304).Validate(bertVars)
		var invalid *InvalidInstanceError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Error(), "I=0")
	})

	t.Run("negative weight", func(t *testing.T) {
		err := NewInstanceSet().Add(-1, 5, 768, 2304).Validate(bertVars)
		var invalid *InvalidInstanceError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Error(), "negative")
	})

	t.Run("divisibility", func(t *testing.T) {
		vars := []ShapeVar{{Name: "T", Divisor: 8}, {Name: "I"}, {Name: "H"}}
		require.NoError(t, NewInstanceSet().Add(1, 16, 768, 2304).Validate(vars))
		err := NewInstanceSet().Add(1, 5, 768, 2304).Validate(vars)
		var invalid *InvalidInstanceError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Error(), "divisible by 8")
	})

	t.Run("all-zero weights", func(t *testing.T) {
		err := NewInstanceSet().Add(0, 5, 768, 2304).Validate(bertVars)
		require.Error(t, err)
	})
}

func TestGrid(t *testing.T) {
	// The usual dynamic-T workload: a range of sequence lengths crossed
	// with fixed model dimensions.
	tValues := []int{5, 24, 43, 62, 81, 100, 119, 128}
	set := Grid(tValues, []int{768}, []int{2304})
	require.Equal(t, len(tValues), set.Len())
	require.NoError(t, set.Validate(bertVars))
	assert.Equal(t, []int{5, 768, 2304}, set.At(0).Values)
	assert.Equal(t, []int{128, 768, 2304}, set.At(set.Len()-1).Values)
	assert.Equal(t, 1.0, set.At(0).Weight)

	// Cross product over two varying dimensions keeps row-major order.
	set = Grid([]int{1, 2}, []int{10, 20})
	require.Equal(t, 4, set.Len())
	assert.Equal(t, []int{1, 10}, set.At(0).Values)
	assert.Equal(t, []int{1, 20}, set.At(1).Values)
	assert.Equal(t, []int{2, 10}, set.At(2).Values)
	assert.Equal(t, []int{2, 20}, set.At(3).Values)
}

func TestMaxValuesAndKeys(t *testing.T) {
	set := NewInstanceSet().
		Add(1, 5, 768, 2304).
		Add(1, 128, 768, 768)
	assert.Equal(t, []int{128, 768, 2304}, set.MaxValues())
	assert.Equal(t, "5x768x2304", set.At(0).Key())
	assert.Equal(t, "(5, 768, 2304)*1", set.At(0).String())
}
