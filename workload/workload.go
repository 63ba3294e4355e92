// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workload declares the symbolic shape variables of a tensor program
// and the concrete, weighted shape instances a schedule must generalize over.
//
// A ShapeVar is a named symbolic integer standing in for one dynamic
// dimension (e.g. the sequence length T); it carries no value by itself. An
// Instance binds every declared variable to a concrete integer and carries a
// non-negative weight expressing its relative importance, typically its
// sampling frequency in production traffic. An InstanceSet is an ordered
// sequence of instances; iteration order is insertion order, which affects
// nothing semantically but keeps logs and results reproducible.
package workload

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ShapeVar is a named symbolic integer for one dynamic dimension of the
// program template.
type ShapeVar struct {
	Name string

	// Divisor, if > 1, requires every bound value to be divisible by it.
	// Tiling constraints of a template family surface here.
	Divisor int
}

// Instance is one concrete binding of every declared ShapeVar, plus its
// relative importance weight. Values are ordered like the declared variables.
type Instance struct {
	Values []int
	Weight float64
}

// String formats the instance like "(128, 768, 2304)*1", values in
// declaration order with the weight suffix.
func (inst Instance) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range inst.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	fmt.Fprintf(&sb, ")*%g", inst.Weight)
	return sb.String()
}

// Key returns a canonical string for the instance's shape tuple, usable as a
// map key. The weight is not part of the key.
func (inst Instance) Key() string {
	parts := make([]string, len(inst.Values))
	for i, v := range inst.Values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, "x")
}

// InvalidInstanceError reports a malformed or out-of-domain instance. It is
// raised before any search work starts.
type InvalidInstanceError struct {
	Index    int // position in the InstanceSet
	Instance Instance
	Reason   string
}

func (e *InvalidInstanceError) Error() string {
	return fmt.Sprintf("invalid workload instance #%d %s: %s", e.Index, e.Instance, e.Reason)
}

// InstanceSet is an ordered sequence of weighted instances.
// The zero value is an empty set ready for use.
type InstanceSet struct {
	instances []Instance
}

// NewInstanceSet creates a set from the given instances, in order.
func NewInstanceSet(instances ...Instance) *InstanceSet {
	return &InstanceSet{instances: instances}
}

// Add appends an instance. It returns the set to allow chaining.
func (s *InstanceSet) Add(weight float64, values ...int) *InstanceSet {
	s.instances = append(s.instances, Instance{Values: values, Weight: weight})
	return s
}

// Len returns the number of instances.
func (s *InstanceSet) Len() int { return len(s.instances) }

// At returns the i-th instance in insertion order.
func (s *InstanceSet) At(i int) Instance { return s.instances[i] }

// Instances returns the underlying slice; callers must not modify it.
func (s *InstanceSet) Instances() []Instance { return s.instances }

// NormalizedWeights returns the instance weights divided by their sum, so
// they add up to 1. Weights need not sum to 1 on input. It panics on an
// empty set; Validate rejects sets whose weights sum to zero.
func (s *InstanceSet) NormalizedWeights() []float64 {
	weights := make([]float64, len(s.instances))
	for i, inst := range s.instances {
		weights[i] = inst.Weight
	}
	total := floats.Sum(weights)
	if total > 0 {
		floats.Scale(1/total, weights)
	}
	return weights
}

// Validate checks every instance against the declared shape variables: the
// binding arity must match exactly, values must be positive integers, and
// declared divisibility constraints must hold. Weights must be non-negative
// with at least one positive. The first violation is returned as an
// *InvalidInstanceError.
func (s *InstanceSet) Validate(vars []ShapeVar) error {
	if len(s.instances) == 0 {
		return errors.New("workload instance set is empty")
	}
	anyPositiveWeight := false
	for i, inst := range s.instances {
		if len(inst.Values) != len(vars) {
			return &InvalidInstanceError{
				Index:    i,
				Instance: inst,
				Reason: fmt.Sprintf("binds %d values but the template declares %d shape variables",
					len(inst.Values), len(vars)),
			}
		}
		if inst.Weight < 0 {
			return &InvalidInstanceError{Index: i, Instance: inst, Reason: "weight is negative"}
		}
		anyPositiveWeight = anyPositiveWeight || inst.Weight > 0
		for j, v := range inst.Values {
			if v <= 0 {
				return &InvalidInstanceError{
					Index:    i,
					Instance: inst,
					Reason:   fmt.Sprintf("%s=%d is not a positive integer", vars[j].Name, v),
				}
			}
			if vars[j].Divisor > 1 && v%vars[j].Divisor != 0 {
				return &InvalidInstanceError{
					Index:    i,
					Instance: inst,
					Reason:   fmt.Sprintf("%s=%d is not divisible by %d", vars[j].Name, v, vars[j].Divisor),
				}
			}
		}
	}
	if !anyPositiveWeight {
		return errors.New("workload instance set has no instance with a positive weight")
	}
	return nil
}

// MaxValues returns, per shape variable, the largest value bound by any
// instance in the set. Template enumerators size candidate footprints at
// these extremes.
func (s *InstanceSet) MaxValues() []int {
	if len(s.instances) == 0 {
		return nil
	}
	result := make([]int, len(s.instances[0].Values))
	copy(result, s.instances[0].Values)
	for _, inst := range s.instances[1:] {
		for j, v := range inst.Values {
			if j < len(result) && v > result[j] {
				result[j] = v
			}
		}
	}
	return result
}

// Grid builds an instance set from the cross product of per-variable value
// lists, all with weight 1. This mirrors how production traffic shapes are
// typically enumerated: a dynamic sequence-length range crossed with a few
// fixed model dimensions.
func Grid(valuesPerVar ...[]int) *InstanceSet {
	set := &InstanceSet{}
	if len(valuesPerVar) == 0 {
		return set
	}
	indices := make([]int, len(valuesPerVar))
	for {
		values := make([]int, len(valuesPerVar))
		for i, idx := range indices {
			values[i] = valuesPerVar[i][idx]
		}
		set.Add(1, values...)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(valuesPerVar[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return set
		}
	}
}
