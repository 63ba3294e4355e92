// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package schedule defines schedule candidates and the program-template
// collaborator that enumerates them.
//
// A Candidate is one fully concrete tiling/mapping decision for a program
// template: group tile sizes, per-thread micro tiles, reduction tiling and
// the memory placement that follows from them. Candidates are opaque to the
// scorer except for the resource quantities in their Footprint, which the
// template derives at enumeration time -- the search core never inspects
// program text.
package schedule

import (
	"fmt"
	"strings"

	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/workload"
)

// Conventional memory-level slots used in Footprint.BytesPerLevel and
// Footprint.Access. They match hardware.LevelGlobal/LevelShared/LevelRegister
// for profiles with a full hierarchy; profiles with fewer levels collapse the
// shared slot into global.
const (
	LevelGlobal = iota
	LevelShared
	LevelRegister
	numLevels
)

// Footprint holds the resource quantities a template derives for one
// candidate, sized at the largest instance of the workload set. These are the
// only candidate facts the scorer and the hardware model may read.
type Footprint struct {
	// FLOPs is the total arithmetic work of the program at the sizing
	// instance.
	FLOPs float64

	// BytesPerLevel is the total bytes moved through each memory level
	// (slots LevelGlobal, LevelShared, LevelRegister). A zero entry means
	// the level is not touched.
	BytesPerLevel [numLevels]int64

	// Access describes the per-level access pattern, used for bandwidth
	// derating.
	Access [numLevels]hardware.AccessPattern

	// RegistersPerThread is the estimated register usage of one thread.
	RegistersPerThread int

	// RegisterBytesPerThread is the per-thread working set held in
	// registers.
	RegisterBytesPerThread int64

	// ThreadsPerGroup is the thread-group size of the mapping.
	ThreadsPerGroup int

	// SharedBytesPerGroup is the shared-memory allocation of one group.
	SharedBytesPerGroup int64

	// GroupCount is the number of thread-groups launched at the sizing
	// instance.
	GroupCount int
}

// InnermostActiveLevel returns the fastest memory level beyond registers that
// the candidate actually moves bytes through, or -1 if all traffic stays in
// registers.
func (f *Footprint) InnermostActiveLevel() int {
	for level := LevelRegister - 1; level >= LevelGlobal; level-- {
		if f.BytesPerLevel[level] > 0 {
			return level
		}
	}
	return -1
}

// Candidate is one concrete tiling/mapping decision derived from a program
// template. Two candidates are interchangeable only if structurally
// identical (same Key).
type Candidate struct {
	// ID is the candidate's position in enumeration order. Ties in the
	// search objective break toward the lowest ID, keeping output
	// deterministic.
	ID int

	// Template is the name of the template family that produced the
	// candidate.
	Template string

	// SpaceTiles holds, per spatial loop, the [groupTile, threadTile] pair.
	SpaceTiles [][2]int

	// ReduceTiles holds the tile size per reduction loop.
	ReduceTiles []int

	// DType of the tensor elements.
	DType DType

	// Footprint holds the derived resource facts.
	Footprint Footprint
}

// Key returns the structural identity of the candidate. Candidates with equal
// keys are interchangeable.
func (c *Candidate) Key() string {
	var sb strings.Builder
	sb.WriteString(c.Template)
	for _, t := range c.SpaceTiles {
		fmt.Fprintf(&sb, "_s%dx%d", t[0], t[1])
	}
	for _, t := range c.ReduceTiles {
		fmt.Fprintf(&sb, "_r%d", t)
	}
	fmt.Fprintf(&sb, "_%s", c.DType)
	return sb.String()
}

// Describe returns a human-readable one-liner for logs and reports.
func (c *Candidate) Describe() string {
	return fmt.Sprintf("%s: %d threads/group, %d regs/thread, %d B shared/group, %d groups",
		c.Key(), c.Footprint.ThreadsPerGroup, c.Footprint.RegistersPerThread,
		c.Footprint.SharedBytesPerGroup, c.Footprint.GroupCount)
}

// Template is the program-template collaborator: it declares the template's
// shape variables and enumerates the candidate pool for a workload set.
// Implementations must be pure; Enumerate may be called concurrently for
// different sets.
type Template interface {
	// Name identifies the template family, e.g. "dense".
	Name() string

	// ShapeVars declares the symbolic dimensions the template is
	// parameterized over, in binding order.
	ShapeVars() []workload.ShapeVar

	// Enumerate produces the candidate pool for the given instance set.
	// Candidates must be valid across all instances' divisibility and
	// bounds constraints; configurations that are not are discarded before
	// they are returned. Candidate IDs are assigned in enumeration order.
	Enumerate(set *workload.InstanceSet) ([]*Candidate, error)
}
