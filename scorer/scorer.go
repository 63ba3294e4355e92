// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scorer separates plausible schedule candidates from the much larger
// enumerated pool before any real measurement, and ranks the survivors.
//
// The score is an analytical roofline estimate: arithmetic intensity at the
// innermost memory level the candidate actually uses, times that level's
// effective (conflict- and alignment-derated) bandwidth, capped by peak
// compute, and scaled down by the candidate's occupancy. Two independent
// selection lists are maintained per pass -- candidates whose working set
// fits shared memory, and candidates whose reuse fits entirely in registers
// -- each with its own running-median acceptance threshold.
package scorer

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/schedule"
)

// maxRegistersPerThread is the ISA launch-bound limit on per-thread register
// allocation.
const maxRegistersPerThread = 255

// Scored is a candidate annotated with its analytical score and the filter
// decision.
type Scored struct {
	Candidate *schedule.Candidate

	// ComputeIntensity is FLOPs per byte moved through the innermost active
	// memory level beyond registers. +Inf when no bytes move beyond
	// registers.
	ComputeIntensity float64

	// PredictedGFLOPS is the occupancy-scaled roofline estimate.
	PredictedGFLOPS float64

	// Occupancy is the estimated concurrent groups per compute unit.
	Occupancy int

	// SharedResident and RegisterResident mark selection-list membership. A
	// candidate may be in neither, one, or both.
	SharedResident   bool
	RegisterResident bool

	// Passes marks the candidate as worth measuring.
	Passes bool
}

// Result of one scoring pass.
type Result struct {
	// All candidates in enumeration order, for diagnostics.
	All []Scored

	// Passed holds the candidates with Passes == true, ranked best first:
	// by PredictedGFLOPS, ties broken by higher ComputeIntensity (better
	// theoretical reuse at the same measurement cost), then by enumeration
	// order.
	Passed []Scored
}

// Score runs one scoring pass of the candidate pool against the profile.
//
// Scoring each candidate is pure and runs in parallel; the filtering pass
// that maintains the running medians is sequential in enumeration order, so
// the outcome is deterministic for a deterministic pool.
func Score(profile *hardware.Profile, candidates []*schedule.Candidate) *Result {
	result := &Result{All: make([]Scored, len(candidates))}

	var group errgroup.Group
	group.SetLimit(runtime.NumCPU())
	for i, cand := range candidates {
		i, cand := i, cand
		group.Go(func() error {
			result.All[i] = scoreOne(profile, cand)
			return nil
		})
	}
	_ = group.Wait() // scoreOne never fails.

	filter(profile, result.All)

	for _, s := range result.All {
		if s.Passes {
			result.Passed = append(result.Passed, s)
		}
	}
	sort.SliceStable(result.Passed, func(i, j int) bool {
		a, b := result.Passed[i], result.Passed[j]
		// Zero-traffic candidates rank first.
		aInf, bInf := math.IsInf(a.ComputeIntensity, 1), math.IsInf(b.ComputeIntensity, 1)
		if aInf != bInf {
			return aInf
		}
		if a.PredictedGFLOPS != b.PredictedGFLOPS {
			return a.PredictedGFLOPS > b.PredictedGFLOPS
		}
		if a.ComputeIntensity != b.ComputeIntensity {
			return a.ComputeIntensity > b.ComputeIntensity
		}
		return a.Candidate.ID < b.Candidate.ID
	})
	klog.V(1).Infof("scorer: %d of %d candidates pass on %s", len(result.Passed), len(candidates), profile.Name)
	return result
}

// scoreOne computes the analytical score of one candidate. Pure.
func scoreOne(profile *hardware.Profile, cand *schedule.Candidate) Scored {
	fp := &cand.Footprint
	s := Scored{Candidate: cand}

	s.Occupancy = profile.Occupancy(fp.RegistersPerThread, fp.ThreadsPerGroup, fp.SharedBytesPerGroup)
	occupancyFactor := float64(s.Occupancy) / float64(profile.MaxActiveGroupsPerUnit)

	level := fp.InnermostActiveLevel()
	if level < 0 {
		// Entirely register-resident, no memory traffic beyond registers.
		s.ComputeIntensity = math.Inf(1)
		s.PredictedGFLOPS = profile.PeakThroughputGFLOPS * occupancyFactor
	} else {
		s.ComputeIntensity = fp.FLOPs / float64(fp.BytesPerLevel[level])
		hwLevel := profileLevel(profile, level)
		bandwidth := profile.EffectiveBandwidth(hwLevel, fp.Access[level])
		s.PredictedGFLOPS = profile.RooflineGFLOPS(s.ComputeIntensity, bandwidth) * occupancyFactor
	}

	registerCapacity := profile.Levels[profile.RegisterLevel()].CapacityBytes
	s.RegisterResident = fp.RegistersPerThread <= maxRegistersPerThread &&
		fp.RegisterBytesPerThread*int64(fp.ThreadsPerGroup) <= registerCapacity
	if shared := profile.SharedCapacityBytes(); shared > 0 {
		s.SharedResident = fp.SharedBytesPerGroup > 0 && fp.SharedBytesPerGroup <= shared
	} else {
		// Single memory level: both selection lists collapse into one.
		s.SharedResident = s.RegisterResident
	}
	return s
}

// profileLevel maps a footprint level slot onto the profile's hierarchy.
// Profiles without a distinct shared tier fold shared traffic into global.
func profileLevel(profile *hardware.Profile, level int) int {
	if level == schedule.LevelShared {
		if shared := profile.SharedLevel(); shared >= 0 {
			return shared
		}
		return hardware.LevelGlobal
	}
	return hardware.LevelGlobal
}

// filter applies the running-median acceptance policy in enumeration order.
//
// A candidate passes when its predicted throughput exceeds the running median
// of the already-scored members of a selection list it belongs to, scaled by
// the profile's ratio for that list. Candidates in no list are scored but
// never promoted. Zero-traffic candidates (infinite intensity) always pass.
func filter(profile *hardware.Profile, scored []Scored) {
	var sharedSeen, registerSeen []float64
	for i := range scored {
		s := &scored[i]
		if math.IsInf(s.ComputeIntensity, 1) {
			s.Passes = true
			continue
		}
		if s.SharedResident {
			if exceedsMedian(s.PredictedGFLOPS, sharedSeen, profile.GroupThroughputRatio) {
				s.Passes = true
			}
			sharedSeen = append(sharedSeen, s.PredictedGFLOPS)
		}
		if s.RegisterResident {
			if !s.Passes && exceedsMedian(s.PredictedGFLOPS, registerSeen, profile.RegisterPressureRatio) {
				s.Passes = true
			}
			registerSeen = append(registerSeen, s.PredictedGFLOPS)
		}
	}
}

// exceedsMedian reports whether value beats the median of seen scaled by
// ratio. An empty list accepts everything: the first member of a list always
// passes.
func exceedsMedian(value float64, seen []float64, ratio float64) bool {
	if len(seen) == 0 {
		return true
	}
	sorted := make([]float64, len(seen))
	copy(sorted, seen)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return value > median*ratio
}
