// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scorer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/schedule"
)

// testProfile returns a three-level profile tuned for exact arithmetic in the
// tests: no roofline capping, occupancy limited only by threads per unit.
func testProfile() *hardware.Profile {
	return &hardware.Profile{
		Name: "test",
		Levels: []hardware.MemoryLevel{
			{Name: "global", BandwidthGBps: 100, CapacityBytes: 16 << 30, TransactionSizeBytes: 32},
			{Name: "shared", BandwidthGBps: 1000, CapacityBytes: 49152},
			{Name: "register", BandwidthGBps: 10000, CapacityBytes: 262144},
		},
		ComputeUnits:           4,
		LanesPerUnit:           64,
		PeakThroughputGFLOPS:   100000,
		WarpSize:               32,
		MaxActiveGroupsPerUnit: 32,
		MaxThreadsPerUnit:      2048,
		MaxRegistersPerUnit:    10000000,
		BankCount:              32,
		BankWidthBytes:         4,
		RegisterPressureRatio:  1,
		GroupThroughputRatio:   1,
	}
}

// globalCandidate builds a candidate that moves flops/intensity bytes through
// global memory at full occupancy (64 threads, tiny register and shared use).
func globalCandidate(id int, intensity float64) *schedule.Candidate {
	c := &schedule.Candidate{ID: id, Template: "dense"}
	c.Footprint = schedule.Footprint{
		FLOPs:                  intensity * 1000,
		RegistersPerThread:     16,
		RegisterBytesPerThread: 64,
		ThreadsPerGroup:        64,
		SharedBytesPerGroup:    1024,
		GroupCount:             128,
	}
	c.Footprint.BytesPerLevel[schedule.LevelGlobal] = 1000
	return c
}

func TestScoreRoofline(t *testing.T) {
	profile := testProfile()
	result := Score(profile, []*schedule.Candidate{globalCandidate(0, 2)})
	require.Len(t, result.All, 1)

	s := result.All[0]
	assert.Equal(t, 32, s.Occupancy, "64 threads/group, thread-bound at 2048/unit")
	assert.InDelta(t, 2.0, s.ComputeIntensity, 1e-12)
	// 2 FLOP/B * 100 GB/s at full occupancy, far below peak.
	assert.InDelta(t, 200.0, s.PredictedGFLOPS, 1e-9)
	assert.True(t, s.SharedResident)
	assert.True(t, s.RegisterResident)
	assert.True(t, s.Passes, "sole candidate always passes")
}

func TestScoreOccupancyScalesPrediction(t *testing.T) {
	profile := testProfile()

	full := globalCandidate(0, 2)
	half := globalCandidate(1, 2)
	half.Footprint.ThreadsPerGroup = 128 // thread bound 2048/128 = 16 of 32

	result := Score(profile, []*schedule.Candidate{full, half})
	require.Len(t, result.All, 2)
	assert.Equal(t, 32, result.All[0].Occupancy)
	assert.Equal(t, 16, result.All[1].Occupancy)
	assert.InDelta(t, result.All[0].PredictedGFLOPS/2, result.All[1].PredictedGFLOPS, 1e-9)
}

func TestScoreZeroOccupancy(t *testing.T) {
	profile := testProfile()
	cand := globalCandidate(0, 2)
	cand.Footprint.ThreadsPerGroup = 4096 // a single group exceeds the unit

	result := Score(profile, []*schedule.Candidate{cand})
	assert.Equal(t, 0, result.All[0].Occupancy)
	assert.Zero(t, result.All[0].PredictedGFLOPS)
}

func TestScoreZeroTrafficRanksFirst(t *testing.T) {
	profile := testProfile()

	fast := globalCandidate(0, 10000) // capped at peak, full occupancy
	pure := &schedule.Candidate{ID: 1, Template: "dense"}
	pure.Footprint = schedule.Footprint{
		FLOPs:                  1000,
		RegistersPerThread:     16,
		RegisterBytesPerThread: 64,
		ThreadsPerGroup:        2048, // occupancy 1 of 32
		GroupCount:             4,
	}

	result := Score(profile, []*schedule.Candidate{fast, pure})
	require.Len(t, result.Passed, 2)

	first := result.Passed[0]
	assert.Equal(t, 1, first.Candidate.ID)
	assert.True(t, math.IsInf(first.ComputeIntensity, 1))
	assert.True(t, first.Passes)
	assert.Greater(t, result.Passed[1].PredictedGFLOPS, first.PredictedGFLOPS,
		"ranks first despite the lower prediction")
}

func TestFilterRunningMedian(t *testing.T) {
	// Three shared-memory-resident candidates, excluded from the register
	// list by their register count: pass/fail tracks the running median of
	// the predictions seen so far.
	pool := func() []*schedule.Candidate {
		a := globalCandidate(0, 1.0) // 100 GFLOPS
		b := globalCandidate(1, 2.0) // 200 GFLOPS
		c := globalCandidate(2, 0.5) // 50 GFLOPS
		for _, cand := range []*schedule.Candidate{a, b, c} {
			cand.Footprint.RegistersPerThread = 300 // over the launch bound
		}
		return []*schedule.Candidate{a, b, c}
	}

	profile := testProfile()
	result := Score(profile, pool())
	require.Len(t, result.All, 3)
	assert.True(t, result.All[0].Passes, "first member of an empty list")
	assert.True(t, result.All[1].Passes, "200 beats the median 100")
	assert.False(t, result.All[2].Passes, "50 is below the median 100")

	// A permissive ratio lowers the bar.
	profile.GroupThroughputRatio = 0.4
	result = Score(profile, pool())
	assert.True(t, result.All[2].Passes, "50 beats 100*0.4")
}

func TestRegisterLaunchBound(t *testing.T) {
	profile := testProfile()
	cand := globalCandidate(0, 2)
	cand.Footprint.RegistersPerThread = 300
	cand.Footprint.SharedBytesPerGroup = 0

	result := Score(profile, []*schedule.Candidate{cand})
	s := result.All[0]
	assert.False(t, s.RegisterResident)
	assert.False(t, s.SharedResident)
	assert.False(t, s.Passes, "member of no selection list")
}

func TestSingleLevelProfile(t *testing.T) {
	profile := &hardware.Profile{
		Name: "flat",
		Levels: []hardware.MemoryLevel{
			{Name: "memory", BandwidthGBps: 50, CapacityBytes: 8 << 30},
		},
		ComputeUnits:           8,
		PeakThroughputGFLOPS:   500,
		WarpSize:               32,
		MaxActiveGroupsPerUnit: 16,
		MaxThreadsPerUnit:      2048,
		MaxRegistersPerUnit:    65536,
		RegisterPressureRatio:  1,
		GroupThroughputRatio:   1,
	}
	require.NoError(t, profile.Validate())

	cand := globalCandidate(0, 2)
	result := Score(profile, []*schedule.Candidate{cand})
	s := result.All[0]
	assert.Equal(t, s.RegisterResident, s.SharedResident,
		"selection lists collapse without a shared tier")
	assert.True(t, s.Passes)
}

func TestHigherPeakNeverLowersPrediction(t *testing.T) {
	slow := testProfile()
	fast := testProfile()
	fast.PeakThroughputGFLOPS *= 4

	for _, intensity := range []float64{0.5, 2, 100, 5000} {
		pool := []*schedule.Candidate{globalCandidate(0, intensity)}
		slowScore := Score(slow, pool).All[0].PredictedGFLOPS
		fastScore := Score(fast, pool).All[0].PredictedGFLOPS
		assert.GreaterOrEqual(t, fastScore, slowScore, "intensity %g", intensity)
	}
}

func TestScoreDeterministic(t *testing.T) {
	profile := testProfile()
	pool := make([]*schedule.Candidate, 0, 64)
	for i := 0; i < 64; i++ {
		pool = append(pool, globalCandidate(i, float64(i%7)+0.5))
	}

	first := Score(profile, pool)
	second := Score(profile, pool)
	require.Equal(t, len(first.Passed), len(second.Passed))
	for i := range first.Passed {
		assert.Equal(t, first.Passed[i].Candidate.ID, second.Passed[i].Candidate.ID)
		assert.Equal(t, first.Passed[i].PredictedGFLOPS, second.Passed[i].PredictedGFLOPS)
	}
	// Best first.
	for i := 1; i < len(first.Passed); i++ {
		assert.GreaterOrEqual(t, first.Passed[i-1].PredictedGFLOPS, first.Passed[i].PredictedGFLOPS)
	}
}
