// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hardware describes accelerator targets for the schedule search.
//
// A Profile is an immutable record of one accelerator variant: its memory
// hierarchy, compute units and the occupancy-relevant limits. The scorer only
// ever asks a Profile two derived questions -- how many thread-groups of a
// given resource usage fit on a compute unit (Occupancy), and how fast a
// memory level effectively is under a given access pattern
// (EffectiveBandwidth). Both are pure functions of the profile and their
// arguments.
package hardware

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MemoryLevel describes one level of the accelerator's memory hierarchy.
// Levels are ordered from slowest/largest (global) to fastest/smallest.
type MemoryLevel struct {
	// Name of the level, e.g. "global", "shared", "register".
	Name string `yaml:"name"`

	// BandwidthGBps is the measured (not theoretical) bandwidth of the level.
	BandwidthGBps float64 `yaml:"bandwidth_gbps"`

	// CapacityBytes of the level. For global memory this is the device
	// memory; for shared memory the per-group capacity; for registers the
	// per-unit register file in bytes.
	CapacityBytes int64 `yaml:"capacity_bytes"`

	// TransactionSizeBytes is the minimum transaction the level serves.
	TransactionSizeBytes int `yaml:"transaction_size_bytes"`
}

// Profile is the immutable description of one accelerator variant.
//
// Construct it once per target (or take one of the presets) and treat it as
// read-only: the search never mutates it, and the same Profile value may be
// shared by concurrent scoring passes.
type Profile struct {
	Name string `yaml:"name"`

	// Levels ordered from slowest/largest (global, index 0) to
	// fastest/smallest (register, last index).
	Levels []MemoryLevel `yaml:"levels"`

	ComputeUnits         int     `yaml:"compute_units"`
	LanesPerUnit         int     `yaml:"lanes_per_unit"`
	PeakThroughputGFLOPS float64 `yaml:"peak_throughput_gflops"`

	// WarpSize is the SIMD group width.
	WarpSize               int `yaml:"warp_size"`
	MaxActiveGroupsPerUnit int `yaml:"max_active_groups_per_unit"`
	MaxThreadsPerUnit      int `yaml:"max_threads_per_unit"`
	MaxRegistersPerUnit    int `yaml:"max_registers_per_unit"`

	// BankCount and BankWidthBytes describe the shared-memory banking, used
	// to model bank conflicts.
	BankCount      int `yaml:"bank_count"`
	BankWidthBytes int `yaml:"bank_width_bytes"`

	// RegisterPressureRatio and GroupThroughputRatio scale how aggressively
	// the filter thresholds are applied to the register-resident and the
	// shared-memory-resident selection lists respectively. They are tuned
	// per accelerator generation; 1.0 is neutral.
	RegisterPressureRatio float64 `yaml:"register_pressure_ratio"`
	GroupThroughputRatio  float64 `yaml:"group_throughput_ratio"`
}

// Well-known level indices for profiles with a full hierarchy. Profiles with
// fewer levels collapse the distinction; see LevelIndex.
const (
	LevelGlobal = iota
	LevelShared
	LevelRegister
)

// Validate checks the profile invariants: at least one memory level, ordered
// slowest to fastest, and all capacities and limits positive.
func (p *Profile) Validate() error {
	if len(p.Levels) == 0 {
		return errors.Errorf("profile %q has no memory levels", p.Name)
	}
	for i, level := range p.Levels {
		if level.BandwidthGBps <= 0 {
			return errors.Errorf("profile %q: level %q has bandwidth %g GB/s, must be > 0",
				p.Name, level.Name, level.BandwidthGBps)
		}
		if level.CapacityBytes <= 0 {
			return errors.Errorf("profile %q: level %q has capacity %d, must be > 0",
				p.Name, level.Name, level.CapacityBytes)
		}
		if i > 0 && level.BandwidthGBps < p.Levels[i-1].BandwidthGBps {
			return errors.Errorf("profile %q: level %q is slower than the previous level %q, "+
				"levels must be ordered global to register", p.Name, level.Name, p.Levels[i-1].Name)
		}
	}
	if p.ComputeUnits <= 0 || p.PeakThroughputGFLOPS <= 0 {
		return errors.Errorf("profile %q: compute units (%d) and peak throughput (%g GFLOPS) must be > 0",
			p.Name, p.ComputeUnits, p.PeakThroughputGFLOPS)
	}
	if p.WarpSize <= 0 || p.MaxActiveGroupsPerUnit <= 0 || p.MaxThreadsPerUnit <= 0 || p.MaxRegistersPerUnit <= 0 {
		return errors.Errorf("profile %q: warp size and per-unit limits must be > 0", p.Name)
	}
	if p.RegisterPressureRatio <= 0 || p.GroupThroughputRatio <= 0 {
		return errors.Errorf("profile %q: filter ratios must be > 0 (got reg=%g, group=%g)",
			p.Name, p.RegisterPressureRatio, p.GroupThroughputRatio)
	}
	return nil
}

// NumLevels returns the number of memory levels of the profile.
func (p *Profile) NumLevels() int { return len(p.Levels) }

// SharedLevel returns the index of the shared-memory level, or -1 if the
// profile has no distinct shared-memory tier (a single-level hierarchy).
func (p *Profile) SharedLevel() int {
	if len(p.Levels) < 3 {
		return -1
	}
	return LevelShared
}

// RegisterLevel returns the index of the register level (always the last).
func (p *Profile) RegisterLevel() int { return len(p.Levels) - 1 }

// SharedCapacityBytes returns the per-group shared-memory capacity, or 0 for
// profiles without a shared-memory tier.
func (p *Profile) SharedCapacityBytes() int64 {
	shared := p.SharedLevel()
	if shared < 0 {
		return 0
	}
	return p.Levels[shared].CapacityBytes
}

// Occupancy estimates how many thread-groups with the given per-thread
// register usage, group size and per-group shared-memory usage fit
// concurrently on one compute unit.
//
// It takes the stricter (minimum) of the register-bound and the memory-bound
// estimate, additionally bounded by MaxThreadsPerUnit and
// MaxActiveGroupsPerUnit. The result is at least 0; a candidate whose single
// group already exceeds a per-unit limit gets occupancy 0 and should be
// rejected.
func (p *Profile) Occupancy(regsPerThread, threadsPerGroup int, sharedPerGroup int64) int {
	if regsPerThread <= 0 {
		regsPerThread = 1
	}
	if threadsPerGroup <= 0 {
		return 0
	}
	groups := p.MaxActiveGroupsPerUnit

	if regBound := p.MaxRegistersPerUnit / (regsPerThread * threadsPerGroup); regBound < groups {
		groups = regBound
	}
	if threadBound := p.MaxThreadsPerUnit / threadsPerGroup; threadBound < groups {
		groups = threadBound
	}
	if sharedPerGroup > 0 {
		if capacity := p.SharedCapacityBytes(); capacity > 0 {
			if memBound := int(capacity / sharedPerGroup); memBound < groups {
				groups = memBound
			}
		}
	}
	if groups < 0 {
		groups = 0
	}
	return groups
}

// AccessPattern describes how a schedule touches one memory level: the byte
// stride between consecutive lanes of a warp and how many contiguous bytes
// each lane reads per access.
type AccessPattern struct {
	// StrideBytes between consecutive lanes. 0 or ElemBytes means fully
	// coalesced / conflict-free.
	StrideBytes int

	// ElemBytes read per lane per access.
	ElemBytes int
}

// Unit returns the conflict-free unit-stride pattern for elements of the
// given byte width.
func Unit(elemBytes int) AccessPattern {
	return AccessPattern{StrideBytes: elemBytes, ElemBytes: elemBytes}
}

// EffectiveBandwidth derates the nominal bandwidth of the given memory level
// for the access pattern.
//
// For the shared-memory level the derating models bank conflicts: with a
// stride of s banks, a warp touches BankCount/gcd(s, BankCount) distinct
// banks, and accesses serialize by the conflict degree.
//
// For other levels the derating models partially used transactions: if each
// lane only consumes ElemBytes out of a TransactionSizeBytes transaction that
// cannot be coalesced with its neighbors, only that fraction of the moved
// bytes is useful.
func (p *Profile) EffectiveBandwidth(level int, ap AccessPattern) float64 {
	if level < 0 || level >= len(p.Levels) {
		return 0
	}
	nominal := p.Levels[level].BandwidthGBps
	if ap.ElemBytes <= 0 {
		return nominal
	}

	if level == p.SharedLevel() && p.BankCount > 0 && p.BankWidthBytes > 0 {
		strideBanks := ap.StrideBytes / p.BankWidthBytes
		if strideBanks <= 1 {
			return nominal
		}
		distinct := p.BankCount / gcd(strideBanks, p.BankCount)
		lanes := p.WarpSize
		if lanes > p.BankCount {
			lanes = p.BankCount
		}
		conflictDegree := float64(lanes) / float64(distinct)
		if conflictDegree < 1 {
			conflictDegree = 1
		}
		return nominal / conflictDegree
	}

	transaction := p.Levels[level].TransactionSizeBytes
	if transaction <= 0 || ap.StrideBytes <= ap.ElemBytes {
		// Unit stride coalesces into full transactions.
		return nominal
	}
	perLane := ap.StrideBytes
	if perLane > transaction {
		perLane = transaction
	}
	efficiency := float64(ap.ElemBytes) / float64(perLane)
	if efficiency > 1 {
		efficiency = 1
	}
	return nominal * efficiency
}

// String implements fmt.Stringer with a short human-readable summary.
func (p *Profile) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d units x %d lanes, %s peak",
		p.Name, p.ComputeUnits, p.LanesPerUnit, humanize.SIWithDigits(p.PeakThroughputGFLOPS*1e9, 1, "FLOP/s"))
	for _, level := range p.Levels {
		fmt.Fprintf(&sb, ", %s %s @ %.0f GB/s", level.Name, humanize.IBytes(uint64(level.CapacityBytes)), level.BandwidthGBps)
	}
	return sb.String()
}

// LoadProfile reads a fully specified Profile from a YAML file and validates
// it. It is the escape hatch for accelerators without a built-in preset.
func LoadProfile(path string) (*Profile, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read hardware profile from %q", path)
	}
	profile := &Profile{}
	if err := yaml.Unmarshal(contents, profile); err != nil {
		return nil, errors.Wrapf(err, "failed to parse hardware profile in %q", path)
	}
	if profile.RegisterPressureRatio == 0 {
		profile.RegisterPressureRatio = 1
	}
	if profile.GroupThroughputRatio == 0 {
		profile.GroupThroughputRatio = 1
	}
	if err := profile.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "hardware profile in %q", path)
	}
	return profile, nil
}

// RooflineGFLOPS is the classical roofline bound: the lesser of the peak
// compute throughput and what the given bandwidth sustains at the given
// compute intensity (FLOPs per byte).
func (p *Profile) RooflineGFLOPS(computeIntensity, bandwidthGBps float64) float64 {
	if math.IsInf(computeIntensity, 1) {
		return p.PeakThroughputGFLOPS
	}
	bound := computeIntensity * bandwidthGBps
	if bound > p.PeakThroughputGFLOPS {
		return p.PeakThroughputGFLOPS
	}
	return bound
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
