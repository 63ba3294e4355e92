// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Built-in accelerator presets. Bandwidths are measured numbers, not
// datasheet peaks; the register-file capacity is the per-unit file expressed
// in bytes (32-bit registers).
//
// The presets map is built once at package initialization and never mutated
// afterwards; Preset hands out shared pointers, so callers must treat them as
// read-only.
var presets = map[string]*Profile{
	"v100": {
		Name: "v100",
		Levels: []MemoryLevel{
			{Name: "global", BandwidthGBps: 780, CapacityBytes: 32 << 30, TransactionSizeBytes: 32},
			{Name: "shared", BandwidthGBps: 12080, CapacityBytes: 96 << 10, TransactionSizeBytes: 128},
			{Name: "register", BandwidthGBps: 60000, CapacityBytes: 256 << 10},
		},
		ComputeUnits:           80,
		LanesPerUnit:           64,
		PeakThroughputGFLOPS:   14130,
		WarpSize:               32,
		MaxActiveGroupsPerUnit: 32,
		MaxThreadsPerUnit:      2048,
		MaxRegistersPerUnit:    65536,
		BankCount:              32,
		BankWidthBytes:         4,
		RegisterPressureRatio:  1.0,
		GroupThroughputRatio:   1.0,
	},
	"rtx3090": {
		Name: "rtx3090",
		Levels: []MemoryLevel{
			{Name: "global", BandwidthGBps: 782, CapacityBytes: 24 << 30, TransactionSizeBytes: 32},
			{Name: "shared", BandwidthGBps: 18247, CapacityBytes: 100 << 10, TransactionSizeBytes: 128},
			{Name: "register", BandwidthGBps: 80000, CapacityBytes: 256 << 10},
		},
		ComputeUnits:           82,
		LanesPerUnit:           128,
		PeakThroughputGFLOPS:   28374,
		WarpSize:               32,
		MaxActiveGroupsPerUnit: 32,
		MaxThreadsPerUnit:      1536,
		MaxRegistersPerUnit:    65536,
		BankCount:              32,
		BankWidthBytes:         4,
		RegisterPressureRatio:  1.0,
		GroupThroughputRatio:   1.0,
	},
	"k80": {
		Name: "k80",
		Levels: []MemoryLevel{
			{Name: "global", BandwidthGBps: 162, CapacityBytes: 12 << 30, TransactionSizeBytes: 32},
			{Name: "shared", BandwidthGBps: 1962, CapacityBytes: 112 << 10, TransactionSizeBytes: 256},
			{Name: "register", BandwidthGBps: 12000, CapacityBytes: 256 << 10},
		},
		ComputeUnits:           13,
		LanesPerUnit:           192,
		PeakThroughputGFLOPS:   1952,
		WarpSize:               32,
		MaxActiveGroupsPerUnit: 32,
		MaxThreadsPerUnit:      1536,
		MaxRegistersPerUnit:    65536,
		BankCount:              32,
		BankWidthBytes:         8,
		RegisterPressureRatio:  1.0,
		GroupThroughputRatio:   1.0,
	},
}

// Preset returns the built-in profile with the given name. The returned
// Profile is shared and must be treated as read-only.
func Preset(name string) (*Profile, error) {
	profile, found := presets[name]
	if !found {
		return nil, errors.Errorf("unknown hardware preset %q, available presets: %v", name, PresetNames())
	}
	return profile, nil
}

// MustPreset is like Preset but panics (throws) on unknown names.
// Meant for tests and top-level wiring.
func MustPreset(name string) *Profile {
	profile, err := Preset(name)
	if err != nil {
		exceptions.Panicf("hardware.MustPreset: %v", err)
	}
	return profile
}

// PresetNames lists the built-in preset names in sorted order.
func PresetNames() []string {
	names := maps.Keys(presets)
	slices.Sort(names)
	return names
}
