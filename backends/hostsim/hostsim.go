// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hostsim implements a deterministic, in-process simulated device.
//
// It measures nothing for real: throughput is derived analytically from the
// candidate's footprint, the instance's shape and the simulated accelerator's
// profile, with wave quantization and tile padding included. That makes it
// useful as the default backend for tests and for exercising the whole
// train/infer pipeline without a device. Fault injection knobs simulate
// flaky measurement environments.
//
// It registers itself as the "hostsim" backend; the configuration string is
// the hardware preset to simulate, optionally with a batch suffix:
// "v100,batch=16".
package hostsim

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gomlx/dynsched/backends"
	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/workload"
)

// BackendName as registered in the backends registry.
const BackendName = "hostsim"

func init() {
	backends.Register(BackendName, func(config string) backends.Backend {
		return New(config)
	})
}

// Sim is the simulated device. It implements backends.Backend and
// backends.Oracle.
//
// The fault-injection fields must be set before the first Measure call.
type Sim struct {
	profile *hardware.Profile
	batch   int

	// FailEvery makes every n-th Measure call return an Error status.
	// 0 disables.
	FailEvery int

	// TimeoutFirst makes the first Measure call of every (candidate,
	// instance) pair time out; the retry succeeds. Exercises the
	// retry-once-then-count-as-failed policy.
	TimeoutFirst bool

	mu       sync.Mutex
	calls    int
	pairSeen map[string]int
}

// New creates a simulator from a configuration string: a hardware preset name
// (default "v100"), optionally followed by ",batch=N" (default 16).
func New(config string) *Sim {
	preset := "v100"
	batch := 16
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "batch="):
			if v, err := strconv.Atoi(strings.TrimPrefix(part, "batch=")); err == nil && v > 0 {
				batch = v
			}
		default:
			preset = part
		}
	}
	return &Sim{
		profile:  hardware.MustPreset(preset),
		batch:    batch,
		pairSeen: make(map[string]int),
	}
}

func (s *Sim) Name() string { return BackendName }

func (s *Sim) Description() string {
	return fmt.Sprintf("in-process simulator of %s (batch=%d)", s.profile.Name, s.batch)
}

func (s *Sim) Finalize() {}

// Profile returns the hardware profile being simulated.
func (s *Sim) Profile() *hardware.Profile { return s.profile }

// Measure simulates timing the candidate at the instance's shape.
func (s *Sim) Measure(ctx context.Context, cand *schedule.Candidate, inst workload.Instance) (float64, backends.Status) {
	if err := ctx.Err(); err != nil {
		return 0, backends.Timeout
	}

	s.mu.Lock()
	s.calls++
	fail := s.FailEvery > 0 && s.calls%s.FailEvery == 0
	pairKey := cand.Key() + "@" + inst.Key()
	seen := s.pairSeen[pairKey]
	s.pairSeen[pairKey] = seen + 1
	s.mu.Unlock()

	if s.TimeoutFirst && seen == 0 {
		return 0, backends.Timeout
	}
	if fail {
		return 0, backends.Error
	}

	gflops := s.simulate(cand, inst)
	if gflops <= 0 {
		return 0, backends.Error
	}
	return gflops, backends.Ok
}

// simulate is the analytic device model: roofline throughput at the shared
// level, scaled by occupancy, wave quantization and tile padding at the
// instance's concrete shape.
func (s *Sim) simulate(cand *schedule.Candidate, inst workload.Instance) float64 {
	if len(inst.Values) != 3 || len(cand.SpaceTiles) != 2 {
		return 0
	}
	m := s.batch * inst.Values[0]
	k := inst.Values[1]
	n := inst.Values[2]
	tileM, tileN := cand.SpaceTiles[0][0], cand.SpaceTiles[1][0]
	fp := &cand.Footprint

	occupancy := s.profile.Occupancy(fp.RegistersPerThread, fp.ThreadsPerGroup, fp.SharedBytesPerGroup)
	if occupancy == 0 {
		return 0
	}

	intensity := fp.FLOPs / float64(fp.BytesPerLevel[schedule.LevelShared])
	bandwidth := s.profile.EffectiveBandwidth(hardware.LevelShared, fp.Access[schedule.LevelShared])
	device := s.profile.RooflineGFLOPS(intensity, bandwidth) *
		float64(occupancy) / float64(s.profile.MaxActiveGroupsPerUnit)

	// Launch quantization: the last wave of groups runs as slow as a full
	// one, and padded tiles burn throughput on wasted lanes.
	groups := ceilDiv(m, tileM) * ceilDiv(n, tileN)
	perWave := occupancy * s.profile.ComputeUnits
	waves := ceilDiv(groups, perWave)
	waveEfficiency := float64(groups) / float64(waves*perWave)

	useful := 2 * float64(m) * float64(n) * float64(k)
	padded := 2 * float64(ceilTo(m, tileM)) * float64(ceilTo(n, tileN)) * float64(k)

	return device * waveEfficiency * useful / padded
}

// Lower returns a replayable executable for the candidate.
func (s *Sim) Lower(cand *schedule.Candidate) (backends.Executable, error) {
	if cand.Template != "dense" {
		return nil, errors.Errorf("hostsim can only lower dense candidates, got template %q", cand.Template)
	}
	return &executable{sim: s, cand: cand}, nil
}

type executable struct {
	sim  *Sim
	cand *schedule.Candidate
}

// Replay runs the simulated kernel and returns its throughput and output
// fingerprint in the candidate dtype's bit layout.
func (e *executable) Replay(ctx context.Context, inst workload.Instance) (float64, []uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	gflops := e.sim.simulate(e.cand, inst)
	if gflops <= 0 {
		return 0, nil, errors.Errorf("candidate %s cannot execute instance %s", e.cand.Key(), inst)
	}
	return gflops, e.cand.DType.FromFloat32(fingerprint(e.sim.batch, inst)), nil
}

// Reference simulates the vendor library kernel: a fixed high fraction of
// peak, independent of the searched tiling. Implements backends.Oracle.
func (s *Sim) Reference(ctx context.Context, inst workload.Instance) (float64, []float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if len(inst.Values) != 3 {
		return 0, nil, errors.Errorf("reference kernel expects a (T, I, H) instance, got %s", inst)
	}
	return 0.85 * s.profile.PeakThroughputGFLOPS, fingerprint(s.batch, inst), nil
}

// fingerprint is the simulated kernel output: a small deterministic digest of
// the problem shape. Replay and Reference agree on it, so validation can
// compare buffers.
func fingerprint(batch int, inst workload.Instance) []float32 {
	m := float32(batch * inst.Values[0])
	k := float32(inst.Values[1])
	n := float32(inst.Values[2])
	out := make([]float32, 8)
	for i := range out {
		out[i] = (m + float32(i)) * k / (n + 1)
	}
	return out
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func ceilTo(a, b int) int { return ceilDiv(a, b) * b }
