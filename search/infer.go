// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"math"

	"k8s.io/klog/v2"

	"github.com/gomlx/dynsched/backends"
	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/workload"
	"github.com/pkg/errors"
)

// Replay is the outcome of inferring one workload instance: the persisted
// candidate selected for it and the throughput achieved replaying it.
type Replay struct {
	Instance  workload.Instance
	Candidate *schedule.Candidate

	// GFLOPS achieved by the replayed candidate.
	GFLOPS float64

	// ReferenceGFLOPS is the oracle kernel's throughput, 0 when no oracle
	// was configured.
	ReferenceGFLOPS float64

	// Validated is true when the replayed output matched the oracle's
	// within tolerance.
	Validated bool
}

// Infer loads a persisted search result from artifactPath and replays it for
// each requested instance. See InferResult.
func Infer(ctx context.Context, template schedule.Template, set *workload.InstanceSet,
	artifactPath string, backend backends.Backend, opts ...Option) ([]Replay, error) {
	result, err := Load(artifactPath)
	if err != nil {
		return nil, err
	}
	return InferResult(ctx, template, set, result, backend, opts...)
}

// InferResult replays an already loaded search result: for each requested
// instance it selects the persisted candidate covering that instance (exact
// shape match first, nearest covering bucket otherwise), lowers it through
// the backend and replays it. With WithOracle, every replayed output is
// cross-validated against the reference kernel.
//
// It fails with NoCoverageError if any requested instance is covered by no
// persisted candidate: inference never substitutes a non-covering candidate.
func InferResult(ctx context.Context, template schedule.Template, set *workload.InstanceSet,
	result *Result, backend backends.Backend, opts ...Option) ([]Replay, error) {
	cfg := newConfig(opts)
	if result.Template != template.Name() {
		return nil, errors.Errorf("persisted result is for template %q, not %q", result.Template, template.Name())
	}
	if err := set.Validate(template.ShapeVars()); err != nil {
		return nil, err
	}
	state := StateLoaded
	klog.V(1).Infof("infer %s: %d entries loaded (run %s), state %s",
		result.Template, len(result.Entries), result.RunID, state)

	state = StateReplaying
	executables := make(map[string]backends.Executable) // candidate key -> lowered executable
	replays := make([]Replay, 0, set.Len())
	for _, inst := range set.Instances() {
		entry := result.lookup(inst)
		if entry == nil {
			return nil, &NoCoverageError{Template: result.Template, Instance: inst}
		}
		exec, found := executables[entry.Candidate.Key()]
		if !found {
			var err error
			exec, err = backend.Lower(entry.Candidate)
			if err != nil {
				return nil, errors.WithMessagef(err, "failed to lower candidate %s", entry.Candidate.Key())
			}
			executables[entry.Candidate.Key()] = exec
		}
		gflops, out, err := exec.Replay(ctx, inst)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to replay candidate %s on instance %s",
				entry.Candidate.Key(), inst)
		}
		replay := Replay{Instance: inst, Candidate: entry.Candidate, GFLOPS: gflops}

		if cfg.oracle != nil {
			refGFLOPS, refOut, err := cfg.oracle.Reference(ctx, inst)
			if err != nil {
				return nil, errors.WithMessagef(err, "reference kernel failed on instance %s", inst)
			}
			replay.ReferenceGFLOPS = refGFLOPS
			if err := compareOutputs(entry.Candidate.DType, out, refOut, cfg.tolerance); err != nil {
				return nil, errors.WithMessagef(err, "validation failed for candidate %s on instance %s",
					entry.Candidate.Key(), inst)
			}
			replay.Validated = true
			klog.V(1).Infof("infer %s: instance %s: %.1f GFLOPS (reference %.1f)",
				result.Template, inst, gflops, refGFLOPS)
		}
		replays = append(replays, replay)
	}

	state = StateValidated
	klog.V(1).Infof("infer %s: replayed %d instances, state %s", result.Template, len(replays), state)
	return replays, nil
}

// compareOutputs checks the replayed output bits against the reference
// buffer, elementwise within relative tolerance (after converting the bits
// back through the candidate dtype, so f16 rounding is not flagged).
func compareOutputs(dtype schedule.DType, out []uint32, ref []float32, tolerance float64) error {
	if len(out) != len(ref) {
		return errors.Errorf("output has %d elements, reference has %d", len(out), len(ref))
	}
	values := dtype.ToFloat32(out)
	want := dtype.ToFloat32(dtype.FromFloat32(ref)) // round the reference through the dtype too
	for i := range values {
		diff := math.Abs(float64(values[i] - want[i]))
		scale := math.Max(math.Abs(float64(want[i])), 1)
		if diff/scale > tolerance {
			return errors.Errorf("element %d differs: got %g, reference %g (tolerance %g)",
				i, values[i], want[i], tolerance)
		}
	}
	return nil
}
