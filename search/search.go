// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package search drives the schedule search: training explores enumerated
// candidates against a weighted workload instance set and persists the best
// schedule per shape, inference loads a persisted result and replays it for
// new instances.
//
// Enumeration and scoring are pure computation; measuring is the only step
// that touches the device, and measurements are serialized per backend. A
// training run with deterministic inputs (same enumeration order, same
// measurement function) produces an identical result.
package search

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gomlx/dynsched/backends"
	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/scorer"
	"github.com/gomlx/dynsched/workload"
	"github.com/pkg/errors"
)

// Option configures Train or Infer.
type Option func(*config)

type config struct {
	failureRateThreshold float64
	extraProfiles        []*hardware.Profile
	artifactPath         string
	progress             bool
	oracle               backends.Oracle
	tolerance            float64
}

func newConfig(opts []Option) *config {
	cfg := &config{
		failureRateThreshold: 0.3,
		tolerance:            1e-3,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithFailureRateThreshold sets the fraction of (candidate, instance)
// measurement failures tolerated before the whole training run fails.
// Default is 0.3.
func WithFailureRateThreshold(threshold float64) Option {
	return func(cfg *config) { cfg.failureRateThreshold = threshold }
}

// WithExtraProfiles requests scoring passes against additional hardware
// profiles; a candidate surviving the filter on any requested profile is
// measured.
func WithExtraProfiles(profiles ...*hardware.Profile) Option {
	return func(cfg *config) { cfg.extraProfiles = append(cfg.extraProfiles, profiles...) }
}

// WithArtifactPath makes Train persist the result to the given path on
// success.
func WithArtifactPath(path string) Option {
	return func(cfg *config) { cfg.artifactPath = path }
}

// WithProgressBar renders a progress bar during the measuring phase.
func WithProgressBar() Option {
	return func(cfg *config) { cfg.progress = true }
}

// WithOracle enables cross-validation of replayed outputs against the
// reference kernel during Infer. The oracle is never consulted during
// training.
func WithOracle(oracle backends.Oracle) Option {
	return func(cfg *config) { cfg.oracle = oracle }
}

// WithValidationTolerance sets the relative element tolerance used when
// comparing replayed outputs with the oracle's. Default 1e-3.
func WithValidationTolerance(tolerance float64) Option {
	return func(cfg *config) { cfg.tolerance = tolerance }
}

// Train searches for the best schedule candidates of the template over the
// weighted workload instance set, against the given hardware profile and
// using the backend for measurements.
//
// It runs the full train protocol: enumerate, score and filter, measure the
// survivors on every instance, aggregate the weighted objective, and -- if
// WithArtifactPath was given -- persist the result. Individual measurement
// failures are tolerated (the pair is scored as -Inf) up to the configured
// failure-rate threshold.
func Train(ctx context.Context, template schedule.Template, set *workload.InstanceSet,
	profile *hardware.Profile, backend backends.Backend, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	vars := template.ShapeVars()
	if err := set.Validate(vars); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	state := StateIdle
	fail := func(err error) (*Result, error) {
		failedFrom := state
		state = StateFailed
		return nil, errors.WithMessagef(err, "training %s on %s failed in state %s",
			template.Name(), profile.Name, failedFrom)
	}

	// Enumerating.
	state = StateEnumerating
	klog.V(1).Infof("train %s: enumerating candidates for %d instances", template.Name(), set.Len())
	pool, err := template.Enumerate(set)
	if err != nil {
		return fail(err)
	}
	if len(pool) == 0 {
		return fail(ErrEnumerationEmpty)
	}

	// Scoring, once per distinct requested profile; survivors are the union.
	state = StateScoring
	profiles := append([]*hardware.Profile{profile}, cfg.extraProfiles...)
	results := make([]*scorer.Result, len(profiles))
	var group errgroup.Group
	for i, p := range profiles {
		i, p := i, p
		group.Go(func() error {
			results[i] = scorer.Score(p, pool)
			return nil
		})
	}
	_ = group.Wait()
	survivors := mergeSurvivors(results)
	if len(survivors) == 0 {
		return fail(errors.WithMessage(ErrEnumerationEmpty, "no candidate passed the resource filter"))
	}
	klog.Infof("train %s: measuring %d of %d candidates on %s",
		template.Name(), len(survivors), len(pool), backend.Name())

	// Measuring: the only step with device interaction. Measurements are
	// serialized -- the backend is one exclusive device.
	state = StateMeasuring
	throughput, failed, err := measureAll(ctx, cfg, backend, survivors, set)
	if err != nil {
		return fail(err)
	}
	total := len(survivors) * set.Len()
	rate := float64(failed) / float64(total)
	if rate > cfg.failureRateThreshold {
		return fail(&ExcessiveFailureRateError{Failed: failed, Total: total, Threshold: cfg.failureRateThreshold})
	}
	if rate >= cfg.failureRateThreshold/2 && failed > 0 {
		klog.Warningf("train %s: measurement failure rate %.0f%% is approaching the %.0f%% threshold, "+
			"results are partial", template.Name(), 100*rate, 100*cfg.failureRateThreshold)
	}

	// Aggregating.
	state = StateAggregating
	result := aggregate(template, vars, profile, set, survivors, throughput)

	if cfg.artifactPath != "" {
		if err := result.Save(cfg.artifactPath); err != nil {
			return fail(err)
		}
		klog.Infof("train %s: persisted %d entries to %s (objective %.1f GFLOPS)",
			template.Name(), len(result.Entries), cfg.artifactPath, result.Objective)
	}
	state = StatePersisted
	klog.V(1).Infof("train %s: done, state %s", template.Name(), state)
	return result, nil
}

// mergeSurvivors unions the passing candidates of the per-profile scoring
// passes, in enumeration order.
func mergeSurvivors(results []*scorer.Result) []*schedule.Candidate {
	passed := make(map[int]*schedule.Candidate)
	maxID := -1
	for _, result := range results {
		for _, s := range result.Passed {
			passed[s.Candidate.ID] = s.Candidate
			if s.Candidate.ID > maxID {
				maxID = s.Candidate.ID
			}
		}
	}
	survivors := make([]*schedule.Candidate, 0, len(passed))
	for id := 0; id <= maxID; id++ {
		if cand, found := passed[id]; found {
			survivors = append(survivors, cand)
		}
	}
	return survivors
}

// measureAll obtains the throughput of every (survivor, instance) pair.
// A timed-out measurement is retried once before the pair counts as failed;
// failed pairs are recorded as -Inf and do not abort the run.
func measureAll(ctx context.Context, cfg *config, backend backends.Backend,
	survivors []*schedule.Candidate, set *workload.InstanceSet) (throughput [][]float64, failed int, err error) {
	var bar *progressbar.ProgressBar
	if cfg.progress {
		bar = progressbar.Default(int64(len(survivors)*set.Len()), "measuring")
	}
	throughput = make([][]float64, len(survivors))
	for ci, cand := range survivors {
		throughput[ci] = make([]float64, set.Len())
		for ii, inst := range set.Instances() {
			if err := ctx.Err(); err != nil {
				return nil, 0, errors.Wrap(err, "measurement interrupted")
			}
			gflops, ok := measureOne(ctx, backend, cand, inst)
			if !ok {
				gflops = math.Inf(-1)
				failed++
				klog.V(1).Infof("measurement failed: candidate %s, instance %s", cand.Key(), inst)
			}
			throughput[ci][ii] = gflops
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
	return throughput, failed, nil
}

// measureOne measures a single pair, retrying once on timeout. Measurements
// are idempotent, so the retry is safe.
func measureOne(ctx context.Context, backend backends.Backend,
	cand *schedule.Candidate, inst workload.Instance) (float64, bool) {
	gflops, status := backend.Measure(ctx, cand, inst)
	if status == backends.Timeout {
		gflops, status = backend.Measure(ctx, cand, inst)
	}
	return gflops, status == backends.Ok
}

// aggregate computes the weighted objective, picks the best candidate per
// instance (ties break toward the earliest enumerated candidate) and builds
// the persisted result.
func aggregate(template schedule.Template, vars []workload.ShapeVar, profile *hardware.Profile,
	set *workload.InstanceSet, survivors []*schedule.Candidate, throughput [][]float64) *Result {
	weights := set.NormalizedWeights()

	// Best candidate per instance: strict improvement only, so the earliest
	// enumerated candidate wins ties.
	bestCandidate := make([]int, set.Len()) // index into survivors, -1 if none succeeded
	for ii := range bestCandidate {
		bestCandidate[ii] = -1
		best := math.Inf(-1)
		for ci := range survivors {
			if throughput[ci][ii] > best {
				best = throughput[ci][ii]
				bestCandidate[ii] = ci
			}
		}
	}

	varNames := make([]string, len(vars))
	for i, v := range vars {
		varNames[i] = v.Name
	}
	result := &Result{
		Version:         ArtifactVersion,
		Template:        template.Name(),
		ShapeVars:       varNames,
		RunID:           uuid.NewString(),
		Profile:         profile.Name,
		BestPerInstance: make(map[string]int),
	}

	// One entry per winning candidate, in enumeration order, covering the
	// instances it won.
	entryIndex := make(map[int]int) // survivor index -> entry index
	for ci := range survivors {
		won := false
		for _, b := range bestCandidate {
			if b == ci {
				won = true
				break
			}
		}
		if !won {
			continue
		}
		entryIndex[ci] = len(result.Entries)
		result.Entries = append(result.Entries, Entry{Candidate: survivors[ci]})
	}

	for ii, inst := range set.Instances() {
		ci := bestCandidate[ii]
		if ci < 0 {
			klog.Warningf("train %s: no candidate succeeded on instance %s, it will not be covered",
				template.Name(), inst)
			continue
		}
		ei := entryIndex[ci]
		entry := &result.Entries[ei]
		entry.Applicability.Exact = append(entry.Applicability.Exact, inst.Values)
		entry.Objective += weights[ii] * throughput[ci][ii]
		result.BestPerInstance[inst.Key()] = ei
		result.Objective += weights[ii] * throughput[ci][ii]
	}
	for ei := range result.Entries {
		a := &result.Entries[ei].Applicability
		a.Min, a.Max = bounds(a.Exact)
	}
	return result
}

// bounds returns the elementwise min and max over the tuples.
func bounds(tuples [][]int) (minValues, maxValues []int) {
	if len(tuples) == 0 {
		return nil, nil
	}
	minValues = append([]int(nil), tuples[0]...)
	maxValues = append([]int(nil), tuples[0]...)
	for _, tuple := range tuples[1:] {
		for i, v := range tuple {
			if v < minValues[i] {
				minValues[i] = v
			}
			if v > maxValues[i] {
				maxValues[i] = v
			}
		}
	}
	return minValues, maxValues
}
