// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/workload"
)

// ArtifactVersion is the current format version of persisted search results.
// Loading any other version fails with IncompatibleArtifactError.
const ArtifactVersion = 1

// Applicability describes which workload instances a persisted candidate
// covers: the exact shape tuples it won during training, plus the bounding
// shape-range bucket spanned by them.
type Applicability struct {
	// Exact shape tuples, one per covered training instance, in training
	// order.
	Exact [][]int `json:"exact"`

	// Min and Max bound the covering bucket, elementwise over Exact. An
	// instance inside the bucket but not an exact match is still covered,
	// just by range.
	Min []int `json:"min"`
	Max []int `json:"max"`
}

// CoversExactly reports whether values is one of the exact tuples.
func (a *Applicability) CoversExactly(values []int) bool {
	for _, tuple := range a.Exact {
		if equalInts(tuple, values) {
			return true
		}
	}
	return false
}

// Covers reports whether values falls inside the applicability bucket.
func (a *Applicability) Covers(values []int) bool {
	if a.CoversExactly(values) {
		return true
	}
	if len(a.Min) != len(values) || len(a.Max) != len(values) {
		return false
	}
	for i, v := range values {
		if v < a.Min[i] || v > a.Max[i] {
			return false
		}
	}
	return true
}

// distance is the L1 distance from values to the bucket center, used to pick
// the nearest covering bucket when several overlap.
func (a *Applicability) distance(values []int) float64 {
	var d float64
	for i, v := range values {
		if i >= len(a.Min) {
			break
		}
		center := float64(a.Min[i]+a.Max[i]) / 2
		diff := float64(v) - center
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d
}

// Entry is one persisted candidate with its applicability and the weighted
// objective it achieved over the instances it covers.
type Entry struct {
	Applicability Applicability       `json:"applicability"`
	Candidate     *schedule.Candidate `json:"candidate"`
	Objective     float64             `json:"objective"`
}

// Result is the persisted artifact of a training run: the chosen schedule
// candidates of one template, keyed by shape applicability, with summary
// statistics. It is produced by Train, written whole (never appended to) and
// read-only once persisted.
type Result struct {
	Version   int      `json:"version"`
	Template  string   `json:"template"`
	ShapeVars []string `json:"shape_vars"`

	// RunID identifies the training run that produced the artifact.
	RunID string `json:"run_id"`

	// Profile is the name of the hardware profile trained against.
	Profile string `json:"profile"`

	// Entries in candidate enumeration order.
	Entries []Entry `json:"entries"`

	// BestPerInstance maps an instance's shape key to the index in Entries
	// of the candidate that won it.
	BestPerInstance map[string]int `json:"best_per_instance"`

	// Objective is the weighted objective achieved over the full training
	// instance set using each instance's best candidate.
	Objective float64 `json:"objective"`
}

// lookup finds the entry covering the instance: an exact shape match wins,
// otherwise the nearest covering bucket. Returns nil when nothing covers the
// instance.
func (r *Result) lookup(inst workload.Instance) *Entry {
	for i := range r.Entries {
		if r.Entries[i].Applicability.CoversExactly(inst.Values) {
			return &r.Entries[i]
		}
	}
	var best *Entry
	bestDistance := 0.0
	for i := range r.Entries {
		entry := &r.Entries[i]
		if !entry.Applicability.Covers(inst.Values) {
			continue
		}
		d := entry.Applicability.distance(inst.Values)
		if best == nil || d < bestDistance {
			best, bestDistance = entry, d
		}
	}
	return best
}

// Save writes the result to path as a whole-artifact replace: the JSON is
// written to a temporary file in the same directory and renamed over the
// target, so a crashed run never leaves a partial artifact for Infer to
// consume.
func (r *Result) Save(path string) error {
	contents, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize search result for %q", path)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file in %q", dir)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(contents); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to write search result to %q", tmpName)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to close %q", tmpName)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to move search result into place at %q", path)
	}
	return nil
}

// Load reads a previously persisted search result. A malformed file or an
// unrecognized format version is fatal and non-retryable.
func Load(path string) (*Result, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read search result from %q", path)
	}

	// Check the version tag before trusting the rest of the layout.
	var probe struct {
		Version int `json:"version"`
	}
	if err = json.Unmarshal(contents, &probe); err != nil {
		return nil, errors.Wrapf(err, "malformed search result in %q", path)
	}
	if probe.Version != ArtifactVersion {
		return nil, &IncompatibleArtifactError{Source: path, Version: probe.Version}
	}

	result := &Result{}
	if err = json.Unmarshal(contents, result); err != nil {
		return nil, errors.Wrapf(err, "malformed search result in %q", path)
	}
	return result, nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
