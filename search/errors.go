// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gomlx/dynsched/workload"
)

// ErrEnumerationEmpty reports that the template produced no candidates for
// the workload set. It is fatal: there is nothing to search.
var ErrEnumerationEmpty = errors.New("schedule enumeration produced no candidates")

// ExcessiveFailureRateError aborts a training run whose measurement failure
// rate crossed the configured threshold. Repeated device failure is an
// environment problem, not a search problem, so the run fails instead of
// producing a result trained on mostly missing data.
type ExcessiveFailureRateError struct {
	Failed, Total int
	Threshold     float64
}

func (e *ExcessiveFailureRateError) Error() string {
	return fmt.Sprintf("measurement failure rate %.0f%% (%d of %d pairs) exceeds the %.0f%% threshold",
		100*e.Rate(), e.Failed, e.Total, 100*e.Threshold)
}

// Rate returns the observed failure rate.
func (e *ExcessiveFailureRateError) Rate() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Failed) / float64(e.Total)
}

// NoCoverageError reports an inference request for an instance that no
// persisted candidate covers. Inference never silently substitutes a
// non-covering candidate.
type NoCoverageError struct {
	Template string
	Instance workload.Instance
}

func (e *NoCoverageError) Error() string {
	return fmt.Sprintf("no persisted %s candidate covers workload instance %s", e.Template, e.Instance)
}

// IncompatibleArtifactError reports a persisted result whose format version
// is not understood. Fatal and non-retryable.
type IncompatibleArtifactError struct {
	Source  string
	Version int
}

func (e *IncompatibleArtifactError) Error() string {
	return fmt.Sprintf("persisted search result %q has format version %d, this build understands version %d",
		e.Source, e.Version, ArtifactVersion)
}
