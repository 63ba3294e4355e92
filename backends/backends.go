// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface an execution system needs to
// implement to measure and replay schedule candidates on a device.
//
// The search core never talks to a device directly: lowering a candidate to
// executable code and timing it belong to the backend. A backend typically
// represents exclusive access to one physical accelerator, so the search
// serializes Measure calls per backend; implementations may assume one call
// in flight at a time.
package backends

import (
	"context"
	"os"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/workload"
)

// Status of one measurement.
type Status int

const (
	// Ok means the measurement succeeded and the throughput is valid.
	Ok Status = iota

	// Timeout means the measurement did not finish in time. Timed-out
	// measurements are retried once before counting as failed.
	Timeout

	// Error means the measurement failed (launch failure, bad output, ...).
	Error
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Timeout:
		return "timeout"
	default:
		return "error"
	}
}

// Backend is the execution collaborator.
type Backend interface {
	// Name returns the short name of the backend, e.g. "hostsim".
	Name() string

	// Description is a longer description of the backend for pretty-printing.
	Description() string

	// Measure runs the candidate for the given instance and returns its
	// measured throughput in GFLOPS. A non-Ok status invalidates the
	// throughput. Measure must be idempotent: retrying a timed-out pair is
	// safe.
	Measure(ctx context.Context, cand *schedule.Candidate, inst workload.Instance) (gflops float64, status Status)

	// Lower compiles the candidate into an executable for replay.
	Lower(cand *schedule.Candidate) (Executable, error)

	// Finalize releases the device. The backend is invalid afterwards.
	Finalize()
}

// Executable is a lowered candidate, used by the inference replay path.
type Executable interface {
	// Replay runs the executable for the instance and returns the achieved
	// throughput in GFLOPS and the output buffer in the candidate dtype's
	// bit layout.
	Replay(ctx context.Context, inst workload.Instance) (gflops float64, out []uint32, err error)
}

// Oracle is the reference-kernel collaborator, used only by validation flows
// -- never in the training objective.
type Oracle interface {
	// Reference runs the vendor reference kernel for the instance.
	Reference(ctx context.Context, inst workload.Instance) (gflops float64, out []float32, err error)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) Backend

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name. To be safe, call
// Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration used by New if the environment
// variable is not set. See NewWithConfig for the format.
var DefaultConfig string

// DYNSCHED_BACKEND is the environment variable with the default backend
// configuration: "<backend_name>:<backend_configuration>".
const DYNSCHED_BACKEND = "DYNSCHED_BACKEND"

// New returns a new Backend, selected by the DYNSCHED_BACKEND environment
// variable, then DefaultConfig, then the first registered backend. It panics
// if no backend was registered.
func New() Backend {
	if config, found := os.LookupEnv(DYNSCHED_BACKEND); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig builds a backend from a "<backend_name>:<configuration>"
// string. An empty name selects the first registered backend.
func NewWithConfig(config string) Backend {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered backends for dynsched -- maybe import the simulator with import _ "github.com/gomlx/dynsched/backends/hostsim"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		exceptions.Panicf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}
