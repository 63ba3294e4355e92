// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/dynsched/schedule"
	"github.com/gomlx/dynsched/workload"
)

type stubBackend struct {
	name   string
	config string
}

func (b *stubBackend) Name() string        { return b.name }
func (b *stubBackend) Description() string { return b.name }
func (b *stubBackend) Finalize()           {}

func (b *stubBackend) Measure(context.Context, *schedule.Candidate, workload.Instance) (float64, Status) {
	return 0, Ok
}

func (b *stubBackend) Lower(*schedule.Candidate) (Executable, error) { return nil, nil }

func register(name string) {
	Register(name, func(config string) Backend {
		return &stubBackend{name: name, config: config}
	})
}

func TestRegistry(t *testing.T) {
	register("alpha")
	register("beta")

	b := NewWithConfig("beta:some,config")
	require.Equal(t, "beta", b.Name())
	assert.Equal(t, "some,config", b.(*stubBackend).config)

	// An empty configuration selects the first registered backend.
	assert.Equal(t, "alpha", NewWithConfig("").Name())

	assert.Panics(t, func() { NewWithConfig("nosuchbackend:x") })
}

func TestNewHonorsEnvironment(t *testing.T) {
	register("alpha")
	register("beta")

	t.Setenv(DYNSCHED_BACKEND, "beta:from-env")
	b := New()
	require.Equal(t, "beta", b.Name())
	assert.Equal(t, "from-env", b.(*stubBackend).config)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "error", Error.String())
}
