// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package search

// State of a search run. Train runs move Idle -> Enumerating -> Scoring ->
// Measuring -> Aggregating -> Persisted; infer runs move Idle -> Loaded ->
// Replaying -> Validated. Failed is entered from any state on unrecoverable
// error.
type State int

//go:generate go run github.com/dmarkham/enumer -type=State -trimprefix=State -transform=snake -output=state_enumer.go

const (
	StateIdle State = iota
	StateEnumerating
	StateScoring
	StateMeasuring
	StateAggregating
	StatePersisted
	StateLoaded
	StateReplaying
	StateValidated
	StateFailed
)

// Terminal reports whether the state is terminal.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateValidated || s == StateFailed
}
