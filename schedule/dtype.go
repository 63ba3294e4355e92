// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"math"

	"github.com/x448/float16"
)

// DType is the tensor element type of a template instantiation. Only the
// types the dense family lowers to are listed.
type DType int

const (
	Float32 DType = iota
	Float16
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	if d == Float16 {
		return 2
	}
	return 4
}

func (d DType) String() string {
	if d == Float16 {
		return "f16"
	}
	return "f32"
}

// FromFloat32 converts a float32 buffer to the dtype's on-device bit layout,
// widened to uint32 per element. Used when comparing replayed outputs against
// a reference oracle's buffer.
func (d DType) FromFloat32(values []float32) []uint32 {
	out := make([]uint32, len(values))
	for i, v := range values {
		if d == Float16 {
			out[i] = uint32(float16.Fromfloat32(v).Bits())
		} else {
			out[i] = math.Float32bits(v)
		}
	}
	return out
}

// ToFloat32 converts on-device bits back to float32 values.
func (d DType) ToFloat32(bits []uint32) []float32 {
	out := make([]float32, len(bits))
	for i, b := range bits {
		if d == Float16 {
			out[i] = float16.Float16(uint16(b)).Float32()
		} else {
			out[i] = math.Float32frombits(b)
		}
	}
	return out
}
