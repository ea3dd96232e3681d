// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package model

import "math"

// ChunkValue reads chunk index `chunk` out of bits (using s's type/offset
// table) and reinterprets it according to its type, returning the value as
// a float64 for use by the gradient-descent typed minimization (section
// 4.4). Every type is accepted: a BOOLEAN chunk reads as 0 or 1, and an
// UNTYPED8 chunk as its raw byte value.
func (s *StdinBitsAndTypes) ChunkValue(bits []bool, chunk int) float64 {
	offset := s.chunkOffsets[chunk]
	t := s.Types[chunk]
	width := t.Width()
	raw := uint64(0)
	for i := 0; i < width; i++ {
		if bits[offset+i] {
			raw |= 1 << uint(i)
		}
	}
	return reinterpret(t, raw)
}

// SetChunkValue writes v, encoded according to chunk's type, back into bits.
func (s *StdinBitsAndTypes) SetChunkValue(bits []bool, chunk int, v float64) {
	offset := s.chunkOffsets[chunk]
	t := s.Types[chunk]
	width := t.Width()
	raw := derepresent(t, v)
	for i := 0; i < width; i++ {
		bits[offset+i] = raw&(1<<uint(i)) != 0
	}
}

func reinterpret(t TypeOfInputBits, raw uint64) float64 {
	switch t {
	case U8:
		return float64(uint8(raw))
	case S8:
		return float64(int8(raw))
	case U16:
		return float64(uint16(raw))
	case S16:
		return float64(int16(raw))
	case U32:
		return float64(uint32(raw))
	case S32:
		return float64(int32(raw))
	case U64:
		return float64(raw)
	case S64:
		return float64(int64(raw))
	case F32:
		return float64(math.Float32frombits(uint32(raw)))
	case F64:
		return math.Float64frombits(raw)
	case BOOLEAN:
		if raw != 0 {
			return 1
		}
		return 0
	default:
		return float64(raw)
	}
}

func derepresent(t TypeOfInputBits, v float64) uint64 {
	switch t {
	case U8:
		return uint64(uint8(int64(v)))
	case S8:
		return uint64(uint8(int8(int64(v))))
	case U16:
		return uint64(uint16(int64(v)))
	case S16:
		return uint64(uint16(int16(int64(v))))
	case U32:
		return uint64(uint32(int64(v)))
	case S32:
		return uint64(uint32(int32(int64(v))))
	case U64:
		return uint64(v)
	case S64:
		return uint64(int64(v))
	case F32:
		return uint64(math.Float32bits(float32(v)))
	case F64:
		return math.Float64bits(v)
	case BOOLEAN:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return uint64(v)
	}
}

// StepDelta returns the smallest meaningful step for a chunk of this type:
// one unit for integers, a fraction of the current magnitude for floats, as
// described in spec section 4.4's PARTIALS stage.
func (t TypeOfInputBits) StepDelta(current float64, fraction float64) float64 {
	switch t {
	case F32, F64:
		mag := math.Abs(current)
		if mag == 0 {
			mag = 1
		}
		return mag * fraction
	default:
		return 1
	}
}

// FloatStepFractions are the {1, 1/2, 1/4, 1/8} fractions spec section 4.4
// mandates for float chunks during the PARTIALS stage.
var FloatStepFractions = [...]float64{1, 0.5, 0.25, 0.125}
