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

import "fmt"

// TypeOfInputBits is the reinterpretation rule for one contiguous chunk of
// input bits, as reported by the target on the stdin_bytes wire record.
type TypeOfInputBits uint8

const (
	BOOLEAN TypeOfInputBits = iota
	U8
	S8
	U16
	S16
	U32
	S32
	U64
	S64
	F32
	F64
	UNTYPED8
)

// Width returns the bit-width of one value of this type.
func (t TypeOfInputBits) Width() int {
	switch t {
	case BOOLEAN:
		return 1
	case U8, S8, UNTYPED8:
		return 8
	case U16, S16:
		return 16
	case U32, S32, F32:
		return 32
	case U64, S64, F64:
		return 64
	default:
		return 0
	}
}

func (t TypeOfInputBits) String() string {
	names := [...]string{"BOOLEAN", "U8", "S8", "U16", "S16", "U32", "S32", "U64", "S64", "F32", "F64", "UNTYPED8"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("TypeOfInputBits(%d)", uint8(t))
}

// IsTyped reports whether the chunk carries a meaningful reinterpretation,
// i.e. is not raw untyped bytes.
func (t TypeOfInputBits) IsTyped() bool {
	return t != UNTYPED8
}

// StdinBitsAndTypes holds the bit-sequence the executor replayed on a run,
// the ordered types of the chunks it consumed out of that sequence, and a
// lookup from bit-index to the chunk-index that contains it. The invariant
// sum(width(Types)) == len(Bits) must always hold; NewStdinBitsAndTypes
// enforces it by construction.
type StdinBitsAndTypes struct {
	Bits          []bool
	Types         []TypeOfInputBits
	bitToChunk    []uint32
	chunkOffsets  []int
}

// NewStdinBitsAndTypes builds the bit-index -> chunk-index lookup table from
// bits and types, returning an error if the widths don't add up to len(bits).
func NewStdinBitsAndTypes(bits []bool, types []TypeOfInputBits) (*StdinBitsAndTypes, error) {
	total := 0
	offsets := make([]int, len(types))
	for i, t := range types {
		offsets[i] = total
		total += t.Width()
	}
	if total != len(bits) {
		return nil, fmt.Errorf("chunk widths sum to %d bits, but got %d bits", total, len(bits))
	}
	lookup := make([]uint32, len(bits))
	chunk := 0
	for i := range bits {
		for chunk < len(offsets)-1 && i >= offsets[chunk+1] {
			chunk++
		}
		lookup[i] = uint32(chunk)
	}
	s := StdinBitsAndTypes{
		Bits:         append([]bool(nil), bits...),
		Types:        append([]TypeOfInputBits(nil), types...),
		bitToChunk:   lookup,
		chunkOffsets: offsets,
	}
	return &s, nil
}

// Len returns the number of input bits.
func (s *StdinBitsAndTypes) Len() int {
	return len(s.Bits)
}

// ChunkOf returns the chunk index containing bit index i.
func (s *StdinBitsAndTypes) ChunkOf(bitIndex int) uint32 {
	return s.bitToChunk[bitIndex]
}

// ChunkOffset returns the bit offset at which chunk i begins.
func (s *StdinBitsAndTypes) ChunkOffset(chunk int) int {
	return s.chunkOffsets[chunk]
}

// WithFlippedBit returns a copy of the bit vector with bit i flipped,
// leaving the receiver untouched.
func (s *StdinBitsAndTypes) WithFlippedBit(i int) []bool {
	out := append([]bool(nil), s.Bits...)
	out[i] = !out[i]
	return out
}

// BitsToBytes packs the bit vector into bytes, little-endian within each byte
// (bit 0 of the vector is the least significant bit of byte 0).
func BitsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// BytesToBits unpacks count bits out of data, little-endian within each byte.
func BytesToBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		out[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}
