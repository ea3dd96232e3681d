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

// Package typedmin implements component C4: gradient descent over the typed
// chunks that feed a leaf, driving its branching value to zero to flip its
// direction. Grounded on
// original_source/src/fuzzing/include/fuzzing/minimization_analysis.hpp's
// gradient_descent_state, specialised to typed-value dimensions, via the
// shared analysis/graddescent engine.
package typedmin

import (
	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/graddescent"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

const (
	maxSeeds             = 4
	maxIterationsPerSeed = 15
)

type chunkDimension struct {
	bits  *model.StdinBitsAndTypes
	chunk int
}

func (d chunkDimension) Get(bits []bool) float64      { return d.bits.ChunkValue(bits, d.chunk) }
func (d chunkDimension) Set(bits []bool, v float64)   { d.bits.SetChunkValue(bits, d.chunk, v) }
func (d chunkDimension) StepSize(current, fraction float64) float64 {
	return d.bits.Types[d.chunk].StepDelta(current, fraction)
}

// Analysis is the typed minimization pass.
type Analysis struct {
	state analysis.State

	leaf   tree.NodeID
	bits   *model.StdinBitsAndTypes
	engine *graddescent.Engine

	hashes map[uint64]struct{}

	statistics analysis.Statistics
}

// New creates a ready-to-use typed minimization analysis.
func New() *Analysis {
	return &Analysis{state: analysis.Ready}
}

func (a *Analysis) IsReady() bool { return a.state == analysis.Ready }
func (a *Analysis) IsBusy() bool  { return a.state == analysis.Busy }

// Applicable reports whether the precondition of spec section 4.4 holds:
// at least one sensitive bit falls into a typed (non-UNTYPED8) chunk.
func Applicable(bits *model.StdinBitsAndTypes, sensitiveBits map[int]struct{}) bool {
	for chunk, t := range bits.Types {
		if !t.IsTyped() {
			continue
		}
		offset := bits.ChunkOffset(chunk)
		for i := 0; i < t.Width(); i++ {
			if _, ok := sensitiveBits[offset+i]; ok {
				return true
			}
		}
	}
	return false
}

// Start begins a pass at leaf, with guid seeding the deterministic PRNG
// (spec section 4.4).
func (a *Analysis) Start(leaf tree.NodeID, guid uint64, bits *model.StdinBitsAndTypes, sensitiveBits map[int]struct{}) {
	a.state = analysis.Busy
	a.leaf = leaf
	a.bits = bits
	a.hashes = make(map[uint64]struct{})

	var dims []graddescent.Dimension
	for chunk, t := range bits.Types {
		if !t.IsTyped() {
			continue
		}
		offset := bits.ChunkOffset(chunk)
		sensitiveChunk := false
		for i := 0; i < t.Width(); i++ {
			if _, ok := sensitiveBits[offset+i]; ok {
				sensitiveChunk = true
				break
			}
		}
		if sensitiveChunk {
			dims = append(dims, chunkDimension{bits: bits, chunk: chunk})
		}
	}

	a.engine = graddescent.New(bits.Bits, dims, guid, maxSeeds, maxIterationsPerSeed)
	a.statistics.StartCalls++
}

// Stop ends the pass.
func (a *Analysis) Stop() {
	if !a.IsBusy() {
		return
	}
	if a.engine.Done() {
		a.statistics.StopCallsRegular++
	} else {
		a.statistics.StopCallsEarly++
	}
	a.state = analysis.Ready
}

// GenerateNextInput returns the next candidate to execute, skipping any
// that duplicate a bit vector already tried by this pass.
func (a *Analysis) GenerateNextInput() ([]bool, bool) {
	if !a.IsBusy() {
		return nil, false
	}
	for {
		candidate, ok := a.engine.NextCandidate()
		if !ok {
			a.Stop()
			return nil, false
		}
		fp := graddescent.Fingerprint(candidate)
		if _, dup := a.hashes[fp]; dup {
			a.statistics.SuppressedRepetitions++
			a.engine.Skip()
			continue
		}
		a.hashes[fp] = struct{}{}
		a.statistics.GeneratedInputs++
		return candidate, true
	}
}

// ProcessExecutionResults observes the leaf's branching value on the
// candidate just executed (math.Inf(1) and flipped=false if the candidate's
// trace never reached the leaf) and advances the descent.
func (a *Analysis) ProcessExecutionResults(value float64, flipped bool) bool {
	if !a.IsBusy() {
		return false
	}
	success := a.engine.Observe(value, flipped)
	if success {
		a.Stop()
	}
	return success
}

func (a *Analysis) Leaf() tree.NodeID               { return a.leaf }
func (a *Analysis) Statistics() analysis.Statistics { return a.statistics }
