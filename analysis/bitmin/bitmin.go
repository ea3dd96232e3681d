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

// Package bitmin implements component C5: bit-granular gradient descent
// when the typed form has failed to flip the leaf's direction, or no
// sensitive bit fell into a typed chunk. Identical state machine to C4
// (analysis/graddescent) operating on the raw sensitive bits, one dimension
// per sensitive bit. A step is bounded only by the shared engine's
// per-dimension step clamp, which starts effectively unbounded and is halved
// on every overshoot; no Hamming budget limits how many bits one step flips.
package bitmin

import (
	"sort"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/graddescent"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

const (
	maxSeeds             = 4
	maxIterationsPerSeed = 40
)

type bitDimension struct{ index int }

func (d bitDimension) Get(bits []bool) float64 {
	if bits[d.index] {
		return 1
	}
	return 0
}

func (d bitDimension) Set(bits []bool, v float64) {
	bits[d.index] = v >= 0.5
}

func (d bitDimension) StepSize(float64, float64) float64 { return 1 }

// Analysis is the bit-level minimization pass.
type Analysis struct {
	state analysis.State

	leaf           tree.NodeID
	bitTranslation []int // local dimension index -> global bit index
	engine         *graddescent.Engine

	hashes map[uint64]struct{}

	statistics analysis.Statistics
}

// New creates a ready-to-use bit-level minimization analysis.
func New() *Analysis {
	return &Analysis{state: analysis.Ready}
}

func (a *Analysis) IsReady() bool { return a.state == analysis.Ready }
func (a *Analysis) IsBusy() bool  { return a.state == analysis.Busy }

// Start begins a pass at leaf over originalBits, restricted to the given
// sensitive bit indices, seeded by guid.
func (a *Analysis) Start(leaf tree.NodeID, guid uint64, originalBits []bool, sensitiveBits map[int]struct{}) {
	a.state = analysis.Busy
	a.leaf = leaf
	a.hashes = make(map[uint64]struct{})

	a.bitTranslation = a.bitTranslation[:0]
	for idx := range sensitiveBits {
		a.bitTranslation = append(a.bitTranslation, idx)
	}
	sort.Ints(a.bitTranslation)

	dims := make([]graddescent.Dimension, len(a.bitTranslation))
	for i, idx := range a.bitTranslation {
		dims[i] = bitDimension{index: idx}
	}

	a.engine = graddescent.New(originalBits, dims, guid, maxSeeds, maxIterationsPerSeed)
	a.statistics.StartCalls++
	a.statistics.MaxBits = uint64(len(originalBits))
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

// GenerateNextInput returns the next candidate bit vector, suppressing
// duplicates already tried by this pass (spec section 4.5).
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

// ProcessExecutionResults observes the outcome of the candidate just
// executed and advances the descent.
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
