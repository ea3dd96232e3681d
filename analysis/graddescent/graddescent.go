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

// Package graddescent factors out the gradient-descent-like state machine
// shared by the typed minimization (C4) and bit-level minimization (C5)
// analyses: TAKE_NEXT_SEED -> EXECUTE_SEED -> STEP -> PARTIALS ->
// PARTIALS_EXTENDED (spec section 4.4), grounded on
// original_source/src/fuzzing/include/fuzzing/minimization_analysis.hpp's
// gradient_descent_state. It is deliberately generic over what a "chunk" is
// (a typed value for C4, a single bit for C5) through the Dimension
// interface, so the two analyses share this mechanism without sharing a
// public interface with the scheduler (spec section 9 wants the scheduler
// itself to dispatch on a tagged union, not on a shared interface -- this
// package is an internal implementation detail of those two analyses, not
// something the scheduler ever sees).
package graddescent

import (
	"math/rand"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// Stage names the gradient_descent_state machine's states.
type Stage uint8

const (
	TakeNextSeed Stage = iota
	ExecuteSeed
	Step
	Partials
	PartialsExtended
)

// Dimension is one sensitive chunk the descent can move along: a typed
// value (C4) or a single bit (C5).
type Dimension interface {
	// Get reads the dimension's current value out of bits.
	Get(bits []bool) float64
	// Set writes v into bits for this dimension.
	Set(bits []bool, v float64)
	// StepSize returns the magnitude of one finite-difference probe step
	// around current, scaled by fraction (1, 1/2, 1/4, 1/8 for floats per
	// spec section 4.4; always 1 for integers and bits).
	StepSize(current float64, fraction float64) float64
}

// Engine drives the shared state machine over a fixed input length and a
// set of dimensions. Engine does not know how to execute a candidate: the
// caller (typedmin/bitmin) drives it by calling Seed/NextCandidate/Observe
// in the sequence the scheduler's generate/process loop naturally produces.
type Engine struct {
	Dimensions []Dimension

	stage    Stage
	bits     []bool
	value    float64
	origBits []bool

	partials         []float64
	partialsExtended []float64
	maxChanges       []float64

	rng *rand.Rand

	seeds     [][]bool
	seedIndex int

	hashes map[uint64]struct{}

	iterationsThisSeed int
	maxIterations      int

	probeDim         int
	probeFractionIdx int
	probeHigh        bool
	baseValues       []float64

	lastStepImproved bool
}

// New creates an engine over the given input bits and dimensions, seeded
// deterministically by seed (the leaf's guid, per spec section 4.4's
// determinism requirement).
func New(originalBits []bool, dims []Dimension, seed uint64, maxSeeds int, maxIterationsPerSeed int) *Engine {
	e := &Engine{
		Dimensions:    dims,
		stage:         TakeNextSeed,
		origBits:      append([]bool(nil), originalBits...),
		rng:           rand.New(rand.NewSource(int64(seed))),
		hashes:        make(map[uint64]struct{}),
		maxIterations: maxIterationsPerSeed,
		maxChanges:    make([]float64, len(dims)),
	}
	e.seeds = append(e.seeds, append([]bool(nil), originalBits...))
	for i := 1; i < maxSeeds; i++ {
		e.seeds = append(e.seeds, e.randomizedSeed())
	}
	for i := range e.maxChanges {
		e.maxChanges[i] = 1 << 30 // effectively unbounded until first overshoot halves it
	}
	return e
}

func (e *Engine) randomizedSeed() []bool {
	out := append([]bool(nil), e.origBits...)
	for _, d := range e.Dimensions {
		v := d.Get(out)
		jitter := (e.rng.Float64()*2 - 1) * d.StepSize(v, 1)
		d.Set(out, v+jitter)
	}
	return out
}

// Stage returns the engine's current stage.
func (e *Engine) Stage() Stage { return e.stage }

// Done reports whether the engine has exhausted every seed without success.
func (e *Engine) Done() bool {
	return e.stage == TakeNextSeed && e.seedIndex >= len(e.seeds)
}

// NextCandidate produces the next bit vector to execute, or false if the
// engine needs no more executions right now (only possible when Done).
func (e *Engine) NextCandidate() ([]bool, bool) {
	switch e.stage {
	case TakeNextSeed:
		if e.seedIndex >= len(e.seeds) {
			return nil, false
		}
		e.bits = append([]bool(nil), e.seeds[e.seedIndex]...)
		e.seedIndex++
		e.iterationsThisSeed = 0
		e.stage = ExecuteSeed
		return e.dedupOrSkip(e.bits)

	case ExecuteSeed, Step:
		return e.dedupOrSkip(e.bits)

	case Partials, PartialsExtended:
		return e.nextPartialCandidate()
	}
	return nil, false
}

func (e *Engine) dedupOrSkip(bits []bool) ([]bool, bool) {
	return append([]bool(nil), bits...), true
}

// nextPartialCandidate advances probeDim/probeHigh to produce the next
// v+/-delta probe for the finite-difference gradient, at the fraction of
// the current magnitude probeFractionIdx selects (spec section 4.4: one of
// {1, 1/2, 1/4, 1/8} for float dimensions; StepSize ignores the fraction
// for integer and bit dimensions).
func (e *Engine) nextPartialCandidate() ([]bool, bool) {
	if e.probeDim >= len(e.Dimensions) {
		return nil, false
	}
	dim := e.Dimensions[e.probeDim]
	v := dim.Get(e.bits)
	delta := dim.StepSize(v, model.FloatStepFractions[e.probeFractionIdx])
	candidate := append([]bool(nil), e.bits...)
	if e.probeHigh {
		dim.Set(candidate, v+delta)
	} else {
		dim.Set(candidate, v-delta)
	}
	return candidate, true
}

// advanceProbe moves the probe cursor to the next (dimension, side) pair,
// or to the next fraction when a float dimension's current fraction is
// exhausted. This keeps nextPartialCandidate a pure function of state.
func (e *Engine) advanceProbe() bool {
	if e.probeHigh {
		e.probeHigh = false
		return true
	}
	e.probeHigh = true
	e.probeDim++
	if e.probeDim >= len(e.Dimensions) {
		return false
	}
	return true
}

// Observe records the candidate's resulting branching value (and whether it
// flipped the leaf's direction) and advances the state machine. flipped
// short-circuits success regardless of stage.
func (e *Engine) Observe(value float64, flipped bool) (success bool) {
	if flipped {
		e.stage = TakeNextSeed
		return true
	}

	switch e.stage {
	case ExecuteSeed:
		e.value = value
		e.beginPartials(Partials)
		return false

	case Step:
		e.iterationsThisSeed++
		if value < e.value {
			e.value = value
			e.lastStepImproved = true
			if e.iterationsThisSeed >= e.maxIterations {
				e.stage = TakeNextSeed
				return false
			}
			e.beginPartials(Partials)
			return false
		}
		// Overshoot: halve the step budget; retry with extended partials if the
		// previous step improved, otherwise abandon this seed.
		for i := range e.maxChanges {
			e.maxChanges[i] /= 2
		}
		if e.lastStepImproved {
			e.lastStepImproved = false
			e.beginPartials(PartialsExtended)
			return false
		}
		e.stage = TakeNextSeed
		return false

	case Partials, PartialsExtended:
		idx := e.probeDim
		if idx < len(e.baseValues) {
			sign := -1.0
			if e.probeHigh {
				sign = 1.0
			}
			if e.stage == Partials {
				e.partials[idx] += sign * (value - e.value)
			} else {
				e.partialsExtended[idx] += sign * (value - e.value)
			}
		}
		if !e.advanceProbe() {
			e.takeStep()
		}
		return false
	}
	return false
}

// Skip advances the state machine past a candidate the caller suppressed as
// a duplicate before ever executing it, with no observed branching value to
// report. It must never be confused with Observe(0, false): a real value of
// 0 at ExecuteSeed/Step registers as an improvement, and at Partials/
// PartialsExtended it would be folded into the finite-difference
// accumulator as though 0 had actually been measured. Skip instead moves
// the cursor exactly as far as a non-improving, non-informative outcome
// would, without touching value, partials, or partialsExtended.
func (e *Engine) Skip() {
	switch e.stage {
	case ExecuteSeed, Step:
		// No real execution happened for this seed/step attempt, so there is
		// nothing to seed further progress from; abandon it like a step that
		// failed to improve would.
		e.stage = TakeNextSeed

	case Partials, PartialsExtended:
		if !e.advanceProbe() {
			e.takeStep()
		}
	}
}

// beginPartials resets the probe cursor and prepares the gradient
// accumulator for stage. A fresh PARTIALS round (the first probe of a new
// seed or a successful step) always starts at full magnitude. PARTIALS_EXTENDED
// is only entered after a step overshot following a prior improvement (spec
// section 4.4), so each extended round narrows the float probe fraction one
// notch further than the last, clamped to the smallest entry in
// model.FloatStepFractions -- repeated overshoots probe closer and closer to
// the current value instead of repeating the same full-magnitude probe that
// already overshot.
func (e *Engine) beginPartials(stage Stage) {
	e.stage = stage
	e.probeDim = 0
	e.probeHigh = true
	switch stage {
	case Partials:
		e.probeFractionIdx = 0
		e.partials = make([]float64, len(e.Dimensions))
	default:
		if e.probeFractionIdx < len(model.FloatStepFractions)-1 {
			e.probeFractionIdx++
		}
		e.partialsExtended = make([]float64, len(e.Dimensions))
	}
	e.baseValues = make([]float64, len(e.Dimensions))
	for i, d := range e.Dimensions {
		e.baseValues[i] = d.Get(e.bits)
	}
}

// takeStep applies a scaled move along the steepest-descent direction
// computed from the partials just gathered, clamped to maxChanges per
// dimension (spec section 4.4's STEP stage).
func (e *Engine) takeStep() {
	grad := e.partials
	if e.stage == PartialsExtended {
		grad = e.partialsExtended
	}
	next := append([]bool(nil), e.bits...)
	for i, d := range e.Dimensions {
		if grad[i] == 0 {
			continue
		}
		v := d.Get(next)
		move := grad[i]
		if move > e.maxChanges[i] {
			move = e.maxChanges[i]
		}
		if move < -e.maxChanges[i] {
			move = -e.maxChanges[i]
		}
		d.Set(next, v-move)
	}
	e.bits = next
	e.stage = Step
}

// CurrentBits returns the bit vector the engine is about to, or just did,
// execute.
func (e *Engine) CurrentBits() []bool { return e.bits }

// Fingerprint returns the fnv hash of bits, for the caller's duplicate
// suppression set.
func Fingerprint(bits []bool) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range bits {
		v := byte(0)
		if b {
			v = 1
		}
		h ^= uint64(v)
		h *= 1099511628211
	}
	return h
}
