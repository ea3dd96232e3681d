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

package graddescent_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/analysis/graddescent"
	"github.com/staticafi/sbt-fizzer-sub001/model"
)

const floatDimWidth = 64

// floatDim is a single-chunk float64 dimension that packs its value into the
// first 64 entries of the bit vector, the same way model's chunkDimension
// packs a typed chunk -- the engine only ever reads/writes a dimension
// through Get/Set on whatever candidate bits it is holding at the time, so a
// dimension must never keep its value as mutable struct state. It also
// records every fraction it was probed at, so the fraction progression
// through repeated overshoots can be asserted on directly.
type floatDim struct {
	fractions []float64
}

func newFloatBits(v float64) []bool {
	bits := make([]bool, floatDimWidth)
	(&floatDim{}).Set(bits, v)
	return bits
}

func (d *floatDim) Get(bits []bool) float64 {
	var raw uint64
	for i := 0; i < floatDimWidth; i++ {
		if bits[i] {
			raw |= 1 << uint(i)
		}
	}
	return math.Float64frombits(raw)
}

func (d *floatDim) Set(bits []bool, v float64) {
	raw := math.Float64bits(v)
	for i := 0; i < floatDimWidth; i++ {
		bits[i] = raw&(1<<uint(i)) != 0
	}
}

func (d *floatDim) StepSize(current, fraction float64) float64 {
	d.fractions = append(d.fractions, fraction)
	return model.F64.StepDelta(current, fraction)
}

func TestEngine_PartialsExtendedNarrowsFloatFraction(t *testing.T) {
	dim := &floatDim{}
	e := graddescent.New(newFloatBits(10), []graddescent.Dimension{dim}, 1, 1, 10)

	// TAKE_NEXT_SEED -> EXECUTE_SEED.
	_, ok := e.NextCandidate()
	require.True(t, ok)
	require.Equal(t, graddescent.ExecuteSeed, e.Stage())

	// Baseline observation moves the engine into PARTIALS at full magnitude.
	e.Observe(100, false)
	require.Equal(t, graddescent.Partials, e.Stage())

	// Drive the two partial probes (+delta, -delta) for the single dimension.
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(90, false)
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(95, false)

	require.Equal(t, graddescent.Step, e.Stage())
	assert.Equal(t, model.FloatStepFractions[0], dim.fractions[0])

	// STEP improves, so the next round probes PARTIALS again at full magnitude...
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(50, false)
	require.Equal(t, graddescent.Partials, e.Stage())

	// ...then drive its two probes and have the following STEP overshoot, which
	// (since the previous step improved) retries as PARTIALS_EXTENDED at a
	// narrower float fraction instead of repeating the full-magnitude probe.
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(45, false)
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(48, false)
	require.Equal(t, graddescent.Step, e.Stage())

	e.Observe(60, false) // worse than 50: overshoot after a prior improvement.
	require.Equal(t, graddescent.PartialsExtended, e.Stage())

	before := len(dim.fractions)
	_, ok = e.NextCandidate()
	require.True(t, ok)
	require.Greater(t, len(dim.fractions), before)
	assert.Equal(t, model.FloatStepFractions[1], dim.fractions[len(dim.fractions)-1])
}

func TestEngine_SkipDoesNotPolluteFiniteDifference(t *testing.T) {
	dim := &floatDim{}
	e := graddescent.New(newFloatBits(10), []graddescent.Dimension{dim}, 1, 1, 10)

	_, ok := e.NextCandidate()
	require.True(t, ok)
	e.Observe(100, false)
	require.Equal(t, graddescent.Partials, e.Stage())

	// Skip the high-side probe of the only dimension as though it had been
	// suppressed as a duplicate candidate, then observe the low side for real.
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Skip()
	_, ok = e.NextCandidate()
	require.True(t, ok)
	e.Observe(80, false)

	// Had Skip instead called Observe(0, false), the high-side term would
	// have folded (0 - 100) = -100 into the accumulator; the only real
	// signal here is the low-side probe's contribution, and the engine
	// still reaches STEP having probed both sides exactly once.
	require.Equal(t, graddescent.Step, e.Stage())
}

func TestEngine_SkipAtExecuteSeedAbandonsSeedWithoutFakeValue(t *testing.T) {
	dim := &floatDim{}
	e := graddescent.New(newFloatBits(10), []graddescent.Dimension{dim}, 1, 2, 10)

	_, ok := e.NextCandidate()
	require.True(t, ok)
	require.Equal(t, graddescent.ExecuteSeed, e.Stage())

	e.Skip()
	assert.Equal(t, graddescent.TakeNextSeed, e.Stage())

	_, ok = e.NextCandidate()
	require.True(t, ok)
	assert.Equal(t, graddescent.ExecuteSeed, e.Stage())
}
