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

// Package bitshare implements component C6: a cache of previously-seen
// sensitive-bit subsequences, shared across every node whose location id
// (the bare numeric id, not the full id+context-hash pair) matches, so a
// subsequence that flipped one branch can be replayed against another
// branch reached through a different call path. Grounded on
// original_source/src/fuzzing/include/fuzzing/bitshare_analysis.hpp.
package bitshare

import (
	"github.com/gammazero/deque"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// maxDequeSize bounds each direction's deque (spec section 4.6,
// bitshare_analysis.hpp's max_num_of_bits_per_direction / cache depth).
const maxDequeSize = 10

// entry is one cached candidate: the subsequence of bits (in sensitive-bit
// order) that was sliced out of the input which produced it.
type entry struct {
	bits []bool
}

// Cache holds the shared bit subsequences keyed by the bare location id,
// one FIFO deque per outgoing direction.
type Cache struct {
	byLocation map[uint32][2]*deque.Deque
}

// NewCache creates an empty bitshare cache.
func NewCache() *Cache {
	return &Cache{byLocation: make(map[uint32][2]*deque.Deque)}
}

func dirIndex(d bool) int {
	if d {
		return 1
	}
	return 0
}

// Record stores the bit subsequence (already restricted to the sensitive
// bits of the leaf that produced it) against locationID's direction
// deque, evicting the oldest entry (FIFO, not LRU -- spec section 9 design
// note) once the deque is at capacity.
func (c *Cache) Record(locationID uint32, direction bool, bits []bool) {
	pair, ok := c.byLocation[locationID]
	if !ok {
		pair = [2]*deque.Deque{deque.New(maxDequeSize), deque.New(maxDequeSize)}
		c.byLocation[locationID] = pair
	}
	dq := pair[dirIndex(direction)]
	if dq.Len() >= maxDequeSize {
		dq.PopBack()
	}
	dq.PushFront(entry{bits: append([]bool(nil), bits...)})
}

// Candidates returns, most-recently-recorded first, every bit subsequence
// cached for locationID's direction, for the caller to splice into a fresh
// input at the sensitive-bit positions of the current leaf.
func (c *Cache) Candidates(locationID uint32, direction bool) [][]bool {
	pair, ok := c.byLocation[locationID]
	if !ok {
		return nil
	}
	dq := pair[dirIndex(direction)]
	out := make([][]bool, 0, dq.Len())
	for i := 0; i < dq.Len(); i++ {
		out = append(out, dq.At(i).(entry).bits)
	}
	return out
}

// Analysis is the bitshare pass bound to a single leaf: it replays cached
// subsequences from other nodes sharing the leaf's bare location id against
// the leaf's own sensitive bits, most-recent-first, until one flips the
// leaf or the cache is exhausted.
type Analysis struct {
	state analysis.State

	leaf           tree.NodeID
	bits           *model.StdinBitsAndTypes
	sensitiveBits  []int // ascending, stable order matching cached slices
	direction      bool
	locationID     uint32
	candidates     [][]bool
	candidateIndex int

	statistics analysis.Statistics
}

// New creates a ready-to-use bitshare analysis.
func New() *Analysis {
	return &Analysis{state: analysis.Ready}
}

func (a *Analysis) IsReady() bool { return a.state == analysis.Ready }
func (a *Analysis) IsBusy() bool  { return a.state == analysis.Busy }

// Start begins a pass at leaf: direction is the unexplored side being
// targeted, locationID the leaf's bare location id, sensitiveBits the
// (sorted) indices the cached subsequences align to.
func (a *Analysis) Start(cache *Cache, leaf tree.NodeID, bits *model.StdinBitsAndTypes, sensitiveBits []int, locationID uint32, direction bool) {
	a.state = analysis.Busy
	a.leaf = leaf
	a.bits = bits
	a.sensitiveBits = sensitiveBits
	a.direction = direction
	a.locationID = locationID
	a.candidates = cache.Candidates(locationID, direction)
	a.candidateIndex = 0

	a.statistics.StartCalls++
}

// Stop ends the pass.
func (a *Analysis) Stop() {
	if !a.IsBusy() {
		return
	}
	if a.candidateIndex >= len(a.candidates) {
		a.statistics.StopCallsRegular++
	} else {
		a.statistics.StopCallsEarly++
	}
	a.state = analysis.Ready
}

// GenerateNextInput splices the next cached subsequence into the leaf's
// current bits at the sensitive-bit positions and returns the result.
func (a *Analysis) GenerateNextInput() ([]bool, bool) {
	if !a.IsBusy() {
		return nil, false
	}
	if a.candidateIndex >= len(a.candidates) {
		a.Stop()
		return nil, false
	}
	seq := a.candidates[a.candidateIndex]
	a.candidateIndex++

	candidate := append([]bool(nil), a.bits.Bits...)
	for i, idx := range a.sensitiveBits {
		if i >= len(seq) {
			break
		}
		candidate[idx] = seq[i]
	}
	a.statistics.GeneratedInputs++
	return candidate, true
}

// ProcessExecutionResults reports whether the just-executed candidate
// flipped the leaf's direction, stopping the pass on success.
func (a *Analysis) ProcessExecutionResults(flipped bool) bool {
	if !a.IsBusy() {
		return false
	}
	if flipped {
		a.Stop()
		return true
	}
	return false
}

func (a *Analysis) Leaf() tree.NodeID               { return a.leaf }
func (a *Analysis) Statistics() analysis.Statistics { return a.statistics }
