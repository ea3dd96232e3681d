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

// Package sensitivity implements component C3: for a chosen leaf, flip one
// bit at a time to determine which input bits can change the leaf's
// branching value. Grounded on
// original_source/src/fuzzing/include/fuzzing/sensitivity_analysis.hpp
// and its .cpp.
package sensitivity

import (
	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// Analysis is the sensitivity pass. The zero value is ready to Start.
type Analysis struct {
	state State

	bits  *model.StdinBitsAndTypes
	trace model.ExecutionTrace
	leaf  tree.NodeID

	mutatedBitIndex int
	stoppedEarly    bool

	// changedNodes collects, by node id, the set of bit indices sensitivity
	// proved sensitive, keyed by the node so the caller can write them back
	// into the tree (the tree itself does not import this package, to keep
	// the dependency direction analysis -> tree, not the reverse).
	changedNodes map[tree.NodeID]map[int]struct{}

	statistics analysis.Statistics
}

type State = analysis.State

const (
	Ready = analysis.Ready
	Busy  = analysis.Busy
)

// New creates a ready-to-use sensitivity analysis.
func New() *Analysis {
	return &Analysis{state: Ready}
}

func (a *Analysis) IsReady() bool { return a.state == Ready }
func (a *Analysis) IsBusy() bool  { return a.state == Busy }

// Start begins a sensitivity pass at leaf, whose best-known input and trace
// are bits and trace. Precondition: IsReady() and leaf hasn't had
// sensitivity performed on it yet (spec section 4.3); callers (the
// scheduler) are responsible for checking the phase flag.
func (a *Analysis) Start(leaf tree.NodeID, bits *model.StdinBitsAndTypes, trace model.ExecutionTrace) {
	a.state = Busy
	a.bits = bits
	a.trace = trace
	a.leaf = leaf
	a.mutatedBitIndex = 0
	a.stoppedEarly = false
	a.changedNodes = make(map[tree.NodeID]map[int]struct{})

	a.statistics.StartCalls++
	if uint64(bits.Len()) > a.statistics.MaxBits {
		a.statistics.MaxBits = uint64(bits.Len())
	}
}

// Stop ends the pass. Spec section 4.3 has no early-stop condition: every
// bit must be probed, so StoppedEarly should never observe true in
// practice; it is retained to make that property testable.
func (a *Analysis) Stop() {
	if !a.IsBusy() {
		return
	}
	if a.mutatedBitIndex < a.bits.Len() {
		a.stoppedEarly = true
		a.statistics.StopCallsEarly++
	} else {
		a.statistics.StopCallsRegular++
	}
	a.state = Ready
}

// GenerateNextInput produces the next candidate: the original bits with one
// bit flipped. It returns false once every bit index has been tried, at
// which point it has already called Stop.
func (a *Analysis) GenerateNextInput() ([]bool, bool) {
	if !a.IsBusy() {
		return nil, false
	}
	if a.mutatedBitIndex == a.bits.Len() {
		a.Stop()
		return nil, false
	}

	candidate := a.bits.WithFlippedBit(a.mutatedBitIndex)
	a.mutatedBitIndex++
	a.statistics.GeneratedInputs++
	return candidate, true
}

// ProcessExecutionResults walks the candidate trace in lockstep with the
// original trace, starting at entryNode; both traces are expected to begin at
// entryNode's location. The scheduler passes the leaf itself as entryNode, so
// only the leaf and the nodes below it on the shared path are examined, not
// the leaf's ancestors. At every shared node whose recorded value differs
// from the original, the last-flipped bit index is recorded as sensitive.
// successorOf resolves a (node, direction) pair to the child node id, mirroring the
// tree's Node.Successors without this package importing tree internals
// directly: the scheduler supplies the walk via the successorOf callback so
// this package stays free of a circular import on *tree.Tree.
func (a *Analysis) ProcessExecutionResults(candidate model.ExecutionTrace, entryNode tree.NodeID, nodeID func(tree.NodeID) model.LocationID, successorOf func(tree.NodeID, bool) (tree.NodeID, bool)) {
	if !a.IsBusy() {
		return
	}

	node := entryNode
	bitIndex := a.mutatedBitIndex - 1
	for i := 0; i < len(a.trace) && i < len(candidate); i++ {
		orig := a.trace[i]
		curr := candidate[i]
		if orig.ID != curr.ID || orig.ID != nodeID(node) {
			break
		}

		if orig.Value != curr.Value {
			if a.changedNodes[node] == nil {
				a.changedNodes[node] = make(map[int]struct{})
			}
			a.changedNodes[node][bitIndex] = struct{}{}
		}

		if orig.Direction != curr.Direction {
			break
		}

		next, ok := successorOf(node, orig.Direction)
		if !ok {
			break
		}
		node = next
	}
}

// ChangedNodes returns, for the pass just run, the set of nodes (by id) and
// the bit indices proven sensitive at each.
func (a *Analysis) ChangedNodes() map[tree.NodeID]map[int]struct{} {
	return a.changedNodes
}

// StoppedEarly reports whether the pass was interrupted before probing
// every bit (should not happen per spec section 4.3, kept for tests).
func (a *Analysis) StoppedEarly() bool { return a.stoppedEarly }

// Statistics returns the running performance counters for this analysis.
func (a *Analysis) Statistics() analysis.Statistics { return a.statistics }

// Leaf returns the node this pass is currently (or was last) bound to.
func (a *Analysis) Leaf() tree.NodeID { return a.leaf }
