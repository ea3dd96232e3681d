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

package tree

import (
	"math"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// IntegrationResult reports what Integrate did: the leaves it created (in
// trace order) and the last node it actually visited (which, on a truncated
// trace, is the node matching the trace's final entry, not a node past it).
type IntegrationResult struct {
	NewLeaves   []NodeID
	LastVisited NodeID
}

// Integrate walks trace from the root, descending into existing children
// where the direction matches and attaching new nodes where the trace
// extends beyond the known tree. It updates BestValue/BestInput on every
// node it visits. input is the one that produced trace; a nil input is
// legal (e.g. a synthetic trace in a test) but then BestInput is left
// untouched.
//
// If truncated is true (the trace ended in a timeout or boundary-condition
// violation, spec section 7), Integrate stops growing the tree at the final
// entry of trace: it does not attach a new node past the truncation point,
// even though the final entry's direction would otherwise be Unexplored.
// This is the resolution of the open question in spec section 9 about a
// stale record growing a leaf past a truncated trace.
func (t *Tree) Integrate(trace model.ExecutionTrace, input *model.StdinBitsAndTypes, truncated bool) (IntegrationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result IntegrationResult
	if len(trace) == 0 {
		return result, nil
	}

	if t.root == Unexplored {
		t.root = t.newNode(trace[0].ID, Unexplored, false)
		result.NewLeaves = append(result.NewLeaves, t.root)
	}

	cur := t.root
	for i, info := range trace {
		n := &t.nodes[cur]
		if n.ID != info.ID {
			// Divergence from what the tree expects at this position: the
			// target behaved non-deterministically relative to a prior run
			// that built this part of the tree. We stop growing silently;
			// the prefix already visited keeps its updated best values.
			result.LastVisited = cur
			return result, nil
		}

		d := dirIndex(info.Direction)
		if info.Value < n.BestValue[d] {
			n.BestValue[d] = info.Value
			n.BestInput[d] = input
		}

		result.LastVisited = cur

		isLastEntry := i == len(trace)-1
		if isLastEntry && truncated {
			n.BoundaryTruncatedHere = true
			break
		}
		if isLastEntry {
			break
		}

		next := n.Successors[d]
		if next == Unexplored {
			wasLeaf := n.IsLeaf()
			child := t.newNode(trace[i+1].ID, cur, info.Direction)
			// newNode may have been appended, invalidating n; refetch.
			n = &t.nodes[cur]
			n.Successors[d] = child
			if wasLeaf && !n.IsLeaf() {
				delete(t.openLeaves, cur)
			}
			result.NewLeaves = append(result.NewLeaves, child)
			cur = child
			continue
		}
		cur = next
	}

	return result, nil
}

// MarkClosed marks id as closed and propagates the closure upward: a parent
// becomes closed once both of its successors are attached nodes that are
// themselves closed.
func (t *Tree) MarkClosed(id NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markClosed(id)
}

func (t *Tree) markClosed(id NodeID) {
	n, ok := t.node(id)
	if !ok || n.Closed {
		return
	}
	t.nodes[id].Closed = true
	delete(t.openLeaves, id)

	parent := n.Predecessor
	for parent != Unexplored {
		p := &t.nodes[parent]
		if p.Closed {
			return
		}
		if p.Successors[0] == Unexplored || p.Successors[1] == Unexplored {
			return
		}
		left, _ := t.node(p.Successors[0])
		right, _ := t.node(p.Successors[1])
		if !left.Closed || !right.Closed {
			return
		}
		p.Closed = true
		delete(t.openLeaves, parent)
		parent = p.Predecessor
	}
}

// BestInputReaching returns the input that is the best candidate to push
// further into node id's unexplored side, and the direction that input
// should be steered toward.
//
// A node's BestValue[d] is updated every time a trace actually takes
// direction d at this node, with the branching value that run observed
// (spec section 3); a smaller value means that run sits closer to the
// boundary. Two cases follow for a target direction that is unexplored:
//
//   - direction target has itself been taken before (BestValue[target] is
//     finite, even though nothing has grown past it yet): BestInput[target]
//     is a real, observed input that reached target, so it is used directly.
//   - direction target has never been taken (BestValue[target] is +Inf):
//     there is no direct input, so the near-miss evidence recorded on the
//     opposite, explored direction is used instead, since a smaller value
//     there means some run came close to tipping into target.
//
// When both sides are unexplored, both directions are compared this way and
// the more promising one wins.
func (t *Tree) BestInputReaching(id NodeID) (*model.StdinBitsAndTypes, bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	input, _, direction, ok := t.bestEvidence(id)
	return input, direction, ok
}

// BestValueReaching returns the branching value associated with the
// evidence BestInputReaching would pick for id, or +Inf if id has no open
// side or no evidence has been observed yet.
func (t *Tree) BestValueReaching(id NodeID) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, value, _, ok := t.bestEvidence(id)
	if !ok {
		return math.Inf(1)
	}
	return value
}

func (t *Tree) bestEvidence(id NodeID) (*model.StdinBitsAndTypes, float64, bool, bool) {
	n, ok := t.node(id)
	if !ok {
		return nil, math.Inf(1), false, false
	}
	leftOpen := n.Successors[0] == Unexplored
	rightOpen := n.Successors[1] == Unexplored
	if !leftOpen && !rightOpen {
		return nil, math.Inf(1), false, false
	}

	evidenceFor := func(target bool) (*model.StdinBitsAndTypes, float64) {
		d := dirIndex(target)
		if n.BestValue[d] < math.Inf(1) {
			return n.BestInput[d], n.BestValue[d]
		}
		return n.BestInput[1-d], n.BestValue[1-d]
	}

	switch {
	case leftOpen && rightOpen:
		inputFalse, valFalse := evidenceFor(false)
		inputTrue, valTrue := evidenceFor(true)
		if valFalse <= valTrue {
			return inputFalse, valFalse, false, true
		}
		return inputTrue, valTrue, true, true
	case leftOpen:
		input, value := evidenceFor(false)
		return input, value, false, true
	default:
		input, value := evidenceFor(true)
		return input, value, true, true
	}
}
