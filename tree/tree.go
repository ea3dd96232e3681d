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

// Package tree implements the persistent branching tree (component C1): a
// DAG of every branching ever observed, keyed by (location_id, path). Nodes
// live in an arena and are referenced by small integer NodeID values, per
// spec section 9's design note, rather than by shared/weak pointers.
package tree

import (
	"errors"
	"math"
	"sync"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// NodeID indexes into the Tree's node arena. Unexplored is the sentinel
// value used in a Node's Successors slots before a child has been attached.
type NodeID int32

// Unexplored marks a successor slot that has not been discovered yet.
const Unexplored NodeID = -1

// ErrInvariantViolation is returned when the tree detects a state that
// should be impossible to reach; per spec section 7 this is an assumption
// failure and callers should abort the run rather than continue.
var ErrInvariantViolation = errors.New("tree: invariant violation")

// Tree is the arena-backed branching tree. The zero value is not usable;
// construct with New. A Tree is safe for concurrent readers (e.g. the
// status server) while a single writer goroutine (the scheduler) calls
// Integrate/MarkClosed.
type Tree struct {
	mu         sync.RWMutex
	nodes      []Node
	root       NodeID
	guidSeq    uint64
	openLeaves map[NodeID]struct{}
}

// New creates an empty tree with no root; the root is created lazily by the
// first call to Integrate.
func New() *Tree {
	return &Tree{
		root:       Unexplored,
		openLeaves: make(map[NodeID]struct{}),
	}
}

func (t *Tree) freshGUID() uint64 {
	t.guidSeq++
	return t.guidSeq
}

// Root returns the root node's id, or Unexplored if the tree has not
// integrated any execution yet.
func (t *Tree) Root() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Node returns a copy of the node's bookkeeping fields, or false if id is
// out of range.
func (t *Tree) Node(id NodeID) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(id)
}

func (t *Tree) node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(t.nodes) {
		return Node{}, false
	}
	return t.nodes[id], true
}

func (t *Tree) newNode(id model.LocationID, predecessor NodeID, directionFromParent bool) NodeID {
	n := Node{
		ID:                  id,
		Predecessor:         predecessor,
		DirectionFromParent: directionFromParent,
		Successors:          [2]NodeID{Unexplored, Unexplored},
		BestValue:           [2]float64{math.Inf(1), math.Inf(1)},
		SensitiveBits:       make(map[int]struct{}),
		GUID:                t.freshGUID(),
	}
	nodeID := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.openLeaves[nodeID] = struct{}{}
	return nodeID
}

// Depth returns the number of ancestors of id (the root has depth 0).
func (t *Tree) Depth(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	depth := 0
	for cur := id; cur != Unexplored; {
		n, ok := t.node(cur)
		if !ok {
			break
		}
		if n.Predecessor == Unexplored {
			break
		}
		depth++
		cur = n.Predecessor
	}
	return depth
}

// Size returns the number of nodes currently in the tree.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Leaves returns the current non-closed frontier: every node with at least
// one Unexplored successor that hasn't been marked closed. The order is
// unspecified; callers that need a priority order sort the result
// themselves (this is what service/scheduler does).
func (t *Tree) Leaves() []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeID, 0, len(t.openLeaves))
	for id := range t.openLeaves {
		out = append(out, id)
	}
	return out
}
