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

import "github.com/staticafi/sbt-fizzer-sub001/model"

// Node is one branching ever observed. Successors, BestValue and BestInput
// are indexed by direction: index 0 is the "false" direction, index 1 is
// "true". BestInput holds a reference to the input that produced the best
// observed value for that direction; it is conceptually a weak handle (spec
// section 3) in that the tree does not keep it alive on the input's behalf,
// it simply stops pointing at it once a better input supersedes it.
type Node struct {
	ID                  model.LocationID
	Predecessor         NodeID
	DirectionFromParent bool

	Successors [2]NodeID
	BestValue  [2]float64
	BestInput  [2]*model.StdinBitsAndTypes

	SensitiveBits map[int]struct{}

	SensitivityPerformed     bool
	TypedMinimizationDone    bool
	MinimizationDone         bool
	BitsharePerformed        bool
	Closed                   bool
	BoundaryTruncatedHere    bool

	GUID uint64
}

func dirIndex(d bool) int {
	if d {
		return 1
	}
	return 0
}

// IsLeaf reports whether the node has at least one Unexplored successor and
// has not been closed.
func (n *Node) IsLeaf() bool {
	if n.Closed {
		return false
	}
	return n.Successors[0] == Unexplored || n.Successors[1] == Unexplored
}

// HasUnexploredSide reports whether direction d is still Unexplored.
func (n *Node) HasUnexploredSide(d bool) bool {
	return n.Successors[dirIndex(d)] == Unexplored
}
