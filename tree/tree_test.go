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

package tree_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

func loc(id uint32) model.LocationID { return model.LocationID{ID: id} }

func TestIntegrate_GrowsTreeAndUpdatesBest(t *testing.T) {
	tr := tree.New()

	trace := model.ExecutionTrace{
		{ID: loc(1), Direction: false, Value: 5},
		{ID: loc(2), Direction: true, Value: 3},
	}
	res, err := tr.Integrate(trace, nil, false)
	require.NoError(t, err)
	require.Len(t, res.NewLeaves, 2)

	root := tr.Root()
	assert.Equal(t, res.NewLeaves[0], root)

	n, ok := tr.Node(root)
	require.True(t, ok)
	assert.Equal(t, 5.0, n.BestValue[0])
	assert.Equal(t, math.Inf(1), n.BestValue[1])
}

func TestIntegrate_IsIdempotent(t *testing.T) {
	tr := tree.New()
	trace := model.ExecutionTrace{
		{ID: loc(1), Direction: false, Value: 5},
		{ID: loc(2), Direction: true, Value: 3},
	}
	_, err := tr.Integrate(trace, nil, false)
	require.NoError(t, err)
	sizeBefore := tr.Size()

	res2, err := tr.Integrate(trace, nil, false)
	require.NoError(t, err)
	assert.Empty(t, res2.NewLeaves)
	assert.Equal(t, sizeBefore, tr.Size())
}

func TestIntegrate_BestValueMonotonicallyNonIncreasing(t *testing.T) {
	tr := tree.New()
	trace1 := model.ExecutionTrace{{ID: loc(1), Direction: false, Value: 5}}
	trace2 := model.ExecutionTrace{{ID: loc(1), Direction: false, Value: 2}}
	trace3 := model.ExecutionTrace{{ID: loc(1), Direction: false, Value: 9}}

	_, err := tr.Integrate(trace1, nil, false)
	require.NoError(t, err)
	_, err = tr.Integrate(trace2, nil, false)
	require.NoError(t, err)
	_, err = tr.Integrate(trace3, nil, false)
	require.NoError(t, err)

	n, _ := tr.Node(tr.Root())
	assert.Equal(t, 2.0, n.BestValue[0])
}

func TestIntegrate_TruncatedTraceDoesNotGrowPastBoundary(t *testing.T) {
	tr := tree.New()
	trace := model.ExecutionTrace{
		{ID: loc(1), Direction: false, Value: 5},
	}
	res, err := tr.Integrate(trace, nil, true)
	require.NoError(t, err)
	require.Len(t, res.NewLeaves, 1)

	n, _ := tr.Node(res.NewLeaves[0])
	assert.True(t, n.BoundaryTruncatedHere)
	assert.Equal(t, tree.Unexplored, n.Successors[0])
	assert.Equal(t, tree.Unexplored, n.Successors[1])
}

func TestIntegrate_EmptyTraceIsNoOp(t *testing.T) {
	tr := tree.New()
	res, err := tr.Integrate(nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, res.NewLeaves)
	assert.Equal(t, tree.Unexplored, tr.Root())
}

func TestMarkClosed_PropagatesToParent(t *testing.T) {
	tr := tree.New()
	trace := model.ExecutionTrace{
		{ID: loc(1), Direction: false, Value: 5},
		{ID: loc(2), Direction: true, Value: 3},
	}
	res, err := tr.Integrate(trace, nil, false)
	require.NoError(t, err)
	root := tr.Root()
	child := res.NewLeaves[1]

	// Root isn't closed yet: its "true" side is still unexplored.
	rootNode, _ := tr.Node(root)
	assert.False(t, rootNode.Closed)

	// Discover root's other side as a new leaf (a child is attached only for
	// a trace entry that follows the root's).
	trace2 := model.ExecutionTrace{
		{ID: loc(1), Direction: true, Value: 1},
		{ID: loc(3), Direction: false, Value: 1},
	}
	res2, err := tr.Integrate(trace2, nil, false)
	require.NoError(t, err)
	require.Len(t, res2.NewLeaves, 1)
	otherChild := res2.NewLeaves[0]

	tr.MarkClosed(otherChild)
	rootNode, _ = tr.Node(root)
	assert.False(t, rootNode.Closed, "root still open: first child not closed")

	tr.MarkClosed(child)
	rootNode, _ = tr.Node(root)
	assert.True(t, rootNode.Closed, "root closes once both children are closed")

	assert.NotContains(t, tr.Leaves(), root)
}

func TestBestInputReaching_BothSidesUnexplored_PicksSmallerValue(t *testing.T) {
	tr := tree.New()
	s1, err := model.NewStdinBitsAndTypes(nil, nil)
	require.NoError(t, err)
	s2, err := model.NewStdinBitsAndTypes(nil, nil)
	require.NoError(t, err)

	_, err = tr.Integrate(model.ExecutionTrace{{ID: loc(1), Direction: false, Value: 5}}, s1, false)
	require.NoError(t, err)
	_, err = tr.Integrate(model.ExecutionTrace{{ID: loc(1), Direction: true, Value: 2}}, s2, false)
	require.NoError(t, err)

	root := tr.Root()
	n, _ := tr.Node(root)
	assert.False(t, n.Closed)

	input, direction, ok := tr.BestInputReaching(root)
	require.True(t, ok)
	assert.True(t, direction)
	assert.Same(t, s2, input)
}

func TestBestInputReaching_OneSideUnexplored_UsesOppositeDirectionEvidence(t *testing.T) {
	tr := tree.New()
	s1, err := model.NewStdinBitsAndTypes(nil, nil)
	require.NoError(t, err)

	// A two-step trace that takes "false" at the root with value 5: this is
	// the near-miss evidence for flipping the root's "true" side, which
	// remains unexplored.
	_, err = tr.Integrate(model.ExecutionTrace{
		{ID: loc(1), Direction: false, Value: 5},
		{ID: loc(2), Direction: true, Value: 1},
	}, s1, false)
	require.NoError(t, err)

	root := tr.Root()
	input, direction, ok := tr.BestInputReaching(root)
	require.True(t, ok)
	assert.True(t, direction, "the unexplored side is 'true'")
	assert.Same(t, s1, input, "evidence comes from the explored 'false' side")
}
