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

package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

var rootLocation = model.LocationID{ID: 1}

// singleBranchExecutor simulates a target with exactly one branching: it
// takes the direction bit.Bits[0] and reports a constant branching value,
// letting tests drive the scheduler without a real subprocess.
type singleBranchExecutor struct {
	crashOn func(*model.StdinBitsAndTypes) bool
}

func (e *singleBranchExecutor) Execute(_ context.Context, input *model.StdinBitsAndTypes) (Result, error) {
	taken := len(input.Bits) > 0 && input.Bits[0]
	value := 2.0
	if taken {
		value = 1.0
	}
	trace := model.ExecutionTrace{{ID: rootLocation, Direction: taken, Value: value}}
	termination := model.Normal
	if e.crashOn != nil && e.crashOn(input) {
		termination = model.Crash
	}
	return Result{Trace: trace, Termination: termination}, nil
}

type recordingWriter struct {
	writes int
}

func (w *recordingWriter) Write(*model.StdinBitsAndTypes, model.ExecutionTrace, model.TerminationKind) error {
	w.writes++
	return nil
}

type recordingMetrics struct {
	executions int
	closed     int
	outcomes   map[analysis.Kind]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[analysis.Kind]int)}
}

func (m *recordingMetrics) ExecutionPerformed(analysis.Kind) { m.executions++ }
func (m *recordingMetrics) LeafClosed()                      { m.closed++ }
func (m *recordingMetrics) AnalysisOutcome(kind analysis.Kind, flipped bool) {
	if flipped {
		m.outcomes[kind]++
	}
}

func seedInput(t *testing.T) *model.StdinBitsAndTypes {
	t.Helper()
	input, err := model.NewStdinBitsAndTypes([]bool{false}, []model.TypeOfInputBits{model.BOOLEAN})
	require.NoError(t, err)
	return input
}

func TestScheduler_RunStopsOnExecutionBudget(t *testing.T) {
	tr := tree.New()
	metrics := newRecordingMetrics()
	budget := Budget{MaxExecutions: 25}
	s := New(zerolog.Nop(), tr, &singleBranchExecutor{}, nil, budget, metrics)

	err := s.Run(context.Background(), seedInput(t))
	require.NoError(t, err)
	require.Equal(t, 25, metrics.executions)
	require.GreaterOrEqual(t, tr.Size(), 1)
}

func TestScheduler_RunStopsWhenContextCancelled(t *testing.T) {
	tr := tree.New()
	budget := Budget{MaxExecutions: 100000}
	s := New(zerolog.Nop(), tr, &singleBranchExecutor{}, nil, budget, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, seedInput(t))
	require.Error(t, err)
}

func TestScheduler_ClosesLeafWhenNoAnalysisApplies(t *testing.T) {
	// A tree whose only leaf has no sensitive bits recorded and is already
	// past every phase flag closes on the very first pickLeaf cycle, since
	// startCurrentKind's loop falls through immediately.
	tr := tree.New()
	_, err := tr.Integrate(model.ExecutionTrace{{ID: rootLocation, Direction: false, Value: 2.0}}, seedInput(t), false)
	require.NoError(t, err)

	root := tr.Root()
	tr.MarkSensitivityPerformed(root, nil)
	tr.MarkTypedMinimizationDone(root)
	tr.MarkMinimizationDone(root)
	tr.MarkBitsharePerformed(root)

	metrics := newRecordingMetrics()
	budget := Budget{MaxExecutions: 5}
	s := New(zerolog.Nop(), tr, &singleBranchExecutor{}, nil, budget, metrics)

	err = s.Run(context.Background(), seedInput(t))
	require.NoError(t, err)

	node, ok := tr.Node(root)
	require.True(t, ok)
	require.True(t, node.Closed)
	require.Equal(t, 1, metrics.closed)
}

func TestScheduler_WritesCrashingRuns(t *testing.T) {
	tr := tree.New()
	writer := &recordingWriter{}
	executor := &singleBranchExecutor{
		crashOn: func(input *model.StdinBitsAndTypes) bool {
			return len(input.Bits) > 0 && input.Bits[0]
		},
	}
	budget := Budget{MaxExecutions: 40}
	s := New(zerolog.Nop(), tr, executor, writer, budget, nil)

	err := s.Run(context.Background(), seedInput(t))
	require.NoError(t, err)
	require.Greater(t, writer.writes, 0)
}

func TestScheduler_BlindFuzzingWhenNoOpenLeaves(t *testing.T) {
	tr := tree.New()
	_, err := tr.Integrate(model.ExecutionTrace{{ID: rootLocation, Direction: false, Value: 2.0}}, seedInput(t), false)
	require.NoError(t, err)
	root := tr.Root()
	tr.MarkClosed(root)

	metrics := newRecordingMetrics()
	budget := Budget{MaxExecutions: 10, AllowBlindFuzzing: true}
	s := New(zerolog.Nop(), tr, &singleBranchExecutor{}, nil, budget, metrics)

	err = s.Run(context.Background(), seedInput(t))
	require.NoError(t, err)
	require.Equal(t, 10, metrics.executions)
}

func TestScheduler_StopsImmediatelyWhenNoOpenLeavesAndBlindFuzzingDisabled(t *testing.T) {
	tr := tree.New()
	_, err := tr.Integrate(model.ExecutionTrace{{ID: rootLocation, Direction: false, Value: 2.0}}, seedInput(t), false)
	require.NoError(t, err)
	tr.MarkClosed(tr.Root())

	metrics := newRecordingMetrics()
	budget := Budget{MaxExecutions: 1000, AllowBlindFuzzing: false}
	s := New(zerolog.Nop(), tr, &singleBranchExecutor{}, nil, budget, metrics)

	err = s.Run(context.Background(), seedInput(t))
	require.NoError(t, err)
	// No execution at all: the root already exists so Run skips the
	// bootstrap, and the closed root leaves pickLeaf with nothing to do.
	require.Equal(t, 0, metrics.executions)
}
