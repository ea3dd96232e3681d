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
	"math"
	"sort"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/typedmin"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// startCurrentKind starts whichever analysis order[s.kindIdx] names,
// skipping over ones whose precondition doesn't hold for the current leaf,
// until one starts or the sequence is exhausted (in which case the leaf is
// closed and the scheduler moves on).
func (s *Scheduler) startCurrentKind() {
	for s.kindIdx < len(order) {
		n, ok := s.tree.Node(s.leaf)
		if !ok {
			s.finishLeaf()
			return
		}

		switch order[s.kindIdx] {
		case analysis.Sensitivity:
			if n.SensitivityPerformed {
				s.kindIdx++
				continue
			}
			trace := s.leafTrace[s.leaf]
			s.sensitivityPass.Start(s.leaf, s.input, trace)
			return

		case analysis.TypedMinimization:
			if n.TypedMinimizationDone || !typedmin.Applicable(s.input, n.SensitiveBits) {
				s.kindIdx++
				continue
			}
			s.typedPass.Start(s.leaf, n.GUID, s.input, n.SensitiveBits)
			return

		case analysis.BitMinimization:
			if n.MinimizationDone || len(n.SensitiveBits) == 0 {
				s.kindIdx++
				continue
			}
			s.bitPass.Start(s.leaf, n.GUID, s.input.Bits, n.SensitiveBits)
			return

		case analysis.Bitshare:
			if n.BitsharePerformed {
				s.kindIdx++
				continue
			}
			s.sensitive = sortedKeys(n.SensitiveBits)
			s.sharePass.Start(s.cache, s.leaf, s.input, s.sensitive, n.ID.ID, s.direction)
			return
		}
	}
	s.finishLeaf()
}

// nextCandidate asks the currently active analysis for its next input.
func (s *Scheduler) nextCandidate() ([]bool, bool) {
	if s.leaf == tree.Unexplored || s.kindIdx >= len(order) {
		return nil, false
	}
	switch order[s.kindIdx] {
	case analysis.Sensitivity:
		return s.sensitivityPass.GenerateNextInput()
	case analysis.TypedMinimization:
		return s.typedPass.GenerateNextInput()
	case analysis.BitMinimization:
		return s.bitPass.GenerateNextInput()
	case analysis.Bitshare:
		return s.sharePass.GenerateNextInput()
	}
	return nil, false
}

// advance moves past the currently active (now exhausted) analysis to the
// next one in order.
func (s *Scheduler) advance() {
	if s.leaf == tree.Unexplored {
		return
	}
	s.recordKindDone()
	s.kindIdx++
	s.startCurrentKind()
}

// recordKindDone writes the just-finished analysis's phase flag (and, for
// sensitivity, its discovered sensitive bits) back into the tree.
func (s *Scheduler) recordKindDone() {
	switch order[s.kindIdx] {
	case analysis.Sensitivity:
		s.tree.MarkSensitivityPerformed(s.leaf, s.sensitivityPass.ChangedNodes())
	case analysis.TypedMinimization:
		s.tree.MarkTypedMinimizationDone(s.leaf)
	case analysis.BitMinimization:
		s.tree.MarkMinimizationDone(s.leaf)
	case analysis.Bitshare:
		s.tree.MarkBitsharePerformed(s.leaf)
	}
}

// finishLeaf returns the scheduler to the idle state that makes Run call
// pickLeaf again. It is reached two ways: a candidate actually flipped the
// targeted direction (called directly from processResult, kindIdx still
// pointing at whichever analysis found it), or every analysis in order ran
// without flipping it (called from startCurrentKind's fallthrough once
// kindIdx reaches len(order)). Only the second case retires the leaf: there
// is no strategy left to try against it, so it is marked closed rather than
// picked again next cycle.
func (s *Scheduler) finishLeaf() {
	if s.leaf != tree.Unexplored && s.kindIdx >= len(order) {
		s.tree.MarkClosed(s.leaf)
		s.metrics.LeafClosed()
	}
	s.leaf = tree.Unexplored
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// processResult hands a just-executed candidate's outcome to whichever
// analysis produced it, and integrates the execution into the tree.
func (s *Scheduler) processResult(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error {
	truncated := termination == model.Timeout || termination == model.BoundaryConditionViolation
	result, err := s.tree.Integrate(trace, input, truncated)
	if err != nil {
		return err
	}
	s.recordVisited(trace, result)

	// Spec section 7: a crash, a boundary-condition violation, or a timeout
	// (itself treated as a boundary-condition violation per section 5) are
	// all worth keeping as a test case.
	if termination == model.Crash || termination == model.BoundaryConditionViolation || termination == model.Timeout {
		if s.writer != nil {
			if err := s.writer.Write(input, trace, termination); err != nil {
				s.log.Error().Err(err).Msg("failed to persist interesting run")
			}
		}
	}

	if s.leaf == tree.Unexplored {
		return nil
	}

	flipped := s.reachedDirection(trace)
	value := s.valueAtLeaf(trace)

	switch order[s.kindIdx] {
	case analysis.Sensitivity:
		nodeID := func(id tree.NodeID) model.LocationID {
			node, _ := s.tree.Node(id)
			return node.ID
		}
		s.sensitivityPass.ProcessExecutionResults(s.candidateSuffix(trace), s.leaf, nodeID, s.tree.SuccessorOf)
	case analysis.TypedMinimization:
		s.typedPass.ProcessExecutionResults(value, flipped)
	case analysis.BitMinimization:
		s.bitPass.ProcessExecutionResults(value, flipped)
	case analysis.Bitshare:
		s.sharePass.ProcessExecutionResults(flipped)
	}

	// A flip found by a minimization pass or by bitshare itself feeds the
	// bitshare cache, restricted to the leaf's sensitive bits.
	if flipped && order[s.kindIdx] != analysis.Sensitivity {
		n, _ := s.tree.Node(s.leaf)
		s.cache.Record(s.currentLocationID(), s.direction, sliceAt(input.Bits, sortedKeys(n.SensitiveBits)))
	}

	s.metrics.AnalysisOutcome(order[s.kindIdx], flipped)

	if flipped {
		s.finishLeaf()
	}
	return nil
}

func (s *Scheduler) currentLocationID() uint32 {
	n, _ := s.tree.Node(s.leaf)
	return n.ID.ID
}

func sliceAt(bits []bool, indices []int) []bool {
	out := make([]bool, len(indices))
	for i, idx := range indices {
		if idx < len(bits) {
			out[i] = bits[idx]
		}
	}
	return out
}

// reachedDirection reports whether trace actually steered the leaf toward
// the direction the scheduler is targeting.
func (s *Scheduler) reachedDirection(trace model.ExecutionTrace) bool {
	n, ok := s.tree.Node(s.leaf)
	if !ok {
		return false
	}
	for _, info := range trace {
		if info.ID == n.ID && info.Direction == s.direction {
			return true
		}
	}
	return false
}

// valueAtLeaf returns the branching value trace recorded at the leaf's own
// location, or +Inf if the leaf's location was never reached (the mutation
// diverged earlier).
func (s *Scheduler) valueAtLeaf(trace model.ExecutionTrace) float64 {
	n, ok := s.tree.Node(s.leaf)
	if !ok {
		return math.Inf(1)
	}
	for _, info := range trace {
		if info.ID == n.ID {
			return info.Value
		}
	}
	return math.Inf(1)
}

// candidateSuffix slices trace to start at the same position sensitivity's
// baseline trace started at (the leaf's own node), so ProcessExecutionResults
// compares like with like even though trace is a fresh, full execution.
func (s *Scheduler) candidateSuffix(trace model.ExecutionTrace) model.ExecutionTrace {
	n, ok := s.tree.Node(s.leaf)
	if !ok {
		return nil
	}
	for i, info := range trace {
		if info.ID == n.ID {
			return trace[i:]
		}
	}
	return nil
}

// recordVisited remembers, for every node an integration actually walked
// through, the suffix of trace starting at that node -- the baseline C3
// needs the next time that node is worked.
func (s *Scheduler) recordVisited(trace model.ExecutionTrace, result tree.IntegrationResult) {
	cur := s.tree.Root()
	for i, info := range trace {
		s.leafTrace[cur] = trace[i:]
		if cur == result.LastVisited {
			return
		}
		next, ok := s.tree.SuccessorOf(cur, info.Direction)
		if !ok {
			return
		}
		cur = next
	}
}

// execute runs input through the target, records the execution, and feeds
// its outcome back to whichever analysis requested it (kind == analysis.None
// for the bootstrap/blind-fuzzing executions that aren't bound to a leaf).
func (s *Scheduler) execute(ctx context.Context, input *model.StdinBitsAndTypes, kind analysis.Kind) error {
	result, err := s.executor.Execute(ctx, input)
	if err != nil {
		s.log.Error().Err(err).Msg("execution failed")
		return err
	}
	s.executions++
	s.metrics.ExecutionPerformed(kind)
	return s.processResult(input, result.Trace, result.Termination)
}

// blindFuzz generates a random mutation of seed and executes it directly,
// with no leaf bound to the outcome (spec section 9's allow_blind_fuzzing):
// used when every known leaf has been closed or has no actionable evidence,
// to keep discovering new code paths rather than stalling.
func (s *Scheduler) blindFuzz(ctx context.Context, seed *model.StdinBitsAndTypes) error {
	bits := append([]bool(nil), seed.Bits...)
	if len(bits) > 0 {
		flips := 1 + s.rng.Intn(len(bits))
		for i := 0; i < flips; i++ {
			idx := s.rng.Intn(len(bits))
			bits[idx] = !bits[idx]
		}
	}
	input, err := model.NewStdinBitsAndTypes(bits, seed.Types)
	if err != nil {
		return err
	}
	return s.execute(ctx, input, analysis.None)
}
