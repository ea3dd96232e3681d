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

// Package scheduler implements component C7, the fuzzing loop: pick the
// most promising open leaf, run it through the fixed sequence of analyses,
// integrate every execution back into the tree, and repeat until the
// configured budget runs out. Grounded on
// original_source/src/fuzzing/include/fuzzing/fuzzing_loop.hpp and .cpp.
package scheduler

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/bitmin"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/bitshare"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/sensitivity"
	"github.com/staticafi/sbt-fizzer-sub001/analysis/typedmin"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// Budget bounds one scheduler run, mirroring original_source's
// termination_info (spec section 5).
type Budget struct {
	MaxExecutions     uint64
	MaxSeconds        float64
	AllowBlindFuzzing bool
}

func (b Budget) exhausted(executions uint64, started time.Time) (bool, string) {
	if b.MaxExecutions > 0 && executions >= b.MaxExecutions {
		return true, "execution budget exhausted"
	}
	if b.MaxSeconds > 0 && time.Since(started).Seconds() >= b.MaxSeconds {
		return true, "time budget exhausted"
	}
	return false, ""
}

// Executor runs one candidate input against the target (spec section 6's
// wire protocol) and reports what happened. An interface here so the
// scheduler can be driven by a fake target in tests.
type Executor interface {
	Execute(ctx context.Context, input *model.StdinBitsAndTypes) (Result, error)
}

// Result is the outcome of one execution of the target.
type Result struct {
	Trace       model.ExecutionTrace
	Termination model.TerminationKind
}

// Truncated reports whether the tree must stop growing past this result's
// final trace entry (spec section 7): once the target times out or trips a
// boundary-condition check, nothing past that point is trustworthy.
func (r Result) Truncated() bool {
	return r.Termination == model.Timeout || r.Termination == model.BoundaryConditionViolation
}

// RecordWriter persists a run worth keeping (a crash or boundary-condition
// violation); normal runs are only reflected into the tree.
type RecordWriter interface {
	Write(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error
}

// Metrics receives scheduler progress. Implemented by the metrics package's
// prometheus recorder; kept as a narrow interface here so this package
// never imports prometheus/client_golang directly.
type Metrics interface {
	ExecutionPerformed(kind analysis.Kind)
	LeafClosed()
	AnalysisOutcome(kind analysis.Kind, flipped bool)
}

type noopMetrics struct{}

func (noopMetrics) ExecutionPerformed(analysis.Kind)   {}
func (noopMetrics) LeafClosed()                        {}
func (noopMetrics) AnalysisOutcome(analysis.Kind, bool) {}

// order is the fixed sequence every leaf is run through (spec section 9):
// sensitivity always first, since the other three consume its output.
var order = [...]analysis.Kind{
	analysis.Sensitivity,
	analysis.TypedMinimization,
	analysis.BitMinimization,
	analysis.Bitshare,
}

// Scheduler drives the loop. It dispatches on a tagged union of the four
// concrete analysis types (sensitivityPass/typedPass/bitPass/sharePass)
// rather than a shared interface, per spec section 9's design note: each
// analysis carries differently-shaped internal state (sensitivity compares
// two traces lock-step; typedmin/bitmin carry a gradient-descent engine;
// bitshare replays cached subsequences) and forcing them through one
// interface would either erase that state or hide it behind an
// interface{}. The switch in dispatch.go is the honest version of that.
type Scheduler struct {
	log      zerolog.Logger
	tree     *tree.Tree
	executor Executor
	writer   RecordWriter
	cache    *bitshare.Cache
	budget   Budget
	metrics  Metrics
	rng      *rand.Rand

	executions uint64
	started    time.Time

	// Per-leaf working state, valid while leaf != tree.Unexplored.
	leaf       tree.NodeID
	direction  bool
	input      *model.StdinBitsAndTypes
	kindIdx    int
	sensitive  []int // sorted sensitive bit indices, filled after C3

	// leafTrace remembers, for every node touched by an Integrate call, the
	// suffix of the trace that created it (starting at that node) -- the
	// lock-step baseline component C3 needs the next time that node is
	// worked.
	leafTrace map[tree.NodeID]model.ExecutionTrace

	sensitivityPass *sensitivity.Analysis
	typedPass       *typedmin.Analysis
	bitPass         *bitmin.Analysis
	sharePass       *bitshare.Analysis
}

// New creates a scheduler over t. metrics may be nil.
func New(log zerolog.Logger, t *tree.Tree, executor Executor, writer RecordWriter, budget Budget, metrics Metrics) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scheduler{
		log:             log.With().Str("component", "scheduler").Logger(),
		tree:            t,
		executor:        executor,
		writer:          writer,
		cache:           bitshare.NewCache(),
		budget:          budget,
		metrics:         metrics,
		rng:             rand.New(rand.NewSource(1)),
		leaf:            tree.Unexplored,
		leafTrace:       make(map[tree.NodeID]model.ExecutionTrace),
		sensitivityPass: sensitivity.New(),
		typedPass:       typedmin.New(),
		bitPass:         bitmin.New(),
		sharePass:       bitshare.New(),
	}
}

// Run drives the loop until the budget is exhausted, the context is
// cancelled, or there is nothing left to do. seed bootstraps the tree on
// the first call if it is still empty.
func (s *Scheduler) Run(ctx context.Context, seed *model.StdinBitsAndTypes) error {
	s.started = time.Now()

	if s.tree.Root() == tree.Unexplored {
		if err := s.execute(ctx, seed, analysis.None); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done, reason := s.budget.exhausted(s.executions, s.started); done {
			s.log.Info().Str("reason", reason).Uint64("executions", s.executions).Msg("scheduler stopping")
			return nil
		}

		if s.leaf == tree.Unexplored {
			if !s.pickLeaf() {
				if !s.budget.AllowBlindFuzzing {
					s.log.Info().Msg("no open leaves, blind fuzzing disabled, stopping")
					return nil
				}
				if err := s.blindFuzz(ctx, seed); err != nil {
					return err
				}
				continue
			}
		}

		bits, ok := s.nextCandidate()
		if !ok {
			s.advance()
			continue
		}

		input, err := model.NewStdinBitsAndTypes(bits, s.input.Types)
		if err != nil {
			return err
		}
		if err := s.execute(ctx, input, order[s.kindIdx]); err != nil {
			return err
		}
	}
}

// Tree exposes the branching tree for read-only introspection (the status
// server's /debug/tree endpoint and the tree-size/open-leaf gauges); the
// tree itself guards concurrent readers against the scheduler goroutine.
func (s *Scheduler) Tree() *tree.Tree {
	return s.tree
}

// Outcomes is the per-analysis performance-statistics table (spec section
// 8's performance bounds), aggregated from the four passes' running
// counters, grounded on original_source's analysis_outcomes.hpp.
type Outcomes struct {
	Executions  uint64
	Sensitivity analysis.Statistics
	Typed       analysis.Statistics
	Bit         analysis.Statistics
	Bitshare    analysis.Statistics
}

// Outcomes reports the current performance-statistics snapshot; safe to
// call from another goroutine once the scheduler has stopped, and
// reasonably safe (if slightly racy) to poll from the status server while
// it is still running, since each field is read independently.
func (s *Scheduler) Outcomes() Outcomes {
	return Outcomes{
		Executions:  s.executions,
		Sensitivity: s.sensitivityPass.Statistics(),
		Typed:       s.typedPass.Statistics(),
		Bit:         s.bitPass.Statistics(),
		Bitshare:    s.sharePass.Statistics(),
	}
}

// pickLeaf selects the open leaf with the smallest BestValueReaching,
// breaking ties by shallower depth then smaller guid (spec section 9), and
// begins working on it. Returns false if there are no open leaves with any
// evidence to act on.
func (s *Scheduler) pickLeaf() bool {
	var (
		best          = tree.Unexplored
		bestValue     = math.Inf(1)
		bestDepth     = 0
		bestGUID      = uint64(0)
		bestDirection = false
		bestInput     *model.StdinBitsAndTypes
	)

	for _, id := range s.tree.Leaves() {
		input, direction, ok := s.tree.BestInputReaching(id)
		if !ok || input == nil {
			continue
		}
		value := s.tree.BestValueReaching(id)
		depth := s.tree.Depth(id)
		n, _ := s.tree.Node(id)

		better := best == tree.Unexplored ||
			value < bestValue ||
			(value == bestValue && depth < bestDepth) ||
			(value == bestValue && depth == bestDepth && n.GUID < bestGUID)
		if better {
			best, bestValue, bestDepth, bestGUID = id, value, depth, n.GUID
			bestDirection, bestInput = direction, input
		}
	}

	if best == tree.Unexplored {
		return false
	}
	s.beginLeaf(best, bestDirection, bestInput)
	return true
}

// beginLeaf sets up the per-leaf working state and starts the first
// applicable analysis in order (spec section 9).
func (s *Scheduler) beginLeaf(id tree.NodeID, direction bool, input *model.StdinBitsAndTypes) {
	s.leaf = id
	s.direction = direction
	s.input = input
	s.kindIdx = 0
	s.sensitive = nil
	s.startCurrentKind()
}
