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

// Package metrics exposes the scheduler's progress as Prometheus
// instrumentation, grounded on the teacher's service/metrics.Chain
// instrumenting-wrapper pattern (wrap the real component, record around
// each call) adapted here to wrap scheduler.Metrics notifications instead
// of a chain.Chain's method calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/staticafi/sbt-fizzer-sub001/analysis"
)

// Recorder satisfies scheduler.Metrics, translating every notification
// into a Prometheus counter or gauge update.
type Recorder struct {
	executionsTotal *prometheus.CounterVec
	leavesClosed    prometheus.Counter
	outcomesTotal   *prometheus.CounterVec
}

// NewRecorder registers the fuzzer's metrics on reg and returns a Recorder
// ready to hand to scheduler.New.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sbt_fizzer",
			Name:      "executions_total",
			Help:      "Number of times the target was executed, labelled by the analysis driving the candidate.",
		}, []string{"analysis"}),
		leavesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sbt_fizzer",
			Name:      "leaves_closed_total",
			Help:      "Number of branching-tree leaves retired without further strategies to try.",
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sbt_fizzer",
			Name:      "analysis_outcomes_total",
			Help:      "Number of candidates that flipped their target direction, labelled by analysis.",
		}, []string{"analysis"}),
	}

	reg.MustRegister(r.executionsTotal, r.leavesClosed, r.outcomesTotal)
	return r
}

// ExecutionPerformed satisfies scheduler.Metrics.
func (r *Recorder) ExecutionPerformed(kind analysis.Kind) {
	r.executionsTotal.WithLabelValues(kind.String()).Inc()
}

// LeafClosed satisfies scheduler.Metrics.
func (r *Recorder) LeafClosed() {
	r.leavesClosed.Inc()
}

// AnalysisOutcome satisfies scheduler.Metrics.
func (r *Recorder) AnalysisOutcome(kind analysis.Kind, flipped bool) {
	if !flipped {
		return
	}
	r.outcomesTotal.WithLabelValues(kind.String()).Inc()
}
