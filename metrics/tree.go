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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// RegisterTreeGauges registers two gauges, sampled from t whenever
// Prometheus scrapes them: the tree's total node count and its open-leaf
// count. The tree itself is a point-in-time snapshot rather than a stream
// of events scheduler.Metrics can push through, so these are GaugeFuncs
// rather than counters Recorder increments.
func RegisterTreeGauges(reg prometheus.Registerer, t *tree.Tree) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sbt_fizzer",
		Name:      "tree_nodes_total",
		Help:      "Number of nodes currently in the branching tree.",
	}, func() float64 { return float64(t.Size()) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sbt_fizzer",
		Name:      "tree_leaves_open",
		Help:      "Number of open (not yet closed) leaves in the branching tree.",
	}, func() float64 { return float64(len(t.Leaves())) }))
}
