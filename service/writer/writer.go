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

package writer

import "github.com/staticafi/sbt-fizzer-sub001/model"

// Writer persists one kept execution in some test-suite format and bundles
// everything written so far on Close. Both Native and TestComp satisfy
// scheduler.RecordWriter (whose Write signature this matches exactly)
// without importing that package, so this package stays a leaf dependency.
type Writer interface {
	Write(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error
	Close() error
}

var (
	_ Writer = (*Native)(nil)
	_ Writer = (*TestComp)(nil)
)
