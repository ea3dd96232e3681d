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

import (
	"github.com/hashicorp/go-multierror"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// Multi fans one kept execution out to several Writers, e.g. the native
// JSON format and the test-comp XML format side by side, since
// scheduler.RecordWriter only ever holds a single writer.
type Multi struct {
	writers []Writer
}

// NewMulti wraps writers into a single Writer.
func NewMulti(writers ...Writer) *Multi {
	return &Multi{writers: writers}
}

// Write calls Write on every wrapped writer, collecting every failure
// rather than stopping at the first so a bad TestComp target name, say,
// never silently swallows a Native write.
func (m *Multi) Write(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error {
	var result *multierror.Error
	for _, w := range m.writers {
		if err := w.Write(input, trace, termination); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close closes every wrapped writer, collecting every failure.
func (m *Multi) Close() error {
	var result *multierror.Error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ Writer = (*Multi)(nil)
