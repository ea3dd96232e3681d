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

// Package writer persists the executions worth keeping (crashes and
// boundary-condition violations) as test-suite files, in the two formats
// spec section 6 names. Grounded on
// original_source/src/fuzzing/include/fuzzing/execution_record.hpp (the
// flags/stdin_bytes/stdin_types/path record shape) and dump_native.hpp /
// dump_testcomp.hpp for the two output formats.
package writer

import "github.com/staticafi/sbt-fizzer-sub001/model"

// Flag is one bit of execution_record::execution_flags.
type Flag uint8

const (
	BranchDiscovered Flag = 1 << iota
	BranchCovered
	ExecutionCrashes
	BoundaryConditionViolation
)

// Record is the Go counterpart of execution_record: everything about one
// kept execution that the two output formats draw from.
type Record struct {
	Flags      Flag
	StdinBytes []byte
	StdinTypes []model.TypeOfInputBits
	Path       model.ExecutionPath
}

// newRecord builds a Record from the inputs Scheduler.RecordWriter.Write
// receives. BranchDiscovered/BranchCovered are left unset: computing them
// needs tree-wide context the RecordWriter contract does not carry, so only
// the two flags derivable from termination alone are set here.
func newRecord(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) Record {
	r := Record{
		StdinBytes: model.BitsToBytes(input.Bits),
		StdinTypes: append([]model.TypeOfInputBits(nil), input.Types...),
		Path:       trace.Path(),
	}
	switch termination {
	case model.Crash:
		r.Flags |= ExecutionCrashes
	case model.BoundaryConditionViolation, model.Timeout:
		r.Flags |= BoundaryConditionViolation
	}
	return r
}
