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
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// TestComp writes one XML file per kept execution, conforming to the
// `testcase 1.1` DTD (spec section 6), grounded on
// original_source/src/fuzzing/src/dump_testcomp.cpp's save_testcomp_test /
// save_testcomp_test_inputs, hand-built the same way the original streams
// it (fmt.Fprintf rather than encoding/xml.Marshal, since the DTD's exact
// header and element shape is part of the contract consumers parse
// against, not a generic struct-to-XML mapping).
type TestComp struct {
	dir     string
	program string
	next    int
}

// NewTestComp creates a test-comp writer that places one XML file per test
// under dir (created if necessary). program names the target binary, used
// by the metadata file test-comp consumers expect alongside the tests.
func NewTestComp(dir, program string) (*TestComp, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("writer: create output dir: %w", err)
	}
	w := &TestComp{dir: dir, program: program}
	if err := w.writeMetadata(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *TestComp) writeMetadata() error {
	var buf bytes.Buffer
	buf.WriteString("<?xml version='1.0' encoding='UTF-8' standalone='no'?>\n")
	buf.WriteString("<!DOCTYPE test-metadata PUBLIC \"+//IDN sosy-lab.org//DTD ")
	buf.WriteString("test-format test-metadata 1.1//EN\" ")
	buf.WriteString("\"https://sosy-lab.org/test-format/test-metadata-1.1.dtd\">\n")
	buf.WriteString("<test-metadata>\n")
	buf.WriteString("  <sourcecodelang>C</sourcecodelang>\n")
	buf.WriteString("  <producer>sbt-fizzer-sub001</producer>\n")
	buf.WriteString("  <specification>COVER( init(main()), FQL(COVER EDGES(@DECISIONEDGE)) )</specification>\n")
	fmt.Fprintf(&buf, "  <programfile>%s</programfile>\n", w.program)
	buf.WriteString("  <programhash>null</programhash>\n")
	buf.WriteString("  <entryfunction>main</entryfunction>\n")
	buf.WriteString("  <architecture>32bit</architecture>\n")
	buf.WriteString("</test-metadata>")

	return os.WriteFile(filepath.Join(w.dir, "metadata.xml"), buf.Bytes(), 0o644)
}

// Write satisfies scheduler.RecordWriter.
func (w *TestComp) Write(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error {
	record := newRecord(input, trace, termination)
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\"?>\n")
	buf.WriteString("<!DOCTYPE testcase PUBLIC \"+//IDN sosy-lab.org//DTD test-format testcase ")
	buf.WriteString("1.1//EN\" \"https://sosy-lab.org/test-format/testcase-1.1.dtd\">\n")
	buf.WriteString("<testcase>\n")
	if err := writeTestInputs(&buf, record); err != nil {
		return err
	}
	buf.WriteString("</testcase>")

	name := filepath.Join(w.dir, fmt.Sprintf("test-%05d.xml", w.next))
	w.next++
	return os.WriteFile(name, buf.Bytes(), 0o644)
}

// Close gzips every test file (and the metadata document) written so far
// into dir/bundle.tar.gz.
func (w *TestComp) Close() error { return bundle(w.dir) }

func writeTestInputs(buf *bytes.Buffer, record Record) error {
	totalBits := 0
	for _, t := range record.StdinTypes {
		totalBits += t.Width()
	}
	bits := model.BytesToBits(record.StdinBytes, totalBits)
	input, err := model.NewStdinBitsAndTypes(bits, record.StdinTypes)
	if err != nil {
		return fmt.Errorf("writer: rebuild chunk values: %w", err)
	}

	for chunk, t := range record.StdinTypes {
		value := input.ChunkValue(bits, chunk)
		buf.WriteString("  <input")
		if cType, ok := cTypeName(t); ok {
			fmt.Fprintf(buf, " type=%q", cType)
		}
		buf.WriteByte('>')
		buf.WriteString(formatTestCompValue(t, value))
		buf.WriteString("</input>\n")
	}
	return nil
}

// cTypeName maps a chunk's type to the C type name test-comp consumers
// expect in the input element's type attribute. UNTYPED8 has no C
// counterpart (it is raw, unreinterpreted bytes), so it is reported as
// unknown and the attribute is omitted, matching is_known_type's role in
// the original save_testcomp_test_inputs.
func cTypeName(t model.TypeOfInputBits) (string, bool) {
	switch t {
	case model.BOOLEAN:
		return "_Bool", true
	case model.U8:
		return "unsigned char", true
	case model.S8:
		return "char", true
	case model.U16:
		return "unsigned short", true
	case model.S16:
		return "short", true
	case model.U32:
		return "unsigned int", true
	case model.S32:
		return "int", true
	case model.U64:
		return "unsigned long long", true
	case model.S64:
		return "long long", true
	case model.F32:
		return "float", true
	case model.F64:
		return "double", true
	default:
		return "", false
	}
}

// formatTestCompValue renders a chunk's reinterpreted float64 back into the
// literal text its C type would print as.
func formatTestCompValue(t model.TypeOfInputBits, v float64) string {
	switch t {
	case model.F32:
		return strconv.FormatFloat(v, 'g', -1, 32)
	case model.F64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case model.BOOLEAN:
		if v != 0 {
			return "true"
		}
		return "false"
	default:
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
}
