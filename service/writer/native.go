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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// nativePathEntry is one element of a native test file's "path" array.
type nativePathEntry struct {
	LocationID  string `json:"location_id"`
	ContextHash string `json:"context_hash"`
	Direction   bool   `json:"direction"`
}

// nativeRecord is the JSON shape spec section 6's "native" test format
// names: flags, stdin_bytes (hex), stdin_types, path.
type nativeRecord struct {
	Flags      Flag              `json:"flags"`
	StdinBytes string            `json:"stdin_bytes"`
	StdinTypes []string          `json:"stdin_types"`
	Path       []nativePathEntry `json:"path"`
}

// Native writes one JSON file per kept execution, grounded on
// original_source/src/fuzzing/include/fuzzing/dump_native.hpp.
type Native struct {
	dir  string
	next int
}

// NewNative creates a native-format writer that places one JSON file per
// test under dir (created if necessary).
func NewNative(dir string) (*Native, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("writer: create output dir: %w", err)
	}
	return &Native{dir: dir}, nil
}

// Write satisfies scheduler.RecordWriter.
func (w *Native) Write(input *model.StdinBitsAndTypes, trace model.ExecutionTrace, termination model.TerminationKind) error {
	record := newRecord(input, trace, termination)

	types := make([]string, len(record.StdinTypes))
	for i, t := range record.StdinTypes {
		types[i] = t.String()
	}
	path := make([]nativePathEntry, len(record.Path))
	for i, step := range record.Path {
		path[i] = nativePathEntry{
			LocationID:  fmt.Sprintf("%d", step.ID.ID),
			ContextHash: fmt.Sprintf("%08x", step.ID.ContextHash),
			Direction:   step.Direction,
		}
	}

	out := nativeRecord{
		Flags:      record.Flags,
		StdinBytes: hex.EncodeToString(record.StdinBytes),
		StdinTypes: types,
		Path:       path,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("writer: marshal native record: %w", err)
	}

	name := filepath.Join(w.dir, fmt.Sprintf("test-%05d.json", w.next))
	w.next++
	return os.WriteFile(name, data, 0o644)
}

// Close gzips every test file written so far into dir/bundle.tar.gz.
func (w *Native) Close() error { return bundle(w.dir) }
