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

// Package treedump snapshots the branching tree for offline inspection: a
// CBOR-encoded, gzip-compressed dump of every node's bookkeeping fields,
// grounded on original_source/src/fuzzing/include/fuzzing/dump_tree.hpp.
// It is a supplemental, debug-only feature -- nothing in the scheduler
// reads a dump back in.
package treedump

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// Node is one branching tree node's bookkeeping, flattened for encoding;
// NodeID references between nodes are carried as plain ints since CBOR has
// no pointer concept.
type Node struct {
	ID                    int32      `cbor:"id"`
	LocationID            uint32     `cbor:"location_id"`
	ContextHash           uint32     `cbor:"context_hash"`
	Predecessor           int32      `cbor:"predecessor"`
	DirectionFromParent   bool       `cbor:"direction_from_parent"`
	Successors            [2]int32   `cbor:"successors"`
	BestValue             [2]float64 `cbor:"best_value"`
	Depth                 int        `cbor:"depth"`
	GUID                  uint64     `cbor:"guid"`
	SensitivityPerformed  bool       `cbor:"sensitivity_performed"`
	TypedMinimizationDone bool       `cbor:"typed_minimization_done"`
	MinimizationDone      bool       `cbor:"minimization_done"`
	BitsharePerformed     bool       `cbor:"bitshare_performed"`
	Closed                bool       `cbor:"closed"`
}

// Snapshot is the full dump: every node plus the root id and the set of
// currently open leaves, matching what dump_tree.hpp emits for the
// original's offline tree viewer.
type Snapshot struct {
	Root   int32   `cbor:"root"`
	Nodes  []Node  `cbor:"nodes"`
	Leaves []int32 `cbor:"leaves"`
}

// Build walks t and produces a Snapshot. Safe to call concurrently with the
// scheduler since every Tree accessor used here takes the read lock.
func Build(t *tree.Tree) Snapshot {
	size := t.Size()
	snap := Snapshot{
		Root:  int32(t.Root()),
		Nodes: make([]Node, 0, size),
	}

	for id := 0; id < size; id++ {
		n, ok := t.Node(tree.NodeID(id))
		if !ok {
			continue
		}
		snap.Nodes = append(snap.Nodes, Node{
			ID:                    int32(id),
			LocationID:            n.ID.ID,
			ContextHash:           n.ID.ContextHash,
			Predecessor:           int32(n.Predecessor),
			DirectionFromParent:   n.DirectionFromParent,
			Successors:            [2]int32{int32(n.Successors[0]), int32(n.Successors[1])},
			BestValue:             n.BestValue,
			Depth:                 t.Depth(tree.NodeID(id)),
			GUID:                  n.GUID,
			SensitivityPerformed:  n.SensitivityPerformed,
			TypedMinimizationDone: n.TypedMinimizationDone,
			MinimizationDone:      n.MinimizationDone,
			BitsharePerformed:     n.BitsharePerformed,
			Closed:                n.Closed,
		})
	}

	for _, id := range t.Leaves() {
		snap.Leaves = append(snap.Leaves, int32(id))
	}

	return snap
}

// Encode renders a Snapshot as canonical CBOR wrapped in gzip, the format
// written to the status server's /debug/tree endpoint.
func Encode(snap Snapshot) ([]byte, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	payload, err := mode.Marshal(snap)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode reverses Encode, used only by tests to verify the round trip.
func Decode(data []byte) (Snapshot, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return Snapshot{}, err
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := cbor.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
