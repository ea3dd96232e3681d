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

// Package codec provides the deterministic binary encoding used whenever a
// StdinBitsAndTypes needs to cross a boundary inside this process that isn't
// the wire protocol to the target: snapshotting it for the tree dump, and
// round-tripping it in tests, per spec section 8's round-trip property.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// wireForm is the CBOR-friendly shape of a StdinBitsAndTypes: the exported
// fields only, since the bit-to-chunk lookup table is derived data that
// NewStdinBitsAndTypes recomputes on decode.
type wireForm struct {
	Bits  []bool                  `cbor:"1,keyasint"`
	Types []model.TypeOfInputBits `cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	return mode
}()

// Marshal encodes s deterministically (canonical CBOR: sorted map keys,
// shortest-form integers), so that two equal inputs always produce the same
// bytes.
func Marshal(s *model.StdinBitsAndTypes) ([]byte, error) {
	w := wireForm{Bits: s.Bits, Types: s.Types}
	data, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("could not encode stdin bits and types: %w", err)
	}
	return data, nil
}

// Unmarshal decodes bytes produced by Marshal, rebuilding the bit-to-chunk
// lookup table.
func Unmarshal(data []byte) (*model.StdinBitsAndTypes, error) {
	var w wireForm
	err := cbor.Unmarshal(data, &w)
	if err != nil {
		return nil, fmt.Errorf("could not decode stdin bits and types: %w", err)
	}
	s, err := model.NewStdinBitsAndTypes(w.Bits, w.Types)
	if err != nil {
		return nil, fmt.Errorf("decoded stdin bits and types are inconsistent: %w", err)
	}
	return s, nil
}
