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

// Package iomodel names the stdin/stdout replay models the executor
// contract accepts. The engine only ever carries the model name through to
// the configuration record sent to the target (spec section 6); the replay
// behaviour itself lives in the target-side driver. Grounded on
// original_source/code/iomodels/stdin_replay_bits_then_repeat_85.hpp and
// src/iomodels/stdin_replay_bytes_then_repeat_byte.hpp, which name the two
// models this registry validates against.
package iomodel

import "fmt"

// Model is one of the named stdin/stdout replay strategies the target
// driver supports.
type Model string

const (
	// ReplayBitsThenRepeat85 replays the supplied bits and, once exhausted,
	// repeats a fixed 0x85 bit pattern for any further reads.
	ReplayBitsThenRepeat85 Model = "replay_bits_then_repeat_85"

	// ReplayBytesThenRepeatByte replays the supplied bytes and, once
	// exhausted, repeats the final byte for any further reads.
	ReplayBytesThenRepeatByte Model = "replay_bytes_then_repeat_byte"
)

// Names lists every model this build recognises, in a stable order.
func Names() []string {
	return []string{string(ReplayBitsThenRepeat85), string(ReplayBytesThenRepeatByte)}
}

// Valid reports whether name is a recognised model.
func Valid(name string) bool {
	switch Model(name) {
	case ReplayBitsThenRepeat85, ReplayBytesThenRepeatByte:
		return true
	default:
		return false
	}
}

// Parse validates name against the registry, returning an error that names
// every accepted value if it doesn't match.
func Parse(name string) (Model, error) {
	if !Valid(name) {
		return "", fmt.Errorf("iomodel: unrecognised model %q, want one of %v", name, Names())
	}
	return Model(name), nil
}
