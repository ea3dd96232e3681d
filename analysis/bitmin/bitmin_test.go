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

package bitmin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/analysis/bitmin"
	"github.com/staticafi/sbt-fizzer-sub001/model"
)

func TestBitmin_GeneratesOnlyOverSensitiveBits(t *testing.T) {
	bits := model.BytesToBits([]byte{0x00}, 8)
	sensitive := map[int]struct{}{1: {}, 3: {}}

	a := bitmin.New()
	a.Start(0, 42, bits, sensitive)
	require.True(t, a.IsBusy())

	seen := make(map[int]int)
	for i := 0; i < 200; i++ {
		candidate, ok := a.GenerateNextInput()
		if !ok {
			break
		}
		require.Len(t, candidate, len(bits))
		for idx := range candidate {
			if candidate[idx] != bits[idx] {
				seen[idx]++
			}
		}
		ok2 := a.ProcessExecutionResults(1, false)
		assert.False(t, ok2)
	}
	for idx := range seen {
		_, sens := sensitive[idx]
		assert.True(t, sens, "candidate differed outside the sensitive set at bit %d", idx)
	}
}

func TestBitmin_StopsOnFlip(t *testing.T) {
	bits := model.BytesToBits([]byte{0x00}, 4)
	sensitive := map[int]struct{}{0: {}, 1: {}, 2: {}, 3: {}}

	a := bitmin.New()
	a.Start(5, 1, bits, sensitive)

	_, ok := a.GenerateNextInput()
	require.True(t, ok)

	success := a.ProcessExecutionResults(0, true)
	assert.True(t, success)
	assert.True(t, a.IsReady())
}

func TestBitmin_SuppressesDuplicateCandidates(t *testing.T) {
	bits := model.BytesToBits([]byte{0x00}, 2)
	sensitive := map[int]struct{}{0: {}, 1: {}}

	a := bitmin.New()
	a.Start(0, 99, bits, sensitive)

	total := 0
	for {
		_, ok := a.GenerateNextInput()
		if !ok {
			break
		}
		total++
		if a.ProcessExecutionResults(1, false) {
			break
		}
		if total > 500 {
			t.Fatal("bitmin did not terminate")
		}
	}
	stats := a.Statistics()
	assert.Equal(t, uint64(total), stats.GeneratedInputs)
	assert.Greater(t, stats.SuppressedRepetitions, uint64(0))
}
