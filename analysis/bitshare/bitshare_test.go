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

package bitshare_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/analysis/bitshare"
	"github.com/staticafi/sbt-fizzer-sub001/model"
)

func TestCache_RecordAndCandidates_MostRecentFirst(t *testing.T) {
	c := bitshare.NewCache()
	c.Record(7, true, []bool{true, false})
	c.Record(7, true, []bool{false, false})

	got := c.Candidates(7, true)
	require.Len(t, got, 2)
	assert.Equal(t, []bool{false, false}, got[0])
	assert.Equal(t, []bool{true, false}, got[1])

	assert.Empty(t, c.Candidates(7, false))
	assert.Empty(t, c.Candidates(99, true))
}

func TestCache_EvictsOldestPastCapacity(t *testing.T) {
	c := bitshare.NewCache()
	for i := 0; i < 15; i++ {
		c.Record(1, false, []bool{i%2 == 0})
	}
	got := c.Candidates(1, false)
	assert.Len(t, got, 10)
}

func TestAnalysis_SplicesSensitiveBitsAndStopsOnFlip(t *testing.T) {
	c := bitshare.NewCache()
	c.Record(3, true, []bool{true, true})

	bits := model.BytesToBits([]byte{0x00}, 4)
	s, err := model.NewStdinBitsAndTypes(bits, []model.TypeOfInputBits{model.BOOLEAN, model.BOOLEAN, model.BOOLEAN, model.BOOLEAN})
	require.NoError(t, err)

	a := bitshare.New()
	a.Start(c, 0, s, []int{1, 2}, 3, true)

	candidate, ok := a.GenerateNextInput()
	require.True(t, ok)
	assert.True(t, candidate[1])
	assert.True(t, candidate[2])
	assert.False(t, candidate[0])

	success := a.ProcessExecutionResults(true)
	assert.True(t, success)
	assert.True(t, a.IsReady())
}

func TestAnalysis_ExhaustsWithoutFlip(t *testing.T) {
	c := bitshare.NewCache()
	bits := model.BytesToBits([]byte{0x00}, 2)
	s, err := model.NewStdinBitsAndTypes(bits, []model.TypeOfInputBits{model.BOOLEAN, model.BOOLEAN})
	require.NoError(t, err)

	a := bitshare.New()
	a.Start(c, 0, s, []int{0, 1}, 42, false)

	_, ok := a.GenerateNextInput()
	assert.False(t, ok)
	assert.True(t, a.IsReady())
}
