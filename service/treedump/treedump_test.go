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

package treedump

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

func TestBuildAndEncode_RoundTrips(t *testing.T) {
	tr := tree.New()
	bits := model.BytesToBits([]byte{0x01}, 8)
	input, err := model.NewStdinBitsAndTypes(bits, []model.TypeOfInputBits{model.U8})
	require.NoError(t, err)

	trace := model.ExecutionTrace{
		{ID: model.LocationID{ID: 1}, Direction: true, Value: 0.5},
		{ID: model.LocationID{ID: 2}, Direction: false, Value: 1.5},
	}
	_, err = tr.Integrate(trace, input, false)
	require.NoError(t, err)

	snap := Build(tr)
	require.Equal(t, 2, len(snap.Nodes))
	require.NotEmpty(t, snap.Leaves)

	data, err := Encode(snap)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, snap.Root, decoded.Root)
	require.Equal(t, len(snap.Nodes), len(decoded.Nodes))
	require.Equal(t, snap.Nodes[0].LocationID, decoded.Nodes[0].LocationID)
	require.ElementsMatch(t, snap.Leaves, decoded.Leaves)
}
