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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

func sampleInput(t *testing.T) *model.StdinBitsAndTypes {
	t.Helper()
	bits := model.BytesToBits([]byte{0x2A}, 8)
	input, err := model.NewStdinBitsAndTypes(bits, []model.TypeOfInputBits{model.U8})
	require.NoError(t, err)
	return input
}

func sampleTrace() model.ExecutionTrace {
	return model.ExecutionTrace{
		{ID: model.LocationID{ID: 3}, Direction: true, Value: 1},
	}
}

func TestNative_WritesAndBundles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewNative(dir)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleInput(t), sampleTrace(), model.Crash))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var sawTest, sawBundle bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			sawTest = true
		}
		if e.Name() == "bundle.tar.gz" {
			sawBundle = true
		}
	}
	require.True(t, sawTest)
	require.True(t, sawBundle)
}

func TestTestComp_WritesMetadataAndTests(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTestComp(dir, "target.c")
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleInput(t), sampleTrace(), model.BoundaryConditionViolation))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "metadata.xml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "<test-metadata>")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var sawTest bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".xml" && e.Name() != "metadata.xml" {
			sawTest = true
			content, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			require.Contains(t, string(content), `<input type="unsigned char">42</input>`)
		}
	}
	require.True(t, sawTest)
}

func TestCTypeName_UntypedHasNoAttribute(t *testing.T) {
	_, ok := cTypeName(model.UNTYPED8)
	require.False(t, ok)
}
