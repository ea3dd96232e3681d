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

package executor

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

func TestEncodeInput_RoundTripsConfigAndBits(t *testing.T) {
	cfg := Config{
		MaxTraceLength:        128,
		MaxBrInstrTraceLength: 256,
		MaxStackSize:          4,
		MaxStdinBytes:         16,
		StdinModel:            "replay_bits_then_repeat_85",
		StdoutModel:           "replay_bytes_then_repeat_byte",
	}
	input, err := model.NewStdinBitsAndTypes(
		[]bool{true, false, true, false, true, false, true, false},
		[]model.TypeOfInputBits{model.U8},
	)
	require.NoError(t, err)

	payload := encodeInput(cfg, input)
	require.GreaterOrEqual(t, len(payload), 11)

	require.Equal(t, cfg.MaxTraceLength, binary.LittleEndian.Uint32(payload[0:4]))
	require.Equal(t, cfg.MaxBrInstrTraceLength, binary.LittleEndian.Uint32(payload[4:8]))
	require.Equal(t, cfg.MaxStackSize, payload[8])
	require.Equal(t, cfg.MaxStdinBytes, binary.LittleEndian.Uint16(payload[9:11]))

	r := bytes.NewReader(payload[11:])
	stdinModel, err := readLengthPrefixedString(r)
	require.NoError(t, err)
	require.Equal(t, cfg.StdinModel, stdinModel)
	stdoutModel, err := readLengthPrefixedString(r)
	require.NoError(t, err)
	require.Equal(t, cfg.StdoutModel, stdoutModel)
}

func TestWriteReadMessage_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, writeMessage(&buf, messageInputForClient, payload))

	typ, body, err := readMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, messageInputForClient, typ)
	require.Equal(t, payload, body)
}

func TestDecodeResults_ParsesConditionRecordsUntilEnd(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(recordCondition))
	var fields [21]byte
	binary.LittleEndian.PutUint32(fields[0:4], 7)
	binary.LittleEndian.PutUint32(fields[4:8], 0)
	fields[8] = 1
	binary.LittleEndian.PutUint64(fields[9:17], math.Float64bits(3.5))
	binary.LittleEndian.PutUint32(fields[17:21], 42)
	buf.Write(fields[:])
	buf.WriteByte(byte(recordTagEnd))

	decoded, err := decodeResults(messageResultsNormal, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, model.Normal, decoded.termination)
	require.Len(t, decoded.trace, 1)
	require.Equal(t, uint32(7), decoded.trace[0].ID.ID)
	require.True(t, decoded.trace[0].Direction)
	require.InDelta(t, 3.5, decoded.trace[0].Value, 1e-9)
	require.Equal(t, uint32(42), decoded.trace[0].IdxToBrInstr)
}

func TestDecodeResults_MapsMessageTypeToTermination(t *testing.T) {
	cases := []struct {
		typ  messageType
		want model.TerminationKind
	}{
		{messageResultsNormal, model.Normal},
		{messageResultsMaxTraceReached, model.Timeout},
		{messageResultsAbortReached, model.Crash},
		{messageResultsErrorReached, model.Crash},
	}
	for _, c := range cases {
		decoded, err := decodeResults(c.typ, []byte{byte(recordTagEnd)})
		require.NoError(t, err)
		require.Equal(t, c.want, decoded.termination)
	}
}

func TestDecodeResults_ParsesStdinBytesRecord(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(recordStdinBytes))
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], 1)
	buf.Write(count[:])
	buf.WriteByte(byte(model.U8))
	buf.WriteByte(0xAB)
	buf.WriteByte(byte(recordTagEnd))

	decoded, err := decodeResults(messageResultsNormal, buf.Bytes())
	require.NoError(t, err)
	require.NotNil(t, decoded.consumed)
	require.Equal(t, 8, decoded.consumed.Len())
}
