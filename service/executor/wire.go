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

// Package executor implements the engine's side of the wire protocol spoken
// with the external, instrumented target driver (spec section 6): a
// length-prefixed, little-endian framing, grounded on
// original_source/code/connection/include/connection/message.hpp's
// message_header (type + size) framing a move is built around, and a
// payload layout taken directly from spec section 6's field lists. The
// driver itself, and the shared-memory segment the original implementation
// used in place of a socket, are out of scope; this package only has to
// produce and parse bytes the driver expects on some io.ReadWriter (in
// production a TCP connection, per client.go).
package executor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/staticafi/sbt-fizzer-sub001/model"
)

// messageType mirrors connection::message_type: it tags a framed message's
// payload, written as the first four bytes of message_header.
type messageType uint32

const (
	messageNotSet messageType = iota
	messageInputForClient
	messageResultsNormal
	messageResultsMaxTraceReached
	messageResultsAbortReached
	messageResultsErrorReached
)

// recordTag distinguishes the per-entry records inside a results message's
// body (spec section 6: condition, br_instr, stdin_bytes), terminated by
// recordTagEnd.
type recordTag uint8

const (
	recordCondition recordTag = iota
	recordBrInstr
	recordStdinBytes
	recordTagEnd
)

// writeMessage frames payload behind a (type uint32, size uint32) header,
// both little-endian, matching message_header's two fields.
func writeMessage(w io.Writer, typ messageType, payload []byte) error {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("executor: write message header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("executor: write message payload: %w", err)
	}
	return nil
}

// readMessage reads one framed message back off r.
func readMessage(r io.Reader) (messageType, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("executor: read message header: %w", err)
	}
	typ := messageType(binary.LittleEndian.Uint32(header[0:4]))
	size := binary.LittleEndian.Uint32(header[4:8])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("executor: read message payload: %w", err)
	}
	return typ, payload, nil
}

// Config is the subset of CLI configuration (spec section 6) the engine
// sends to the target driver ahead of the stdin bytes it wants replayed.
type Config struct {
	MaxTraceLength        uint32
	MaxBrInstrTraceLength uint32
	MaxStackSize          uint8
	MaxStdinBytes         uint16
	StdinModel            string
	StdoutModel           string
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", fmt.Errorf("executor: read string length: %w", err)
	}
	length := binary.LittleEndian.Uint16(n[:])
	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", fmt.Errorf("executor: read string bytes: %w", err)
	}
	return string(raw), nil
}

// encodeInput builds the configuration record followed by the stdin bytes
// record (spec section 6), the payload of one messageInputForClient frame.
func encodeInput(cfg Config, input *model.StdinBitsAndTypes) []byte {
	var buf bytes.Buffer

	var fixed [11]byte
	binary.LittleEndian.PutUint32(fixed[0:4], cfg.MaxTraceLength)
	binary.LittleEndian.PutUint32(fixed[4:8], cfg.MaxBrInstrTraceLength)
	fixed[8] = cfg.MaxStackSize
	binary.LittleEndian.PutUint16(fixed[9:11], cfg.MaxStdinBytes)
	buf.Write(fixed[:])

	writeLengthPrefixedString(&buf, cfg.StdinModel)
	writeLengthPrefixedString(&buf, cfg.StdoutModel)

	raw := model.BitsToBytes(input.Bits)
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(raw)))
	buf.Write(count[:])
	buf.Write(raw)
	var sentinel [2]byte
	buf.Write(sentinel[:])

	return buf.Bytes()
}

// decodedResult is the parsed form of one messageResults* payload.
type decodedResult struct {
	trace       model.ExecutionTrace
	consumed    *model.StdinBitsAndTypes
	termination model.TerminationKind
}

// decodeResults parses a target->engine results payload (spec section 6):
// a two-byte termination header (the message type itself already carries
// that information, so only the second byte, the driver-reported
// target_termination, is consulted) followed by a sequence of tagged
// records until recordTagEnd.
func decodeResults(typ messageType, payload []byte) (decodedResult, error) {
	var out decodedResult
	switch typ {
	case messageResultsNormal:
		out.termination = model.Normal
	case messageResultsMaxTraceReached:
		out.termination = model.Timeout
	case messageResultsAbortReached:
		out.termination = model.Crash
	case messageResultsErrorReached:
		// error_reached is the instrumentation's reach_error signal: the
		// target hit a condition the instrumentation flags as a discovered
		// bug, which spec section 7 classifies as a crash, not a boundary
		// violation -- it must be kept with ExecutionCrashes and its trace
		// must not be truncated.
		out.termination = model.Crash
	default:
		return out, fmt.Errorf("executor: unexpected message type %d in results frame", typ)
	}

	r := bytes.NewReader(payload)
	for {
		tagByte, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("executor: read record tag: %w", err)
		}
		tag := recordTag(tagByte)
		if tag == recordTagEnd {
			break
		}

		switch tag {
		case recordCondition:
			var fields [21]byte
			if _, err := io.ReadFull(r, fields[:]); err != nil {
				return out, fmt.Errorf("executor: read condition record: %w", err)
			}
			info := model.BranchingCoverageInfo{
				ID: model.LocationID{
					ID:          binary.LittleEndian.Uint32(fields[0:4]),
					ContextHash: binary.LittleEndian.Uint32(fields[4:8]),
				},
				Direction:    fields[8] != 0,
				Value:        model.NormalizeValue(math.Float64frombits(binary.LittleEndian.Uint64(fields[9:17]))),
				IdxToBrInstr: binary.LittleEndian.Uint32(fields[17:21]),
			}
			out.trace = append(out.trace, info)

		case recordBrInstr:
			var fields [9]byte
			if _, err := io.ReadFull(r, fields[:]); err != nil {
				return out, fmt.Errorf("executor: read br_instr record: %w", err)
			}
			// Branch-instruction coverage records are accepted but not
			// retained: the branching tree only tracks conditions (spec
			// section 4.1); br_instr coverage has no C1 counterpart.

		case recordStdinBytes:
			consumed, err := decodeConsumedBits(r)
			if err != nil {
				return out, err
			}
			out.consumed = consumed

		default:
			return out, fmt.Errorf("executor: unknown record tag %d", tagByte)
		}
	}
	return out, nil
}

// decodeConsumedBits reads the stdin_bytes record: a u16 chunk count
// followed by, for each chunk, a one-byte TypeOfInputBits tag and the
// chunk's value packed into ceil(width/8) little-endian bytes.
func decodeConsumedBits(r *bytes.Reader) (*model.StdinBitsAndTypes, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("executor: read stdin_bytes chunk count: %w", err)
	}
	count := binary.LittleEndian.Uint16(countBuf[:])

	var bits []bool
	types := make([]model.TypeOfInputBits, 0, count)
	for i := uint16(0); i < count; i++ {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("executor: read stdin_bytes chunk type: %w", err)
		}
		typ := model.TypeOfInputBits(tagByte)
		width := typ.Width()
		raw := make([]byte, (width+7)/8)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("executor: read stdin_bytes chunk value: %w", err)
		}
		bits = append(bits, model.BytesToBits(raw, width)...)
		types = append(types, typ)
	}
	return model.NewStdinBitsAndTypes(bits, types)
}
