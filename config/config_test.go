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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func valid() Config {
	return Config{
		LogLevel:              "info",
		TargetAddress:         "localhost:9000",
		DialTimeout:           5 * time.Second,
		StatusAddress:         ":8080",
		MaxTraceLength:        1024,
		MaxBrInstrTraceLength: 1024,
		MaxStackSize:          64,
		MaxStdinBytes:         256,
		StdinModel:            "replay_bits_then_repeat_85",
		StdoutModel:           "replay_bytes_then_repeat_byte",
	}
}

func TestConfig_ValidatesGoodConfig(t *testing.T) {
	require.NoError(t, valid().Validate())
}

func TestConfig_RejectsUnknownStdinModel(t *testing.T) {
	c := valid()
	c.StdinModel = "bogus"
	require.Error(t, c.Validate())
}

func TestConfig_RejectsMissingTargetAddress(t *testing.T) {
	c := valid()
	c.TargetAddress = ""
	require.Error(t, c.Validate())
}

func TestConfig_ExecutorConfigProjectsWireFields(t *testing.T) {
	c := valid()
	ec := c.ExecutorConfig()
	require.Equal(t, c.MaxTraceLength, ec.MaxTraceLength)
	require.Equal(t, c.StdinModel, ec.StdinModel)
}

func TestConfig_BudgetProjectsTerminationFields(t *testing.T) {
	c := valid()
	c.MaxExecutions = 10
	c.AllowBlindFuzzing = true
	b := c.Budget()
	require.Equal(t, uint64(10), b.MaxExecutions)
	require.True(t, b.AllowBlindFuzzing)
}
