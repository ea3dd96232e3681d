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

// Package config holds the CLI configuration for cmd/sbt-fizzer, validated
// with go-playground/validator/v10 the way the teacher validates its
// Rosetta API request structs (struct tags plus a single Validate call),
// adapted here to a flag-bound config struct instead of a decoded request
// body.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/staticafi/sbt-fizzer-sub001/iomodel"
	"github.com/staticafi/sbt-fizzer-sub001/service/executor"
	"github.com/staticafi/sbt-fizzer-sub001/service/scheduler"
)

// Config is every knob cmd/sbt-fizzer exposes, grouped by the component it
// configures. Field tags are validated by Validate before anything is
// wired together.
type Config struct {
	LogLevel string `validate:"required"`

	TargetAddress string        `validate:"required,hostname_port"`
	DialTimeout   time.Duration `validate:"gt=0"`

	StatusAddress string `validate:"required"`

	MaxTraceLength        uint32 `validate:"gt=0"`
	MaxBrInstrTraceLength uint32 `validate:"gt=0"`
	MaxStackSize          uint8  `validate:"gt=0"`
	MaxStdinBytes         uint16 `validate:"gt=0"`
	StdinModel            string `validate:"required"`
	StdoutModel           string `validate:"required"`

	MaxExecutions     uint64
	MaxFuzzingSeconds float64
	AllowBlindFuzzing bool

	NativeOutputDir   string
	TestCompOutputDir string
	TestCompProgram   string
}

// Validate checks the struct tags and, additionally, that StdinModel and
// StdoutModel name a model iomodel.Parse recognises -- a check the
// validator struct-tag vocabulary has no tag for.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := iomodel.Parse(c.StdinModel); err != nil {
		return fmt.Errorf("config: stdin model: %w", err)
	}
	if _, err := iomodel.Parse(c.StdoutModel); err != nil {
		return fmt.Errorf("config: stdout model: %w", err)
	}
	return nil
}

// ExecutorConfig projects the wire-protocol fields into an executor.Config.
func (c Config) ExecutorConfig() executor.Config {
	return executor.Config{
		MaxTraceLength:        c.MaxTraceLength,
		MaxBrInstrTraceLength: c.MaxBrInstrTraceLength,
		MaxStackSize:          c.MaxStackSize,
		MaxStdinBytes:         c.MaxStdinBytes,
		StdinModel:            c.StdinModel,
		StdoutModel:           c.StdoutModel,
	}
}

// Budget projects the termination fields into a scheduler.Budget.
func (c Config) Budget() scheduler.Budget {
	return scheduler.Budget{
		MaxExecutions:     c.MaxExecutions,
		MaxSeconds:        c.MaxFuzzingSeconds,
		AllowBlindFuzzing: c.AllowBlindFuzzing,
	}
}
