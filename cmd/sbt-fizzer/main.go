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

package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/staticafi/sbt-fizzer-sub001/config"
	"github.com/staticafi/sbt-fizzer-sub001/engine"
	"github.com/staticafi/sbt-fizzer-sub001/metrics"
	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/service/executor"
	"github.com/staticafi/sbt-fizzer-sub001/service/scheduler"
	"github.com/staticafi/sbt-fizzer-sub001/service/status"
	"github.com/staticafi/sbt-fizzer-sub001/service/writer"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

func main() {

	// Signal catching for clean shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	// Command line parameter initialization.
	var (
		flagLogLevel    string
		flagTargetAddr  string
		flagDialTimeout time.Duration
		flagStatusAddr  string

		flagMaxTraceLength        uint32
		flagMaxBrInstrTraceLength uint32
		flagMaxStackSize          uint8
		flagMaxStdinBytes         uint16
		flagStdinModel            string
		flagStdoutModel           string

		flagMaxExecutions     uint64
		flagMaxFuzzingSeconds float64
		flagAllowBlindFuzzing bool

		flagNativeDir   string
		flagTestCompDir string
		flagTargetName  string
	)

	pflag.StringVarP(&flagLogLevel, "log-level", "l", "info", "log output level")
	pflag.StringVarP(&flagTargetAddr, "port", "p", "localhost:9000", "host:port the instrumented target driver listens on")
	pflag.DurationVar(&flagDialTimeout, "dial-timeout", 5*time.Second, "timeout for one execution's connection to the target")
	pflag.StringVar(&flagStatusAddr, "status-host", ":8080", "host URL for the status/metrics HTTP server")

	pflag.Uint32Var(&flagMaxTraceLength, "max-trace-length", 10_000, "maximum number of condition records kept per execution")
	pflag.Uint32Var(&flagMaxBrInstrTraceLength, "max-br-instr-trace-length", 10_000, "maximum number of br_instr records kept per execution")
	pflag.Uint8Var(&flagMaxStackSize, "max-stack-size", 32, "maximum call-stack depth the target reports context hashes for")
	pflag.Uint16Var(&flagMaxStdinBytes, "max-stdin-bytes", 4096, "maximum number of stdin bytes the target will read")
	pflag.StringVar(&flagStdinModel, "stdin-model", "replay_bits_then_repeat_85", "named stdin replay model the target honours")
	pflag.StringVar(&flagStdoutModel, "stdout-model", "replay_bytes_then_repeat_byte", "named stdout replay model the target honours")

	pflag.Uint64Var(&flagMaxExecutions, "max-executions", 0, "stop after this many executions (0: unbounded)")
	pflag.Float64Var(&flagMaxFuzzingSeconds, "max-seconds", 0, "stop after this many seconds (0: unbounded)")
	pflag.BoolVar(&flagAllowBlindFuzzing, "allow-blind-fuzzing", true, "keep generating random inputs once every open leaf is exhausted")

	pflag.StringVar(&flagNativeDir, "native-dir", "", "output directory for the native JSON test suite (empty: disabled)")
	pflag.StringVar(&flagTestCompDir, "testcomp-dir", "", "output directory for the test-comp XML test suite (empty: disabled)")
	pflag.StringVar(&flagTargetName, "target-name", "target.c", "source file name recorded in the test-comp metadata document")

	pflag.Parse()

	// Logger initialization.
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("could not parse log level")
	}
	log = log.Level(level)

	cfg := config.Config{
		LogLevel:              flagLogLevel,
		TargetAddress:         flagTargetAddr,
		DialTimeout:           flagDialTimeout,
		StatusAddress:         flagStatusAddr,
		MaxTraceLength:        flagMaxTraceLength,
		MaxBrInstrTraceLength: flagMaxBrInstrTraceLength,
		MaxStackSize:          flagMaxStackSize,
		MaxStdinBytes:         flagMaxStdinBytes,
		StdinModel:            flagStdinModel,
		StdoutModel:           flagStdoutModel,
		MaxExecutions:         flagMaxExecutions,
		MaxFuzzingSeconds:     flagMaxFuzzingSeconds,
		AllowBlindFuzzing:     flagAllowBlindFuzzing,
		NativeOutputDir:       flagNativeDir,
		TestCompOutputDir:     flagTestCompDir,
		TestCompProgram:       flagTargetName,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Component initialization: the branching tree, the writer fan-out, the
	// metrics registry, the target client and the scheduler loop.
	t := tree.New()

	var writers []writer.Writer
	if cfg.NativeOutputDir != "" {
		w, err := writer.NewNative(cfg.NativeOutputDir)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize native test writer")
		}
		writers = append(writers, w)
	}
	if cfg.TestCompOutputDir != "" {
		w, err := writer.NewTestComp(cfg.TestCompOutputDir, cfg.TestCompProgram)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize test-comp writer")
		}
		writers = append(writers, w)
	}
	recordWriter := writer.NewMulti(writers...)

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	metrics.RegisterTreeGauges(reg, t)

	client := executor.NewClient(log, cfg.TargetAddress, cfg.ExecutorConfig(), cfg.DialTimeout)

	sched := scheduler.New(log, t, client, recordWriter, cfg.Budget(), recorder)

	statusSrv := status.NewServer(log, cfg.StatusAddress, sched)

	seed, err := seedInput(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build seed input")
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := engine.New(log, "sbt-fizzer", sig)
	e.Component("scheduler", func() error {
		return sched.Run(ctx, seed)
	}, cancel)
	e.Component("status", statusSrv.Start, statusSrv.Stop)

	err = e.Run()

	if closeErr := recordWriter.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("could not close test-suite writers cleanly")
	}

	if err != nil {
		log.Fatal().Err(err).Msg("sbt-fizzer stopped with an error")
	}
}

// seedInput builds the all-zero bootstrap input the scheduler's first,
// tree-less execution replays: cfg.MaxStdinBytes bytes, each an untyped
// byte chunk, since nothing is known yet about how the target interprets
// them.
func seedInput(cfg config.Config) (*model.StdinBitsAndTypes, error) {
	n := int(cfg.MaxStdinBytes)
	bits := make([]bool, n*8)
	types := make([]model.TypeOfInputBits, n)
	for i := range types {
		types[i] = model.UNTYPED8
	}
	return model.NewStdinBitsAndTypes(bits, types)
}
