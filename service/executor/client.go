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
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/staticafi/sbt-fizzer-sub001/model"
	"github.com/staticafi/sbt-fizzer-sub001/service/scheduler"
)

// ErrCommunication is returned once a run's communication with the target
// driver has failed twice in a row (spec section 7: retry once, then
// surface CLIENT_COMMUNICATION_ERROR).
var ErrCommunication = errors.New("executor: communication error")

// Client drives one execution of the target through a TCP connection to
// the external driver process, grounded on
// original_source/code/connection/include/connection/client.hpp (the
// original dials a socket per run rather than keeping one connection open
// across the whole fuzzing session, since the target process it talks to
// is itself restarted between runs).
type Client struct {
	log     zerolog.Logger
	addr    string
	cfg     Config
	dialer  net.Dialer
	timeout time.Duration
}

// NewClient creates a client that dials addr (host:port, matching the
// --port CLI flag) fresh for every Execute call.
func NewClient(log zerolog.Logger, addr string, cfg Config, timeout time.Duration) *Client {
	return &Client{
		log:     log.With().Str("component", "executor").Str("addr", addr).Logger(),
		addr:    addr,
		cfg:     cfg,
		timeout: timeout,
	}
}

// Execute satisfies scheduler.Executor: it sends input to the target driver
// and returns its trace and termination. A communication failure (dial,
// write or read error, or a context deadline) is retried exactly once
// before surfacing ErrCommunication, per spec section 7.
func (c *Client) Execute(ctx context.Context, input *model.StdinBitsAndTypes) (scheduler.Result, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, err := c.attempt(ctx, input)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("communication with target failed")
	}
	return scheduler.Result{}, fmt.Errorf("%w: %v", ErrCommunication, lastErr)
}

func (c *Client) attempt(ctx context.Context, input *model.StdinBitsAndTypes) (scheduler.Result, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("dial target: %w", err)
	}
	defer conn.Close()

	if c.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return scheduler.Result{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	payload := encodeInput(c.cfg, input)
	if err := writeMessage(conn, messageInputForClient, payload); err != nil {
		return scheduler.Result{}, err
	}

	typ, body, err := readMessage(conn)
	if err != nil {
		return scheduler.Result{}, err
	}

	decoded, err := decodeResults(typ, body)
	if err != nil {
		return scheduler.Result{}, err
	}

	return scheduler.Result{Trace: decoded.trace, Termination: decoded.termination}, nil
}
