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

// Package status serves the fuzzer's introspection endpoints over HTTP,
// adapting the teacher's api/rest echo controller pattern (route handlers
// returning echo.HTTPError on failure) to a read-only status surface instead
// of a data API.
package status

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/staticafi/sbt-fizzer-sub001/service/scheduler"
	"github.com/staticafi/sbt-fizzer-sub001/service/treedump"
	"github.com/staticafi/sbt-fizzer-sub001/tree"
)

// Source is what the status server polls to answer /status and
// /debug/tree; *scheduler.Scheduler satisfies it directly via the two
// accessors it exposes for introspection.
type Source interface {
	Tree() *tree.Tree
	Outcomes() scheduler.Outcomes
}

// Controller holds the handlers; a thin wrapper so the routes can be
// registered the same way the teacher registers its REST controller's.
type Controller struct {
	source Source
}

// NewController creates a Controller backed by source.
func NewController(source Source) *Controller {
	return &Controller{source: source}
}

type statusResponse struct {
	TreeNodes  int                `json:"tree_nodes"`
	OpenLeaves int                `json:"open_leaves"`
	Outcomes   scheduler.Outcomes `json:"outcomes"`
}

// GetStatus reports a point-in-time summary of the tree and the
// per-analysis generated-input counts.
func (c *Controller) GetStatus(ctx echo.Context) error {
	t := c.source.Tree()
	res := statusResponse{
		TreeNodes:  t.Size(),
		OpenLeaves: len(t.Leaves()),
		Outcomes:   c.source.Outcomes(),
	}
	return ctx.JSON(http.StatusOK, res)
}

// GetHealthz always reports ok; its purpose is to let a process supervisor
// distinguish "listening" from "crashed", not to report fuzzer health.
func (c *Controller) GetHealthz(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

// GetDebugTree serves the CBOR+gzip tree snapshot described by
// service/treedump.
func (c *Controller) GetDebugTree(ctx echo.Context) error {
	snap := treedump.Build(c.source.Tree())
	data, err := treedump.Encode(snap)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return ctx.Blob(http.StatusOK, "application/gzip", data)
}

// Server is the http.Server wrapper exposing /status, /metrics, /healthz
// and /debug/tree, grounded on the teacher's service/metrics.Server pattern
// but built on echo instead of a bare ServeMux so its handlers compose with
// the rest of the domain-stack's echo usage.
type Server struct {
	echo *echo.Echo
	log  zerolog.Logger
	addr string
}

// NewServer wires the routes and returns a Server ready for Start.
func NewServer(log zerolog.Logger, addr string, source Source) *Server {
	ctrl := NewController(source)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())

	e.GET("/status", ctrl.GetStatus)
	e.GET("/healthz", ctrl.GetHealthz)
	e.GET("/debug/tree", ctrl.GetDebugTree)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		echo: e,
		log:  log.With().Str("component", "status").Logger(),
		addr: addr,
	}
}

// Start blocks serving HTTP until the server is stopped or fails; it
// returns nil on a clean shutdown (http.ErrServerClosed), matching the
// convention engine.Engine expects from a component's run function.
func (s *Server) Start() error {
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down; suitable as an engine component's stop
// function.
func (s *Server) Stop() {
	if err := s.echo.Close(); err != nil {
		s.log.Error().Err(err).Msg("status server did not shut down cleanly")
	}
}
