// Copyright 2026 Merito Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/publish"
	"github.com/merito-labs/merito/validation"
)

// CallerHeader identifies the requesting account. Authentication is out of
// scope for this service; deployments front the API with an authenticating
// proxy that sets this header.
const CallerHeader = "X-Merito-Account"

// Config contains the configuration and dependencies for the API server
type Config struct {
	ListenAddress string
	Database      *database.Database
	Service       *validation.Service
	Publisher     *publish.Publisher
	Logger        *slog.Logger
}

// Api is the REST API server for projects, contributions and votes
type Api struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance
func New(cfg Config) *Api {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":3000"
	}
	return &Api{
		config: cfg,
		logger: logger.With("component", "api"),
	}
}

// Handler builds the request router. Exposed separately from Start so tests
// can drive it through httptest without binding a socket.
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc(
		"POST /api/v1/projects",
		a.handleCreateProject,
	)
	mux.HandleFunc(
		"GET /api/v1/projects/{projectId}",
		a.handleGetProject,
	)
	mux.HandleFunc(
		"GET /api/v1/projects/{projectId}/contributions",
		a.handleListContributions,
	)
	mux.HandleFunc(
		"POST /api/v1/projects/{projectId}/contributions",
		a.handleCreateContribution,
	)
	mux.HandleFunc(
		"GET /api/v1/contributions/{id}",
		a.handleGetContribution,
	)
	mux.HandleFunc(
		"PUT /api/v1/contributions/{id}",
		a.handleEditContribution,
	)
	mux.HandleFunc(
		"DELETE /api/v1/contributions/{id}",
		a.handleDeleteContribution,
	)
	mux.HandleFunc(
		"GET /api/v1/contributions/{id}/tally",
		a.handleTally,
	)
	mux.HandleFunc(
		"POST /api/v1/contributions/{id}/votes",
		a.handleSubmitVote,
	)
	mux.HandleFunc(
		"DELETE /api/v1/contributions/{id}/votes",
		a.handleWithdrawVote,
	)
	mux.HandleFunc(
		"POST /api/v1/contributions/{id}/publish",
		a.handlePublish,
	)
	return mux
}

// Start starts the HTTP server in a background goroutine
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()
		if srv != nil {
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine
func (a *Api) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}
