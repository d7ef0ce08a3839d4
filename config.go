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

package merito

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/merito-labs/merito/publish"
	"github.com/merito-labs/merito/signing"
)

type Config struct {
	logger           *slog.Logger
	promRegistry     prometheus.Registerer
	submitter        publish.ChainSubmitter
	dataDir          string
	apiListenAddress string
	domain           signing.Domain
	shutdownTimeout  time.Duration
}

func (n *Node) configValidate() error {
	if err := n.config.domain.Validate(); err != nil {
		return fmt.Errorf("signing domain: %w", err)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new merito config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is
// to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithApiListenAddress specifies the listen address for the REST API
func WithApiListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithSigningDomain specifies the typed-data domain that vote signatures are
// bound to
func WithSigningDomain(domain signing.Domain) ConfigOptionFunc {
	return func(c *Config) {
		c.domain = domain
	}
}

// WithChainSubmitter specifies the chain submission collaborator used by the
// publisher. Without one, publishes commit locally with an empty tx ref.
func WithChainSubmitter(submitter publish.ChainSubmitter) ConfigOptionFunc {
	return func(c *Config) {
		c.submitter = submitter
	}
}

// WithPrometheusRegistry specifies a prometheus registry for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
