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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/merito-labs/merito/api"
	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/event"
	"github.com/merito-labs/merito/publish"
	"github.com/merito-labs/merito/signing"
	"github.com/merito-labs/merito/validation"
)

type Node struct {
	config       Config
	eventBus     *event.EventBus
	db           *database.Database
	verifier     *signing.Verifier
	service      *validation.Service
	publisher    *publish.Publisher
	api          *api.Api
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry),
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run wires and starts the node's components, then blocks until Stop is
// called
func (n *Node) Run() error {
	verifier, err := signing.NewVerifier(n.config.domain)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}
	n.verifier = verifier
	// Load database
	db, err := database.New(&database.Config{
		DataDir: n.config.dataDir,
		Logger:  n.config.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Validation service
	n.service = validation.NewService(validation.ServiceConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Verifier:     n.verifier,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	// On-chain publisher, consuming passed-contribution events
	n.publisher = publish.New(publish.Config{
		Database:     n.db,
		EventBus:     n.eventBus,
		Submitter:    n.config.submitter,
		Verifier:     n.verifier,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	n.publisher.Start()
	// REST API
	n.api = api.New(api.Config{
		ListenAddress: n.config.apiListenAddress,
		Database:      n.db,
		Service:       n.service,
		Publisher:     n.publisher,
		Logger:        n.config.logger,
	})
	if err := n.api.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start API: %w", err)
	}

	// Wait for shutdown signal
	<-n.done
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	n.config.logger.Debug("starting graceful shutdown")

	// Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Drain in-flight events so a passed contribution observed before
	// shutdown still reaches the publisher
	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
