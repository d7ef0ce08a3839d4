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

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/merito-labs/merito/database/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrStaleNonce is returned when a vote submission's nonce is not exactly
// one greater than the current nonce for that (voter, contribution) pair.
// Callers should re-fetch the current nonce and resubmit; this is a
// concurrency conflict, not a fatal error.
var ErrStaleNonce = errors.New("stale vote nonce")

// Database is a SQLite-backed store for projects, contributions and the
// vote ledger.
type Database struct {
	logger  *slog.Logger
	db      *gorm.DB
	dataDir string
}

// Config contains the configuration options for the database
type Config struct {
	Logger  *slog.Logger
	DataDir string
}

// New creates a database instance. Uses an in-memory database if DataDir is
// empty, useful for testing.
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var gormDb *gorm.DB
	var err error
	gormCfg := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
	if cfg.DataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		gormDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			gormCfg,
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(cfg.DataDir, "merito.sqlite")
		// WAL journal mode for concurrent readers
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		gormDb, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			gormCfg,
		)
		if err != nil {
			return nil, err
		}
	}
	db := &Database{
		logger:  logger,
		db:      gormDb,
		dataDir: cfg.DataDir,
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		db.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := gormDb.AutoMigrate(model); err != nil {
			return db, err
		}
	}
	return db, nil
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// DB returns the underlying gorm handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Transaction runs fn inside a single database transaction. The Database
// passed to fn is bound to the transaction and must not be retained.
func (d *Database) Transaction(fn func(txn *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{
			logger:  d.logger,
			db:      tx,
			dataDir: d.dataDir,
		})
	})
}

// Close cleans up the database connection
func (d *Database) Close() error {
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
