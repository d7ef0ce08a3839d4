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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/merito-labs/merito/signing"
)

type ctxKey string

const configContextKey ctxKey = "merito.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// DomainConfig holds the typed-data domain parameters that vote signatures
// are bound to. These are deployment configuration; a signature produced for
// one domain never verifies under another.
type DomainConfig struct {
	Name     string `yaml:"name"     envconfig:"MERITO_DOMAIN_NAME"`
	Version  string `yaml:"version"  envconfig:"MERITO_DOMAIN_VERSION"`
	ChainID  uint64 `yaml:"chainId"  envconfig:"MERITO_DOMAIN_CHAIN_ID"`
	Contract string `yaml:"contract" envconfig:"MERITO_DOMAIN_CONTRACT"`
}

type Config struct {
	DataDir         string       `yaml:"dataDir"                             split_words:"true"`
	BindAddr        string       `yaml:"bindAddr"                            split_words:"true"`
	ApiPort         uint         `yaml:"apiPort"                             split_words:"true"`
	MetricsPort     uint         `yaml:"metricsPort"                         split_words:"true"`
	ShutdownTimeout string       `yaml:"shutdownTimeout"                     split_words:"true"`
	Domain          DomainConfig `yaml:"domain"`
}

var globalConfig = &Config{
	DataDir:         ".merito",
	BindAddr:        "0.0.0.0",
	ApiPort:         3000,
	MetricsPort:     12798,
	ShutdownTimeout: DefaultShutdownTimeout,
	Domain: DomainConfig{
		Name:    "merito",
		Version: "1",
		ChainID: 1,
	},
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.merito/merito.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".merito", "merito.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/merito/merito.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/merito/merito.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Overlay config values onto existing defaults
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process environment variables
	if err := envconfig.Process("merito", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// Validate checks the domain parameters and data directory settings
func (c *Config) Validate() error {
	if _, err := c.SigningDomain(); err != nil {
		return err
	}
	return nil
}

// SigningDomain converts the configured domain parameters into a
// signing.Domain, validating them along the way
func (c *Config) SigningDomain() (signing.Domain, error) {
	domain := signing.Domain{
		Name:    c.Domain.Name,
		Version: c.Domain.Version,
		ChainID: c.Domain.ChainID,
	}
	if c.Domain.Contract != "" {
		contract, err := signing.ParseAddress(c.Domain.Contract)
		if err != nil {
			return domain, fmt.Errorf(
				"invalid domain contract address: %w",
				err,
			)
		}
		domain.VerifyingContract = contract
	}
	if err := domain.Validate(); err != nil {
		return domain, fmt.Errorf("invalid signing domain: %w", err)
	}
	return domain, nil
}

func GetConfig() *Config {
	return globalConfig
}
