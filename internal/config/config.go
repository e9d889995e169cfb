// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Package config binds the bootstrap configuration tablesync needs
// before the catalog can be read at all: where the catalog itself
// lives, and the initial values for the tunables that afterwards live
// in metadata.config and are re-read dynamically (spec.md §4.6/§6).
//
// The process entry point and full configuration loader are external
// collaborators per spec.md §1; this package only covers the
// bootstrap surface the core itself depends on.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the bootstrap settings for a tablesync process.
type Config struct {
	// CatalogConn is the libpq-style connection string for the target
	// PostgreSQL instance that hosts the metadata schema.
	CatalogConn string

	// BindAddr is where internal/httpapi listens for /healthz and
	// /metrics.
	BindAddr string

	// DefaultChunkSize seeds metadata.config.chunk_size on first run.
	DefaultChunkSize int
	// DefaultSyncInterval seeds metadata.config.sync_interval on first
	// run.
	DefaultSyncInterval time.Duration
	// DefaultDebugLevel seeds metadata.config.debug_level on first
	// run.
	DefaultDebugLevel string

	// MaintenanceInterval is the cadence of the scheduler's
	// maintenance pass (spec.md §4.6: "every 2 minutes").
	MaintenanceInterval time.Duration
}

// Bind registers flags on the given flag set, following the teacher's
// Bind(*pflag.FlagSet) convention.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.CatalogConn, "catalogConn", "",
		"libpq-style connection string for the target metadata/warehouse database")
	flags.StringVar(&c.BindAddr, "bindAddr", ":13013",
		"the network address the health/metrics endpoint binds to")
	flags.IntVar(&c.DefaultChunkSize, "chunkSize", 1000,
		"default rows fetched per chunk, used to seed metadata.config on first run")
	flags.DurationVar(&c.DefaultSyncInterval, "syncInterval", 10*time.Second,
		"default seconds between cycles per worker, used to seed metadata.config on first run")
	flags.StringVar(&c.DefaultDebugLevel, "debugLevel", "INFO",
		"default log level (DEBUG/INFO/WARNING/ERROR/CRITICAL), used to seed metadata.config on first run")
	flags.DurationVar(&c.MaintenanceInterval, "maintenanceInterval", 2*time.Minute,
		"cadence of the scheduler's maintenance pass")
}

// Preflight validates the bound configuration, following the teacher's
// Preflight() error convention.
func (c *Config) Preflight() error {
	if c.CatalogConn == "" {
		return errors.New("catalogConn unset")
	}
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.DefaultChunkSize <= 0 {
		return errors.New("chunkSize must be positive")
	}
	if c.DefaultSyncInterval <= 0 {
		return errors.New("syncInterval must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		return errors.New("maintenanceInterval must be positive")
	}
	switch c.DefaultDebugLevel {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL":
	default:
		return errors.Errorf("unrecognized debugLevel %q", c.DefaultDebugLevel)
	}
	return nil
}

// LogrusLevel maps metadata.config's debug_level vocabulary onto a
// logrus level name.
func LogrusLevel(debugLevel string) string {
	switch debugLevel {
	case "DEBUG":
		return "debug"
	case "WARNING":
		return "warning"
	case "ERROR":
		return "error"
	case "CRITICAL":
		return "fatal"
	default:
		return "info"
	}
}
