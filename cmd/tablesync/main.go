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

// Command tablesync runs the replication engine described in the
// core packages under internal/: it reads metadata.catalog, replicates
// each active table from its source engine, and serves /healthz and
// /metrics while doing so.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/config"
	"github.com/vectorframe/tablesync/internal/httpapi"
	"github.com/vectorframe/tablesync/internal/runtime"
	"github.com/vectorframe/tablesync/internal/stopper"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("tablesync exited with error")
	}
}

func run() error {
	cfg := &config.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.Preflight(); err != nil {
		return err
	}
	if lvl, err := log.ParseLevel(config.LogrusLevel(cfg.DefaultDebugLevel)); err == nil {
		log.SetLevel(lvl)
	}

	stop := stopper.WithContext(context.Background())

	if err := migrate(cfg.CatalogConn); err != nil {
		return err
	}

	rt, cleanup, err := runtime.New(stop, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	seedDefaults := catalog.RuntimeConfig{
		ChunkSize:    cfg.DefaultChunkSize,
		SyncInterval: cfg.DefaultSyncInterval,
		DebugLevel:   cfg.DefaultDebugLevel,
	}
	if err := rt.ConfigStore.Seed(stop, seedDefaults); err != nil {
		return err
	}

	stop.Go(func() error {
		return httpapi.Serve(stop, cfg.BindAddr, httpapi.New(rt.CatalogPool.Pool))
	})
	stop.Go(func() error {
		return rt.Run(stop, stop)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return stop.Stop(30 * time.Second)
}

func migrate(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return err
	}
	defer db.Close()
	return catalog.Migrate(db)
}
