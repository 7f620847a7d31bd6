// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/database"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/server"
	"github.com/gweizero/engine/pkg/sql"
	"github.com/gweizero/engine/pkg/worker/api"
	"github.com/gweizero/engine/pkg/worker/runner"
	"github.com/gweizero/engine/pkg/worker/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := sql.InitDefault(sql.DatabaseConfig{
		URL:     cfg.Database.URL,
		SSLMode: cfg.Database.SSLMode,
	}); err != nil {
		log.Fatalf("worker: database: %v", err)
	}

	jobs := store.New(database.NewAnalysisJobFacade(), runner.New(cfg.Worker))
	if err := jobs.Start(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}

	srv := server.New("worker", cfg.Worker.HTTPPort)
	api.NewHandler(jobs).RegisterRoutes(srv.Router())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
