// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/orchestrator/acceptance"
	"github.com/gweizero/engine/pkg/orchestrator/api"
	"github.com/gweizero/engine/pkg/orchestrator/optimizer"
	"github.com/gweizero/engine/pkg/orchestrator/pipeline"
	"github.com/gweizero/engine/pkg/orchestrator/proof"
	"github.com/gweizero/engine/pkg/orchestrator/registry"
	"github.com/gweizero/engine/pkg/orchestrator/workerclient"
	"github.com/gweizero/engine/pkg/server"
	"github.com/gweizero/engine/pkg/solidity"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := registry.NewProgressBus()
	reg := registry.New(bus, cfg.Orchestrator.DedupeTTL)
	worker := workerclient.New(cfg.Orchestrator)
	opt := optimizer.New(cfg.AI)
	validator := acceptance.New(worker, opt, cfg.AI)
	pipe := pipeline.New(reg, solidity.NewParser(), worker, opt, validator)
	reg.SetLauncher(pipe.Run)

	srv := server.New("orchestrator", cfg.Orchestrator.HTTPPort)
	api.NewHandler(reg, proof.NewBuilder(cfg.Chain)).RegisterRoutes(srv.Router())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
}
