// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package pipeline drives one analysis job through its three phases:
// static analysis, baseline gas measurement, and AI optimization with
// acceptance validation.
package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/metrics"
	"github.com/gweizero/engine/pkg/orchestrator/acceptance"
	"github.com/gweizero/engine/pkg/orchestrator/optimizer"
	"github.com/gweizero/engine/pkg/orchestrator/registry"
	"github.com/gweizero/engine/pkg/solidity"
)

// Optimizer produces an optimization candidate for a contract.
type Optimizer interface {
	Optimize(ctx context.Context, source string, baseline common.GasProfile, progress optimizer.ProgressFunc) (*common.AIResult, error)
}

// Validator decides whether a candidate passes acceptance.
type Validator interface {
	Validate(ctx context.Context, baseline *common.GasReport, candidate string) (*acceptance.Outcome, error)
}

// Pipeline owns the per-job analysis flow. One Run call per job, spawned
// by the registry.
type Pipeline struct {
	reg       *registry.Registry
	parser    solidity.Parser
	profiler  acceptance.Profiler
	optimizer Optimizer
	validator Validator
}

// New wires a Pipeline. The profiler is normally the worker client.
func New(reg *registry.Registry, parser solidity.Parser, profiler acceptance.Profiler, opt Optimizer, validator Validator) *Pipeline {
	return &Pipeline{
		reg:       reg,
		parser:    parser,
		profiler:  profiler,
		optimizer: opt,
		validator: validator,
	}
}

// Run executes the analysis for one job. The context is cancelled when the
// job is cancelled; cancellation is checked at every phase boundary.
func (p *Pipeline) Run(ctx context.Context, jobID, source string) {
	if p.cancelled(ctx, jobID) {
		return
	}

	// Phase 1: static analysis.
	p.reg.Advance(jobID, common.PhaseStaticAnalysis, "Parsing contract source.")
	timer := prometheus.NewTimer(metrics.AnalysisPhaseDuration.WithLabelValues(string(common.PhaseStaticAnalysis)))
	profile, err := p.parser.Parse(source)
	timer.ObserveDuration()
	if err != nil {
		log.Warnf("pipeline: job %s parse: %v", jobID, err)
		p.reg.Fail(jobID, "Failed to parse Solidity code.")
		return
	}
	if p.cancelled(ctx, jobID) {
		return
	}

	// Phase 2: baseline gas measurement on the worker.
	p.reg.Advance(jobID, common.PhaseDynamicAnalysis, "Measuring baseline gas profile.")
	timer = prometheus.NewTimer(metrics.AnalysisPhaseDuration.WithLabelValues(string(common.PhaseDynamicAnalysis)))
	baseline, err := p.profiler.Analyze(ctx, source)
	timer.ObserveDuration()
	if err != nil {
		if p.cancelled(ctx, jobID) {
			return
		}
		p.reg.Fail(jobID, err.Error())
		return
	}
	if p.cancelled(ctx, jobID) {
		return
	}

	// Phase 3: AI optimization and acceptance.
	p.reg.Advance(jobID, common.PhaseAIOptimization, "Generating optimization candidate.")
	timer = prometheus.NewTimer(metrics.AnalysisPhaseDuration.WithLabelValues(string(common.PhaseAIOptimization)))
	defer timer.ObserveDuration()

	progress := func(message string) { p.reg.Progress(jobID, message) }
	aiResult, err := p.optimizer.Optimize(ctx, source, baseline.GasProfile, progress)
	if err != nil {
		if p.cancelled(ctx, jobID) {
			return
		}
		p.reg.Fail(jobID, err.Error())
		return
	}
	if p.cancelled(ctx, jobID) {
		return
	}

	p.reg.Progress(jobID, "Validating optimization candidate.")
	outcome, err := p.validator.Validate(ctx, baseline, aiResult.OptimizedSource)
	if err != nil {
		if p.cancelled(ctx, jobID) {
			return
		}
		p.reg.Fail(jobID, err.Error())
		return
	}

	var optimized *common.GasReport
	if outcome.Verdict.Accepted {
		optimized = outcome.Optimized
		aiResult.OptimizedSource = outcome.Candidate
	} else {
		// A rejected candidate is not a failure: the job completes with
		// the original source and the rejection recorded.
		aiResult.OptimizedSource = source
		aiResult.Meta.Warnings = append(aiResult.Meta.Warnings, outcome.Verdict.Reason)
	}

	p.reg.Complete(jobID, &common.AnalysisResult{
		OriginalContract: source,
		StaticProfile:    *profile,
		Baseline:         *baseline,
		Optimized:        optimized,
		AI:               *aiResult,
		Validation:       outcome.Verdict,
		Attempts:         outcome.Attempts,
	})
}

// cancelled finalizes the job as cancelled when its context is done or a
// cancel was requested, and reports whether it did.
func (p *Pipeline) cancelled(ctx context.Context, jobID string) bool {
	if ctx.Err() == nil && !p.reg.Cancelled(jobID) {
		return false
	}
	p.reg.MarkCancelled(jobID)
	return true
}
