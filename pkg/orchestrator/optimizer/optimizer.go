// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package optimizer runs the iterative AI optimization loop: draft a plan,
// repair it when the JSON is malformed, generate the full optimized source,
// and verify it before handing the candidate to acceptance validation.
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
)

// ProgressFunc receives user-facing progress messages from the loop.
type ProgressFunc func(message string)

// Optimizer drives up to MaxOptimizerCycles draft/generate/verify cycles.
type Optimizer struct {
	cfg    config.AIConfig
	client *providerClient
}

// New creates an Optimizer from the AI configuration.
func New(cfg config.AIConfig) *Optimizer {
	return &Optimizer{
		cfg:    cfg,
		client: newProviderClient(cfg),
	}
}

type verifierVerdict struct {
	Approved  bool     `json:"approved"`
	Summary   string   `json:"summary"`
	RiskFlags []string `json:"riskFlags"`
}

// Optimize returns an optimization candidate for the source. It never fails
// on provider trouble: when every cycle is exhausted the result falls back
// to the original source with the failure recorded in warnings. The only
// error returned is context cancellation.
func (o *Optimizer) Optimize(ctx context.Context, source string, baseline common.GasProfile, progress ProgressFunc) (*common.AIResult, error) {
	var (
		warnings   []string
		feedback   string
		repairs    int
		retries    int
		lastReason string
	)

	for cycle := 1; cycle <= o.cfg.MaxOptimizerCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Infof("optimizer: cycle %d/%d", cycle, o.cfg.MaxOptimizerCycles)

		progress("Calling AI model…")
		draftAnswer, err := o.client.complete(ctx, draftSystemPrompt, draftUserPrompt(source, baseline, feedback), true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Every provider and model is exhausted; later cycles would
			// only repeat the same plan.
			lastReason = err.Error()
			warnings = append(warnings, fmt.Sprintf("cycle %d draft: %s", cycle, lastReason))
			break
		}
		retries += draftAnswer.Retries

		progress("Validating JSON…")
		plan, problems := parseDraft(draftAnswer.Text)
		if plan == nil {
			progress("Calling AI to repair…")
			repairs++
			repaired, err := o.client.complete(ctx, repairSystemPrompt,
				repairUserPrompt(draftUserPrompt(source, baseline, feedback), draftAnswer.Text, problems), true)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				lastReason = err.Error()
				warnings = append(warnings, fmt.Sprintf("cycle %d repair: %s", cycle, lastReason))
				feedback = lastReason
				continue
			}
			retries += repaired.Retries
			plan, problems = parseDraft(repaired.Text)
			if plan == nil {
				lastReason = "draft JSON failed schema validation: " + strings.Join(problems, "; ")
				warnings = append(warnings, fmt.Sprintf("cycle %d: %s", cycle, lastReason))
				feedback = lastReason
				continue
			}
		}

		progress("Calling AI model…")
		generated, err := o.client.complete(ctx, generateSystemPrompt, generateUserPrompt(source, plan), false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastReason = err.Error()
			warnings = append(warnings, fmt.Sprintf("cycle %d generate: %s", cycle, lastReason))
			feedback = lastReason
			continue
		}
		retries += generated.Retries

		candidate := postprocess(generated.Text)
		if err := sanityCheck(candidate); err != nil {
			lastReason = err.Error()
			warnings = append(warnings, fmt.Sprintf("cycle %d: %s", cycle, lastReason))
			feedback = lastReason
			continue
		}

		progress("Verifying optimization…")
		if flags := staticPrecheck(candidate); len(flags) > 0 {
			lastReason = "static check flagged: " + strings.Join(flags, ", ")
			warnings = append(warnings, fmt.Sprintf("cycle %d: %s", cycle, lastReason))
			feedback = lastReason
			continue
		}

		verdict, err := o.verify(ctx, source, candidate, plan.Edits, baseline)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastReason = err.Error()
			warnings = append(warnings, fmt.Sprintf("cycle %d verify: %s", cycle, lastReason))
			feedback = lastReason
			continue
		}
		if !verdict.Approved {
			lastReason = "verifier rejected: " + verdict.Summary
			if len(verdict.RiskFlags) > 0 {
				lastReason += " (" + strings.Join(verdict.RiskFlags, ", ") + ")"
			}
			warnings = append(warnings, fmt.Sprintf("cycle %d: %s", cycle, lastReason))
			feedback = lastReason
			continue
		}

		return &common.AIResult{
			Optimizations:        plan.Optimizations,
			Edits:                plan.Edits,
			OptimizedSource:      candidate,
			TotalEstimatedSaving: plan.TotalEstimatedSaving,
			Meta: common.OptimizerMeta{
				Provider:             generated.Provider,
				Model:                generated.Model,
				Retries:              retries,
				SchemaRepairAttempts: repairs,
				VerifierVerdict:      verdict.Summary,
				Warnings:             warnings,
			},
		}, nil
	}

	if lastReason == "" {
		lastReason = "no optimization cycle produced an approved candidate"
	}
	log.Warnf("optimizer: falling back to original source: %s", lastReason)
	return &common.AIResult{
		Optimizations:        []common.Optimization{},
		Edits:                []common.EditOp{},
		OptimizedSource:      source,
		TotalEstimatedSaving: fmt.Sprintf("Unavailable (AI failed: %s)", lastReason),
		Meta: common.OptimizerMeta{
			Retries:              retries,
			SchemaRepairAttempts: repairs,
			Warnings:             warnings,
		},
	}, nil
}

func (o *Optimizer) verify(ctx context.Context, original, candidate string, edits []common.EditOp, baseline common.GasProfile) (*verifierVerdict, error) {
	answer, err := o.client.complete(ctx, verifySystemPrompt, verifyUserPrompt(original, candidate, edits, baseline), true)
	if err != nil {
		return nil, err
	}
	var verdict verifierVerdict
	if err := json.Unmarshal([]byte(cleanupJSON(answer.Text)), &verdict); err != nil {
		return nil, fmt.Errorf("verifier answer is not valid JSON: %w", err)
	}
	return &verdict, nil
}

// FixCompileError makes one corrective AI call for a candidate that failed
// to compile during acceptance. Returns the corrected source, which may
// equal the input when the model has no better idea.
func (o *Optimizer) FixCompileError(ctx context.Context, candidate, compileErr string) (string, error) {
	answer, err := o.client.complete(ctx, compileFixSystemPrompt, compileFixUserPrompt(candidate, compileErr), false)
	if err != nil {
		return "", err
	}
	fixed := postprocess(answer.Text)
	if err := sanityCheck(fixed); err != nil {
		return "", err
	}
	return fixed, nil
}
