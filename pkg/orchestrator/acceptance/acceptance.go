// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package acceptance adjudicates AI optimization candidates: the candidate
// must keep the baseline's external ABI and stay inside the configured gas
// regression thresholds.
package acceptance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
)

// Profiler produces a dynamic gas profile for a source, normally through
// the worker.
type Profiler interface {
	Analyze(ctx context.Context, source string) (*common.GasReport, error)
}

// CompileFixer makes one corrective AI call for a candidate that failed to
// compile.
type CompileFixer interface {
	FixCompileError(ctx context.Context, candidate, compileErr string) (string, error)
}

// Outcome is the full result of validating one candidate.
type Outcome struct {
	Verdict   common.AcceptanceVerdict
	Optimized *common.GasReport
	Candidate string
	Attempts  int
}

// Validator runs the acceptance attempts loop.
type Validator struct {
	profiler Profiler
	fixer    CompileFixer
	cfg      config.AIConfig
}

// New creates a Validator. fixer may be nil to disable the corrective
// retry.
func New(profiler Profiler, fixer CompileFixer, cfg config.AIConfig) *Validator {
	return &Validator{profiler: profiler, fixer: fixer, cfg: cfg}
}

// Validate measures the candidate and decides acceptance, retrying up to
// the configured attempt budget. A compile failure gets at most one AI
// corrective retry across the whole loop.
func (v *Validator) Validate(ctx context.Context, baseline *common.GasReport, candidate string) (*Outcome, error) {
	maxAttempts := v.cfg.AcceptanceMaxAttempts
	fixTried := false
	var lastVerdict *common.AcceptanceVerdict

	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report, err := v.profiler.Analyze(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("acceptance: attempt %d measure failed: %v", attempt, err)
			if v.fixer != nil && !fixTried {
				fixTried = true
				fixed, fixErr := v.fixer.FixCompileError(ctx, candidate, err.Error())
				if fixErr != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					log.Warnf("acceptance: corrective retry failed: %v", fixErr)
				} else if fixed != candidate {
					candidate = fixed
				}
			}
			continue
		}

		verdict := v.decide(baseline, report)
		lastVerdict = &verdict
		if verdict.Accepted {
			return &Outcome{
				Verdict:   verdict,
				Optimized: report,
				Candidate: candidate,
				Attempts:  attempt,
			}, nil
		}
		log.Infof("acceptance: attempt %d rejected: %s", attempt, verdict.Reason)
	}

	// The last decided rejection reason is more useful than a generic
	// exhaustion message; fall back to the latter when every attempt died
	// before a decision.
	verdict := common.AcceptanceVerdict{
		Reason: fmt.Sprintf("No candidate passed acceptance after %d attempts.", maxAttempts),
	}
	if lastVerdict != nil {
		verdict = *lastVerdict
	}
	return &Outcome{
		Verdict:   verdict,
		Candidate: candidate,
		Attempts:  attempt,
	}, nil
}

// decide applies the acceptance rules in order: ABI compatibility first,
// then the two regression thresholds.
func (v *Validator) decide(baseline, candidate *common.GasReport) common.AcceptanceVerdict {
	compatible := Compatible(baseline.ABI, candidate.ABI)

	deployPct := regressionPct(float64(baseline.DeploymentGas), float64(candidate.DeploymentGas))
	avgBefore := baseline.AverageMutableGas()
	avgAfter := candidate.AverageMutableGas()
	avgPct := regressionPct(avgBefore, avgAfter)

	checks := common.AcceptanceChecks{
		Compiled:                            true,
		ABICompatible:                       compatible,
		DeploymentGasRegressionPct:          round2(deployPct),
		AverageMutableFunctionRegressionPct: round2(avgPct),
		Improved:                            candidate.DeploymentGas < baseline.DeploymentGas || avgAfter < avgBefore,
	}

	switch {
	case !compatible:
		return common.AcceptanceVerdict{Reason: "ABI compatibility check failed.", Checks: checks}
	case avgPct > v.cfg.MaxFnRegressionPct:
		return common.AcceptanceVerdict{
			Reason: fmt.Sprintf("Average mutable function gas regressed %.2f%% (max %.0f%%).", avgPct, v.cfg.MaxFnRegressionPct),
			Checks: checks,
		}
	case deployPct > v.cfg.MaxDeployRegressionPct:
		return common.AcceptanceVerdict{
			Reason: fmt.Sprintf("Deployment gas regressed %.2f%% (max %.0f%%).", deployPct, v.cfg.MaxDeployRegressionPct),
			Checks: checks,
		}
	case checks.Improved:
		return common.AcceptanceVerdict{Accepted: true, Reason: "Candidate accepted.", Checks: checks}
	default:
		return common.AcceptanceVerdict{Accepted: true, Reason: "Candidate accepted (neutral gas result).", Checks: checks}
	}
}

// Compatible reports whether two ABIs expose the same multiset of function
// entries. Entries are normalized to "name(types)@mutability" with
// canonical ABI type names; data locations never appear in the ABI, so a
// memory-to-calldata relocation stays compatible.
func Compatible(baselineABI, candidateABI json.RawMessage) bool {
	before, err := functionMultiset(baselineABI)
	if err != nil {
		return false
	}
	after, err := functionMultiset(candidateABI)
	if err != nil {
		return false
	}
	if len(before) != len(after) {
		return false
	}
	for key, n := range before {
		if after[key] != n {
			return false
		}
	}
	return true
}

func functionMultiset(raw json.RawMessage) (map[string]int, error) {
	entries, err := common.ParseABI(raw)
	if err != nil {
		return nil, err
	}
	set := make(map[string]int)
	for _, fn := range common.FunctionEntries(entries) {
		key := common.Signature(fn) + "@" + fn.StateMutability
		set[key]++
	}
	return set, nil
}

// regressionPct is the percent change from before to after; positive means
// more gas. Zero when the baseline is not positive.
func regressionPct(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return (after - before) / before * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
