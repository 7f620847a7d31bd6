// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package runner executes the gas estimator subprocess for one worker job:
// compile the submitted source, select the main artifact, synthesize
// deterministic inputs, then deploy and measure. The estimator CLI is an
// external collaborator; the runner owns its temporary files and removes
// them on every exit path.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/metrics"
	"github.com/gweizero/engine/pkg/worker/inputs"
)

// Runner drives the estimator subprocess. Safe for use by a single caller
// at a time; the worker store serializes jobs per host because the
// estimator writes into a host-global compiler cache.
type Runner struct {
	cfg config.WorkerConfig
}

// New creates a Runner.
func New(cfg config.WorkerConfig) *Runner {
	return &Runner{cfg: cfg}
}

// inputsFile is the deterministic argument plan handed to the estimator.
type inputsFile struct {
	Constructor []interface{}            `json:"constructor"`
	Functions   map[string][]interface{} `json:"functions"`
}

// toolOutput is the JSON the estimator prints to stdout in measure mode.
type toolOutput struct {
	DeploymentGas string                     `json:"deploymentGas"`
	Functions     map[string]toolOutputEntry `json:"functions"`
}

type toolOutputEntry struct {
	GasUsed         string `json:"gasUsed,omitempty"`
	Reason          string `json:"reason,omitempty"`
	StateMutability string `json:"stateMutability"`
}

// Run compiles, deploys and measures the given source. The context carries
// the job's abort signal; on cancellation the subprocess is terminated and
// the temporary files are still removed.
func (r *Runner) Run(ctx context.Context, jobID, source string) (*common.GasReport, error) {
	timer := prometheus.NewTimer(metrics.SubprocessDuration)
	defer timer.ObserveDuration()

	contractsDir := filepath.Join(r.cfg.EstimatorDir, "contracts")
	inputsDir := filepath.Join(r.cfg.EstimatorDir, "inputs")
	for _, dir := range []string{contractsDir, inputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare build dirs: %w", err)
		}
	}

	srcPath := filepath.Join(contractsDir, fmt.Sprintf("Job_%s.sol", jobID))
	artifactDir := filepath.Join(r.cfg.EstimatorDir, "artifacts", "job-"+jobID)
	inputsPath := filepath.Join(inputsDir, fmt.Sprintf("job-%s.json", jobID))

	defer func() {
		// Every exit path, including abort, removes the per-job files.
		if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("runner: failed to remove %s: %v", srcPath, err)
		}
		if err := os.Remove(inputsPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("runner: failed to remove %s: %v", inputsPath, err)
		}
		if err := os.RemoveAll(artifactDir); err != nil {
			log.Warnf("runner: failed to remove %s: %v", artifactDir, err)
		}
	}()

	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write contract source: %w", err)
	}

	env := []string{
		"GWEIZERO_CONTRACT_FILE=" + srcPath,
		"GWEIZERO_ARTIFACT_DIR=" + artifactDir,
		"GWEIZERO_INPUTS_FILE=" + inputsPath,
	}

	// Phase 1: compile.
	if _, err := r.exec(ctx, "compile", env); err != nil {
		return nil, err
	}

	artifact, err := selectMainArtifact(artifactDir)
	if err != nil {
		return nil, err
	}

	// Phase 2: synthesize the deterministic argument plan from the ABI.
	entries, err := common.ParseABI(artifact.ABI)
	if err != nil {
		return nil, err
	}

	plan := inputsFile{Constructor: []interface{}{}, Functions: map[string][]interface{}{}}
	unsupported := map[string]common.FunctionGasEntry{}

	if ctor := common.Constructor(entries); ctor != nil {
		values, err := inputs.Synthesize(ctor.Inputs)
		if err != nil {
			return nil, fmt.Errorf("constructor inputs: %w", err)
		}
		plan.Constructor = values
	}
	for _, fn := range common.FunctionEntries(entries) {
		sig := common.Signature(fn)
		values, err := inputs.Synthesize(fn.Inputs)
		if err != nil {
			unsupported[sig] = common.UnmeasuredEntry(sanitizeReason(err.Error()), common.Mutability(fn.StateMutability))
			continue
		}
		plan.Functions[sig] = values
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal input plan: %w", err)
	}
	if err := os.WriteFile(inputsPath, planJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write input plan: %w", err)
	}

	// Phase 3: deploy and measure.
	stdout, err := r.exec(ctx, "measure", env)
	if err != nil {
		return nil, err
	}

	payload, err := extractJSONObject(stdout)
	if err != nil {
		return nil, err
	}
	var out toolOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("parse estimator output: %w", err)
	}

	report, err := buildReport(artifact, out)
	if err != nil {
		return nil, err
	}
	for sig, entry := range unsupported {
		report.Functions[sig] = entry
	}
	return report, nil
}

func buildReport(artifact *artifact, out toolOutput) (*common.GasReport, error) {
	deployGas, err := strconv.ParseUint(strings.TrimSpace(out.DeploymentGas), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse deployment gas %q: %w", out.DeploymentGas, err)
	}

	functions := make(map[string]common.FunctionGasEntry, len(out.Functions))
	for sig, entry := range out.Functions {
		mutability := common.Mutability(entry.StateMutability)
		if entry.GasUsed != "" {
			gas, err := strconv.ParseUint(strings.TrimSpace(entry.GasUsed), 10, 64)
			if err != nil {
				functions[sig] = common.UnmeasuredEntry(sanitizeReason("unparseable gas value "+entry.GasUsed), mutability)
				continue
			}
			functions[sig] = common.MeasuredEntry(gas, mutability)
			continue
		}
		functions[sig] = common.UnmeasuredEntry(sanitizeReason(entry.Reason), mutability)
	}

	return &common.GasReport{
		GasProfile: common.GasProfile{
			DeploymentGas: deployGas,
			Functions:     functions,
		},
		ABI:          artifact.ABI,
		Bytecode:     artifact.Bytecode,
		ContractName: artifact.ContractName,
	}, nil
}

// extractJSONObject returns the first balanced {...} region of the
// estimator's stdout; the tool may print build noise around it.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in estimator output")
	}
	return s[start : end+1], nil
}

// sanitizeReason collapses whitespace and truncates so compiler noise does
// not leak into job records.
func sanitizeReason(reason string) string {
	clean := strings.Join(strings.Fields(reason), " ")
	const maxLen = 200
	if len(clean) > maxLen {
		clean = clean[:maxLen] + "..."
	}
	return clean
}
