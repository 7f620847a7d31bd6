// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package common holds the domain types shared between the orchestrator and
// the gas measurement worker: job phases, gas profiles, AI optimizer output
// and acceptance verdicts.
package common

import (
	"encoding/json"
	"time"
)

// Phase is the observable status of an analysis job on the orchestrator.
type Phase string

const (
	PhaseQueued          Phase = "queued"
	PhaseStaticAnalysis  Phase = "static_analysis"
	PhaseDynamicAnalysis Phase = "dynamic_analysis"
	PhaseAIOptimization  Phase = "ai_optimization"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
	PhaseCancelled       Phase = "cancelled"
)

// Terminal reports whether no further phase transitions are observable.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// WorkerStatus is the observable status of a worker job.
type WorkerStatus string

const (
	WorkerStatusQueued     WorkerStatus = "queued"
	WorkerStatusProcessing WorkerStatus = "processing"
	WorkerStatusCompleted  WorkerStatus = "completed"
	WorkerStatusFailed     WorkerStatus = "failed"
	WorkerStatusCancelled  WorkerStatus = "cancelled"
)

// Terminal reports whether the worker job reached a final state.
func (s WorkerStatus) Terminal() bool {
	return s == WorkerStatusCompleted || s == WorkerStatusFailed || s == WorkerStatusCancelled
}

// Retryable reports whether a terminal worker job may be retried.
func (s WorkerStatus) Retryable() bool {
	return s == WorkerStatusFailed || s == WorkerStatusCancelled
}

// Mutability is the Solidity state mutability of a function.
type Mutability string

const (
	MutabilityView       Mutability = "view"
	MutabilityPure       Mutability = "pure"
	MutabilityNonpayable Mutability = "nonpayable"
	MutabilityPayable    Mutability = "payable"
)

// Mutating reports whether the function can modify contract state.
func (m Mutability) Mutating() bool {
	return m == MutabilityNonpayable || m == MutabilityPayable
}

// ProgressEvent is a single entry in a job's progress stream.
type ProgressEvent struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FunctionGasEntry is the measurement outcome for one function signature.
// It is a tagged union: a measured entry carries GasUsed, an unmeasured
// entry carries the short Reason instead.
type FunctionGasEntry struct {
	GasUsed    *uint64    `json:"gasUsed,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Mutability Mutability `json:"stateMutability"`
}

// Measured reports whether the entry carries an actual gas measurement.
func (e FunctionGasEntry) Measured() bool {
	return e.GasUsed != nil
}

// MeasuredEntry builds a measured FunctionGasEntry.
func MeasuredEntry(gasUsed uint64, mutability Mutability) FunctionGasEntry {
	return FunctionGasEntry{GasUsed: &gasUsed, Mutability: mutability}
}

// UnmeasuredEntry builds an unmeasured FunctionGasEntry with a reason.
func UnmeasuredEntry(reason string, mutability Mutability) FunctionGasEntry {
	return FunctionGasEntry{Reason: reason, Mutability: mutability}
}

// GasProfile maps canonical function signatures to their gas entries.
type GasProfile struct {
	DeploymentGas uint64                      `json:"deploymentGas"`
	Functions     map[string]FunctionGasEntry `json:"functions"`
}

// AverageMutableGas returns the average gas over measured entries whose
// mutability is nonpayable or payable. Returns 0 when nothing qualifies.
func (p GasProfile) AverageMutableGas() float64 {
	var sum uint64
	var count int
	for _, entry := range p.Functions {
		if entry.Measured() && entry.Mutability.Mutating() {
			sum += *entry.GasUsed
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// GasReport is the full dynamic profile produced by the worker for one
// compile/deploy/measure run.
type GasReport struct {
	GasProfile
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
	ContractName string          `json:"contractName"`
}

// FunctionDecl is one function from the static contract profile.
type FunctionDecl struct {
	Name       string     `json:"name"`
	Visibility string     `json:"visibility"`
	Mutability Mutability `json:"stateMutability"`
}

// ContractProfile is the static analysis result: contract name plus the
// declared function list.
type ContractProfile struct {
	ContractName string         `json:"contractName"`
	Functions    []FunctionDecl `json:"functions"`
}

// EditAction is the kind of a source edit proposed by the optimizer.
type EditAction string

const (
	EditActionReplace EditAction = "replace"
	EditActionInsert  EditAction = "insert"
	EditActionDelete  EditAction = "delete"
)

// EditOp is a single edit operation from the AI draft.
type EditOp struct {
	Action    EditAction `json:"action"`
	LineStart int        `json:"lineStart"`
	LineEnd   int        `json:"lineEnd"`
	Before    string     `json:"before"`
	After     string     `json:"after"`
	Rationale string     `json:"rationale"`
}

// Optimization is one named optimization from the AI draft.
type Optimization struct {
	Name            string `json:"name"`
	Detail          string `json:"detail,omitempty"`
	EstimatedSaving string `json:"estimatedSaving,omitempty"`
}

// OptimizerMeta describes how the AI result was obtained.
type OptimizerMeta struct {
	Provider             string   `json:"provider"`
	Model                string   `json:"model"`
	Retries              int      `json:"retries"`
	SchemaRepairAttempts int      `json:"schemaRepairAttempts"`
	VerifierVerdict      string   `json:"verifierVerdict,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
}

// AIResult is the optimizer output for one analysis.
type AIResult struct {
	Optimizations        []Optimization `json:"optimizations"`
	Edits                []EditOp       `json:"edits"`
	OptimizedSource      string         `json:"optimizedCode"`
	TotalEstimatedSaving string         `json:"totalEstimatedSaving"`
	Meta                 OptimizerMeta  `json:"meta"`
}

// AcceptanceChecks are the individual measurements behind an acceptance
// verdict.
type AcceptanceChecks struct {
	Compiled                            bool    `json:"compiled"`
	ABICompatible                       bool    `json:"abiCompatible"`
	DeploymentGasRegressionPct          float64 `json:"deploymentGasRegressionPct"`
	AverageMutableFunctionRegressionPct float64 `json:"averageMutableFunctionRegressionPct"`
	Improved                            bool    `json:"improved"`
}

// AcceptanceVerdict is the accept/reject decision for a candidate.
type AcceptanceVerdict struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason"`
	Checks   AcceptanceChecks `json:"checks"`
}

// AnalysisResult is emitted when an analysis job completes.
type AnalysisResult struct {
	OriginalContract string            `json:"originalContract"`
	StaticProfile    ContractProfile   `json:"staticProfile"`
	Baseline         GasReport         `json:"baseline"`
	Optimized        *GasReport        `json:"optimized,omitempty"`
	AI               AIResult          `json:"ai"`
	Validation       AcceptanceVerdict `json:"optimizationValidation"`
	Attempts         int               `json:"attempts"`
}
