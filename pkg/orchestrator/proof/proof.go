// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package proof derives the on-chain optimization proof payload from a
// completed analysis and submits it to the proof registry contract.
package proof

import (
	"context"
	"errors"
	"fmt"
	"math"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/orchestrator/registry"
)

var (
	// ErrNotEligible is returned when the job cannot back a proof.
	ErrNotEligible = errors.New("job has no accepted optimization")
	// ErrChainNotConfigured is returned when the chain environment is
	// incomplete.
	ErrChainNotConfigured = errors.New("chain submission is not configured")
)

// Payload is the tamper-evident proof derived from an accepted analysis.
type Payload struct {
	OriginalHash      string `json:"originalHash"`
	OptimizedHash     string `json:"optimizedHash"`
	ContractAddress   string `json:"contractAddress"`
	ContractName      string `json:"contractName"`
	OriginalGas       uint32 `json:"originalGas"`
	OptimizedGas      uint32 `json:"optimizedGas"`
	SavingsPercentBps uint32 `json:"savingsPercentBps"`
}

// Builder derives and submits proof payloads.
type Builder struct {
	cfg config.ChainConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg config.ChainConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build derives the payload for a completed, accepted job. contractAddress
// and contractName are optional caller overrides.
func (b *Builder) Build(job registry.JobView, contractAddress, contractName string) (*Payload, error) {
	if job.Status != common.PhaseCompleted || job.Result == nil {
		return nil, fmt.Errorf("%w: job is not completed", ErrNotEligible)
	}
	result := job.Result
	if !result.Validation.Accepted || result.Optimized == nil {
		return nil, ErrNotEligible
	}

	original := result.OriginalContract
	optimized := result.AI.OptimizedSource
	if optimized == "" {
		optimized = original
	}

	originalGas := representativeGas(result.Baseline.GasProfile)
	optimizedGas := representativeGas(result.Optimized.GasProfile)

	if contractName == "" {
		contractName = result.Baseline.ContractName
	}
	if contractAddress == "" {
		contractAddress = (ethcommon.Address{}).Hex()
	}

	return &Payload{
		OriginalHash:      hashHex(original),
		OptimizedHash:     hashHex(optimized),
		ContractAddress:   contractAddress,
		ContractName:      contractName,
		OriginalGas:       originalGas,
		OptimizedGas:      optimizedGas,
		SavingsPercentBps: SavingsBps(originalGas, optimizedGas),
	}, nil
}

// SavingsBps is the clamped basis-point saving from before to after.
func SavingsBps(before, after uint32) uint32 {
	if before == 0 {
		return 0
	}
	bps := math.Round((float64(before) - float64(after)) / float64(before) * 10000)
	if bps < 0 {
		return 0
	}
	if bps > 10000 {
		return 10000
	}
	return uint32(bps)
}

// representativeGas is the average measured gas over mutating functions,
// falling back to deployment gas when nothing mutable was measured.
// Clamped to u32 for the registry contract.
func representativeGas(profile common.GasProfile) uint32 {
	avg := profile.AverageMutableGas()
	if avg <= 0 {
		avg = float64(profile.DeploymentGas)
	}
	if avg > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(math.Round(avg))
}

func hashHex(s string) string {
	return fmt.Sprintf("0x%x", crypto.Keccak256([]byte(s)))
}

// Configured reports whether on-chain submission can work.
func (b *Builder) Configured() error {
	switch {
	case b.cfg.RPCURL == "":
		return fmt.Errorf("%w: CHAIN_RPC_URL is not set", ErrChainNotConfigured)
	case b.cfg.SignerKey == "":
		return fmt.Errorf("%w: BACKEND_SIGNER_PRIVATE_KEY is not set", ErrChainNotConfigured)
	case b.cfg.RegistryAddress == "":
		return fmt.Errorf("%w: GAS_OPTIMIZATION_REGISTRY_ADDRESS is not set", ErrChainNotConfigured)
	default:
		return nil
	}
}

// Mint builds the payload and submits it on chain.
func (b *Builder) Mint(ctx context.Context, job registry.JobView, contractAddress, contractName string) (*Payload, *Receipt, error) {
	if err := b.Configured(); err != nil {
		return nil, nil, err
	}
	payload, err := b.Build(job, contractAddress, contractName)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := b.submit(ctx, payload)
	if err != nil {
		return nil, nil, err
	}
	return payload, receipt, nil
}
