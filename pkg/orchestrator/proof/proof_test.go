// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package proof

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/orchestrator/registry"
)

func profileWithAvg(avg uint64) common.GasProfile {
	return common.GasProfile{
		DeploymentGas: 500000,
		Functions: map[string]common.FunctionGasEntry{
			"seedValues(uint256[])": common.MeasuredEntry(avg, common.MutabilityNonpayable),
		},
	}
}

func acceptedJob(originalAvg, optimizedAvg uint64) registry.JobView {
	return registry.JobView{
		ID:     "job-1",
		Status: common.PhaseCompleted,
		Result: &common.AnalysisResult{
			OriginalContract: "contract Demo { uint256 x; }",
			Baseline: common.GasReport{
				GasProfile:   profileWithAvg(originalAvg),
				ContractName: "Demo",
			},
			Optimized: &common.GasReport{
				GasProfile:   profileWithAvg(optimizedAvg),
				ContractName: "Demo",
			},
			AI: common.AIResult{
				OptimizedSource: "contract Demo { uint256 y; }",
			},
			Validation: common.AcceptanceVerdict{Accepted: true},
		},
	}
}

func TestSavingsBps(t *testing.T) {
	assert.Equal(t, uint32(2000), SavingsBps(100000, 80000))
	assert.Equal(t, uint32(0), SavingsBps(100000, 100000))
	assert.Equal(t, uint32(0), SavingsBps(100000, 120000)) // regression clamps to 0
	assert.Equal(t, uint32(10000), SavingsBps(100000, 0))
	assert.Equal(t, uint32(0), SavingsBps(0, 50))
	assert.Equal(t, uint32(3333), SavingsBps(30000, 20000))
}

func TestBuildPayload(t *testing.T) {
	builder := NewBuilder(config.ChainConfig{})
	job := acceptedJob(100000, 80000)

	payload, err := builder.Build(job, "", "")
	require.NoError(t, err)

	assert.Equal(t, uint32(2000), payload.SavingsPercentBps)
	assert.Equal(t, uint32(100000), payload.OriginalGas)
	assert.Equal(t, uint32(80000), payload.OptimizedGas)
	assert.Equal(t, "Demo", payload.ContractName)

	original := job.Result.OriginalContract
	optimized := job.Result.AI.OptimizedSource
	assert.Equal(t, fmt.Sprintf("0x%x", crypto.Keccak256([]byte(original))), payload.OriginalHash)
	assert.Equal(t, fmt.Sprintf("0x%x", crypto.Keccak256([]byte(optimized))), payload.OptimizedHash)
	assert.NotEqual(t, payload.OriginalHash, payload.OptimizedHash)
}

func TestBuildHashFallsBackToOriginal(t *testing.T) {
	job := acceptedJob(100000, 80000)
	job.Result.AI.OptimizedSource = ""

	payload, err := NewBuilder(config.ChainConfig{}).Build(job, "", "")
	require.NoError(t, err)
	assert.Equal(t, payload.OriginalHash, payload.OptimizedHash)
}

func TestBuildUsesDeploymentGasWhenNothingMutable(t *testing.T) {
	job := acceptedJob(100000, 80000)
	job.Result.Baseline.Functions = map[string]common.FunctionGasEntry{
		"total()": common.MeasuredEntry(2500, common.MutabilityView),
	}

	payload, err := NewBuilder(config.ChainConfig{}).Build(job, "", "")
	require.NoError(t, err)
	assert.Equal(t, uint32(500000), payload.OriginalGas)
}

func TestBuildRefusesIncompleteJob(t *testing.T) {
	builder := NewBuilder(config.ChainConfig{})

	running := acceptedJob(100000, 80000)
	running.Status = common.PhaseAIOptimization
	_, err := builder.Build(running, "", "")
	assert.ErrorIs(t, err, ErrNotEligible)

	rejected := acceptedJob(100000, 80000)
	rejected.Result.Validation.Accepted = false
	_, err = builder.Build(rejected, "", "")
	assert.ErrorIs(t, err, ErrNotEligible)

	noProfile := acceptedJob(100000, 80000)
	noProfile.Result.Optimized = nil
	_, err = builder.Build(noProfile, "", "")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestConfiguredRequiresChainEnv(t *testing.T) {
	assert.ErrorIs(t, NewBuilder(config.ChainConfig{}).Configured(), ErrChainNotConfigured)
	assert.ErrorIs(t, NewBuilder(config.ChainConfig{RPCURL: "http://localhost:8545"}).Configured(), ErrChainNotConfigured)

	complete := config.ChainConfig{
		RPCURL:          "http://localhost:8545",
		SignerKey:       "0xabc",
		RegistryAddress: "0xdef",
	}
	assert.NoError(t, NewBuilder(complete).Configured())
}
