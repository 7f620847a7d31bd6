// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package solidity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gweizero/engine/pkg/common"
)

func TestParseDemoContract(t *testing.T) {
	source, err := os.ReadFile(filepath.Join("testdata", "GasOptimizerEasyDemo.sol"))
	require.NoError(t, err)

	profile, err := NewParser().Parse(string(source))
	require.NoError(t, err)

	assert.Equal(t, "GasOptimizerEasyDemo", profile.ContractName)
	require.Len(t, profile.Functions, 3)

	byName := map[string]common.FunctionDecl{}
	for _, fn := range profile.Functions {
		byName[fn.Name] = fn
	}

	assert.Equal(t, "public", byName["seedValues"].Visibility)
	assert.Equal(t, common.MutabilityNonpayable, byName["seedValues"].Mutability)
	assert.Equal(t, common.MutabilityView, byName["sumValues"].Mutability)
	assert.Equal(t, "external", byName["clear"].Visibility)
}

func TestParsePrimaryContractIsLast(t *testing.T) {
	source := `
contract Base {
    function ping() public pure returns (uint256) { return 1; }
}

contract Token is Base {
    function transfer(address to, uint256 amount) external payable {}
}`
	profile, err := NewParser().Parse(source)
	require.NoError(t, err)
	assert.Equal(t, "Token", profile.ContractName)

	byName := map[string]common.FunctionDecl{}
	for _, fn := range profile.Functions {
		byName[fn.Name] = fn
	}
	assert.Equal(t, common.MutabilityPure, byName["ping"].Mutability)
	assert.Equal(t, common.MutabilityPayable, byName["transfer"].Mutability)
}

func TestParseIgnoresComments(t *testing.T) {
	source := `
// contract NotReal {
/* contract AlsoNotReal { */
contract Real {
    function act() public {}
}`
	profile, err := NewParser().Parse(source)
	require.NoError(t, err)
	assert.Equal(t, "Real", profile.ContractName)
}

func TestParseNoContract(t *testing.T) {
	_, err := NewParser().Parse("library MathOnly { }")
	assert.ErrorIs(t, err, ErrNoContract)
}
