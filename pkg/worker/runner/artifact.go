// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gweizero/engine/pkg/common"
)

// artifact is one compiled contract as written by the estimator's compile
// step, one JSON file per contract.
type artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// deployable reports whether the artifact carries real bytecode. Interfaces
// and abstract contracts compile to an empty string or bare "0x".
func (a artifact) deployable() bool {
	code := strings.TrimPrefix(strings.TrimSpace(a.Bytecode), "0x")
	return code != ""
}

func (a artifact) hasConstructor() bool {
	entries, err := common.ParseABI(a.ABI)
	if err != nil {
		return false
	}
	return common.Constructor(entries) != nil
}

// selectMainArtifact picks the contract to measure out of the compile
// output. Non-deployable artifacts are skipped; among the rest a contract
// with an explicit constructor wins, ties broken by bytecode size. Flattened
// sources compile their base contracts too, and the primary contract is
// normally the largest.
func selectMainArtifact(dir string) (*artifact, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var best *artifact
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", path, err)
		}
		var a artifact
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("parse artifact %s: %w", path, err)
		}
		if !a.deployable() {
			continue
		}
		if best == nil || preferred(a, *best) {
			candidate := a
			best = &candidate
		}
	}
	if best == nil {
		return nil, fmt.Errorf("compile produced no deployable artifact")
	}
	return best, nil
}

func preferred(a, b artifact) bool {
	ac, bc := a.hasConstructor(), b.hasConstructor()
	if ac != bc {
		return ac
	}
	return len(a.Bytecode) > len(b.Bytecode)
}
