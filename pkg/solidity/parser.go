// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package solidity extracts the static contract profile from Solidity
// source: the primary contract name and its declared functions. It is a
// lightweight scanner, not a full AST parser; the dynamic profile comes from
// the compiler through the worker.
package solidity

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gweizero/engine/pkg/common"
)

// ErrNoContract is returned when the source declares no contract.
var ErrNoContract = errors.New("no contract declaration found")

// Parser produces a static contract profile from source text.
type Parser interface {
	Parse(source string) (*common.ContractProfile, error)
}

type scanner struct{}

// NewParser returns the default scanner-based parser.
func NewParser() Parser {
	return scanner{}
}

var (
	contractRe = regexp.MustCompile(`(?m)^\s*(?:abstract\s+)?contract\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	functionRe = regexp.MustCompile(`function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(([^)]*)\)([^{;]*)`)

	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func (scanner) Parse(source string) (*common.ContractProfile, error) {
	stripped := blockCommentRe.ReplaceAllString(source, "")
	stripped = lineCommentRe.ReplaceAllString(stripped, "")

	contracts := contractRe.FindAllStringSubmatch(stripped, -1)
	if len(contracts) == 0 {
		return nil, ErrNoContract
	}
	// The last declared contract is the primary one; bases come first in
	// flattened sources.
	name := contracts[len(contracts)-1][1]

	var functions []common.FunctionDecl
	for _, m := range functionRe.FindAllStringSubmatch(stripped, -1) {
		modifiers := m[3]
		functions = append(functions, common.FunctionDecl{
			Name:       m[1],
			Visibility: visibilityOf(modifiers),
			Mutability: mutabilityOf(modifiers),
		})
	}

	return &common.ContractProfile{
		ContractName: name,
		Functions:    functions,
	}, nil
}

func visibilityOf(modifiers string) string {
	for _, v := range []string{"external", "public", "internal", "private"} {
		if hasWord(modifiers, v) {
			return v
		}
	}
	return "public"
}

func mutabilityOf(modifiers string) common.Mutability {
	switch {
	case hasWord(modifiers, "view"):
		return common.MutabilityView
	case hasWord(modifiers, "pure"):
		return common.MutabilityPure
	case hasWord(modifiers, "payable"):
		return common.MutabilityPayable
	default:
		return common.MutabilityNonpayable
	}
}

func hasWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}
