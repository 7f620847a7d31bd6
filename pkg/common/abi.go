// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ABIInput is one parameter of an ABI function or constructor fragment.
type ABIInput struct {
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	InternalType string     `json:"internalType,omitempty"`
	Components   []ABIInput `json:"components,omitempty"`
}

// ABIEntry is one fragment of a contract ABI. Only the fields the engine
// consumes are mapped; the compiler emits more.
type ABIEntry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Inputs          []ABIInput `json:"inputs"`
	Outputs         []ABIInput `json:"outputs,omitempty"`
	StateMutability string     `json:"stateMutability,omitempty"`
}

// ParseABI decodes a raw ABI JSON array into entries.
func ParseABI(raw json.RawMessage) ([]ABIEntry, error) {
	var entries []ABIEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	return entries, nil
}

// CanonicalType normalizes an ABI type string to its canonical form:
// aliases are expanded (uint -> uint256, int -> int256), array suffixes are
// preserved, and tuples are flattened to a parenthesized component list.
// Data locations never appear in ABI type strings, so relocating a parameter
// between memory and calldata does not change its canonical type.
func CanonicalType(input ABIInput) string {
	base := input.Type
	suffix := ""

	// Split trailing array brackets off the element type.
	if idx := strings.Index(base, "["); idx >= 0 {
		suffix = base[idx:]
		base = base[:idx]
	}

	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	case "tuple":
		parts := make([]string, len(input.Components))
		for i, comp := range input.Components {
			parts[i] = CanonicalType(comp)
		}
		base = "(" + strings.Join(parts, ",") + ")"
	}

	return base + suffix
}

// Signature returns the canonical function signature `name(type1,type2,...)`
// for an ABI function entry.
func Signature(entry ABIEntry) string {
	parts := make([]string, len(entry.Inputs))
	for i, input := range entry.Inputs {
		parts[i] = CanonicalType(input)
	}
	return entry.Name + "(" + strings.Join(parts, ",") + ")"
}

// FunctionEntries filters an ABI down to its function fragments.
func FunctionEntries(entries []ABIEntry) []ABIEntry {
	var fns []ABIEntry
	for _, e := range entries {
		if e.Type == "function" {
			fns = append(fns, e)
		}
	}
	return fns
}

// Constructor returns the constructor fragment of an ABI, or nil when the
// contract declares none.
func Constructor(entries []ABIEntry) *ABIEntry {
	for i := range entries {
		if entries[i].Type == "constructor" {
			return &entries[i]
		}
	}
	return nil
}
