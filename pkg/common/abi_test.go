// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		name  string
		input ABIInput
		want  string
	}{
		{"plain uint256", ABIInput{Type: "uint256"}, "uint256"},
		{"uint alias", ABIInput{Type: "uint"}, "uint256"},
		{"int alias", ABIInput{Type: "int"}, "int256"},
		{"dynamic array", ABIInput{Type: "uint[]"}, "uint256[]"},
		{"fixed array", ABIInput{Type: "address[3]"}, "address[3]"},
		{"bytes", ABIInput{Type: "bytes"}, "bytes"},
		{
			"tuple",
			ABIInput{Type: "tuple", Components: []ABIInput{{Type: "uint"}, {Type: "bool"}}},
			"(uint256,bool)",
		},
		{
			"tuple array",
			ABIInput{Type: "tuple[]", Components: []ABIInput{{Type: "address"}}},
			"(address)[]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalType(tt.input))
		})
	}
}

func TestSignature(t *testing.T) {
	entry := ABIEntry{
		Type: "function",
		Name: "seedValues",
		Inputs: []ABIInput{
			{Name: "values", Type: "uint256[]"},
		},
	}
	assert.Equal(t, "seedValues(uint256[])", Signature(entry))

	empty := ABIEntry{Type: "function", Name: "pause"}
	assert.Equal(t, "pause()", Signature(empty))
}

func TestParseABISelectsFragments(t *testing.T) {
	raw := json.RawMessage(`[
		{"type": "constructor", "inputs": [{"name": "owner", "type": "address"}]},
		{"type": "function", "name": "total", "inputs": [], "stateMutability": "view"},
		{"type": "event", "name": "Seeded", "inputs": []}
	]`)

	entries, err := ParseABI(raw)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	fns := FunctionEntries(entries)
	require.Len(t, fns, 1)
	assert.Equal(t, "total", fns[0].Name)

	ctor := Constructor(entries)
	require.NotNil(t, ctor)
	assert.Equal(t, "address", ctor.Inputs[0].Type)
}

func TestParseABIRejectsGarbage(t *testing.T) {
	_, err := ParseABI(json.RawMessage(`{"not": "an array"}`))
	assert.Error(t, err)
}
