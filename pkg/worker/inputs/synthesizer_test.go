// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package inputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gweizero/engine/pkg/common"
)

func TestSynthesizeScalars(t *testing.T) {
	values, err := Synthesize([]common.ABIInput{
		{Type: "uint256"},
		{Type: "address"},
		{Type: "bool"},
		{Type: "string"},
		{Type: "bytes"},
		{Type: "bytes4"},
	})
	require.NoError(t, err)
	require.Len(t, values, 6)

	assert.Equal(t, 1, values[0])
	assert.Equal(t, "0x0000000000000000000000000000000000000002", values[1])
	assert.Equal(t, true, values[2]) // index 2 is even
	assert.Equal(t, "gweizero_3", values[3])
	assert.Equal(t, "0x1234", values[4])
	assert.Equal(t, "0x11111111", values[5])
}

func TestSynthesizeDeterministic(t *testing.T) {
	in := []common.ABIInput{{Type: "uint256"}, {Type: "string"}}
	a, err := Synthesize(in)
	require.NoError(t, err)
	b, err := Synthesize(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSynthesizeDynamicArray(t *testing.T) {
	values, err := Synthesize([]common.ABIInput{{Type: "uint256[]"}})
	require.NoError(t, err)
	// Two elements, at index and index+1.
	assert.Equal(t, []interface{}{1, 2}, values[0])
}

func TestSynthesizeFixedArray(t *testing.T) {
	values, err := Synthesize([]common.ABIInput{{Type: "bool[3]"}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, false, true}, values[0])
}

func TestSynthesizeTuple(t *testing.T) {
	values, err := Synthesize([]common.ABIInput{{
		Type: "tuple",
		Components: []common.ABIInput{
			{Type: "uint256"},
			{Type: "string"},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, "gweizero_1"}, values[0])
}

func TestSynthesizeDepthLimit(t *testing.T) {
	// Four nesting levels is the deepest accepted type.
	values, err := Synthesize([]common.ABIInput{{Type: "uint256[][][][]"}})
	require.NoError(t, err)
	require.Len(t, values, 1)

	_, err = Synthesize([]common.ABIInput{{Type: "uint256[][][][][]"}})
	require.Error(t, err)
	assert.EqualError(t, err, "Unsupported nested type depth")
}

func TestSynthesizeUnknownType(t *testing.T) {
	_, err := Synthesize([]common.ABIInput{{Type: "function"}})
	require.Error(t, err)
	assert.EqualError(t, err, "Unsupported ABI type: function")
}
