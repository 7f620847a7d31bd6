// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package inputs synthesizes deterministic argument values from ABI input
// lists so gas estimation is repeatable across runs.
package inputs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gweizero/engine/pkg/common"
)

// maxNestingDepth bounds recursion into arrays and tuple components. Depth
// counts array/tuple wrappers, so a type with four nesting levels is the
// deepest accepted.
const maxNestingDepth = 4

var (
	arraySuffixRe = regexp.MustCompile(`^(.*)\[(\d*)\]$`)
	uintIntRe     = regexp.MustCompile(`^u?int\d*$`)
	bytesNRe      = regexp.MustCompile(`^bytes([1-9]|[12]\d|3[0-2])$`)
)

// Synthesize produces one deterministic value per ABI input. Values are
// JSON-serializable and are consumed by the gas estimator subprocess.
func Synthesize(abiInputs []common.ABIInput) ([]interface{}, error) {
	values := make([]interface{}, len(abiInputs))
	for i, input := range abiInputs {
		v, err := valueFor(input, i, 0)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func valueFor(input common.ABIInput, index, depth int) (interface{}, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("Unsupported nested type depth")
	}

	// Arrays first: strip the outermost suffix and recurse on the element.
	if m := arraySuffixRe.FindStringSubmatch(input.Type); m != nil {
		element := common.ABIInput{
			Name:       input.Name,
			Type:       m[1],
			Components: input.Components,
		}
		length := 2 // dynamic arrays get two elements
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("Unsupported ABI type: %s", input.Type)
			}
			length = n
		}
		values := make([]interface{}, length)
		for i := 0; i < length; i++ {
			v, err := valueFor(element, index+i, depth+1)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	switch {
	case uintIntRe.MatchString(input.Type):
		return index + 1, nil
	case input.Type == "address":
		return fmt.Sprintf("0x%040x", index+1), nil
	case input.Type == "bool":
		return index%2 == 0, nil
	case input.Type == "string":
		return fmt.Sprintf("gweizero_%d", index), nil
	case input.Type == "bytes":
		return "0x1234", nil
	case bytesNRe.MatchString(input.Type):
		n, _ := strconv.Atoi(strings.TrimPrefix(input.Type, "bytes"))
		return "0x" + strings.Repeat("11", n), nil
	case input.Type == "tuple":
		values := make([]interface{}, len(input.Components))
		for i, comp := range input.Components {
			v, err := valueFor(comp, index+i, depth+1)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	default:
		return nil, fmt.Errorf("Unsupported ABI type: %s", input.Type)
	}
}
