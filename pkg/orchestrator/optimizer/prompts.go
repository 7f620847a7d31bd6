// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package optimizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gweizero/engine/pkg/common"
)

const draftSystemPrompt = `You are a Solidity gas optimization expert. You respond with a single JSON object and nothing else. The object has exactly these keys:
- "optimizations": array of {"name": string, "detail": string, "estimatedSaving": string}, max 3 entries, names under 80 chars
- "edits": array of {"action": "replace"|"insert"|"delete", "lineStart": number, "lineEnd": number, "before": string, "after": string, "rationale": string}
- "totalEstimatedSaving": string
Only propose edits that preserve the contract's external ABI and behavior.`

func draftUserPrompt(source string, baseline common.GasProfile, feedback string) string {
	profile, _ := json.Marshal(baseline)
	var b strings.Builder
	fmt.Fprintf(&b, "Contract source:\n%s\n\nMeasured gas profile:\n%s\n", source, profile)
	if feedback != "" {
		fmt.Fprintf(&b, "\nA previous optimization attempt failed: %s\nPropose a different, safer plan.\n", feedback)
	}
	b.WriteString("\nReturn the optimization plan as JSON.")
	return b.String()
}

const repairSystemPrompt = `You fix malformed JSON. Respond with the corrected JSON object only, no commentary, no code fences.`

func repairUserPrompt(original, badOutput string, problems []string) string {
	return fmt.Sprintf(
		"The request was:\n%s\n\nThe answer below is not valid against the required schema:\n%s\n\nSchema errors:\n- %s\n\nReturn the corrected JSON object.",
		original, badOutput, strings.Join(problems, "\n- "),
	)
}

const generateSystemPrompt = `You are a Solidity engineer. Apply the given edit plan to the contract and return the FULL optimized source file, compilable as-is. Preserve the external ABI exactly: no function added, removed or re-typed. Return only Solidity code, no explanation.`

func generateUserPrompt(source string, d *draft) string {
	edits, _ := json.Marshal(d.Edits)
	return fmt.Sprintf("Original source:\n%s\n\nEdit plan:\n%s\n\nReturn the complete optimized source.", source, edits)
}

const verifySystemPrompt = `You review Solidity gas optimizations. Respond with a single JSON object: {"approved": boolean, "summary": string, "riskFlags": string[]}. Approve only when the optimized contract compiles under solc ^0.8, preserves the external ABI, and preserves behavior.`

func verifyUserPrompt(original, candidate string, edits []common.EditOp, baseline common.GasProfile) string {
	editsJSON, _ := json.Marshal(edits)
	profile, _ := json.Marshal(baseline)
	return fmt.Sprintf(
		"Original source:\n%s\n\nOptimized candidate:\n%s\n\nApplied edits:\n%s\n\nBaseline gas profile:\n%s\n\nReturn your verdict as JSON.",
		original, candidate, editsJSON, profile,
	)
}

const compileFixSystemPrompt = `You are a Solidity engineer. The candidate below fails to compile. Fix the compilation error with the smallest possible change, keep every optimization that still compiles, and preserve the external ABI. Return only the full corrected source.`

// compileHints maps compiler error kinds to a canned remediation hint.
var compileHints = []struct {
	marker string
	hint   string
}{
	{"stack too deep", "reduce local variables or split the function into smaller ones"},
	{"data location", "value-type parameters take no data location; only arrays, structs and strings do"},
	{"storage", "use memory or calldata for reference-type parameters; storage is for state variables"},
	{"undeclared identifier", "an identifier was renamed or removed by an edit; restore the original name"},
	{"expected", "a syntax error was introduced; re-check braces and semicolons around the edited lines"},
}

func compileFixUserPrompt(candidate, compileErr string) string {
	hint := "fix the reported error without changing any function signature"
	lower := strings.ToLower(compileErr)
	for _, h := range compileHints {
		if strings.Contains(lower, h.marker) {
			hint = h.hint
			break
		}
	}
	return fmt.Sprintf("Candidate source:\n%s\n\nCompiler error:\n%s\n\nHint: %s.\n\nReturn the full corrected source.", candidate, compileErr, hint)
}
