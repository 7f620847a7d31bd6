// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package optimizer

import (
	"fmt"
	"regexp"
	"strings"
)

// minSourceLength is the shortest plausible contract source.
const minSourceLength = 40

var (
	uncheckedHeaderRe = regexp.MustCompile(`for\s*\(([^)]*?)unchecked\s*\{\s*([^}]*?)\s*;?\s*\}\s*\)`)
	requireErrorRe    = regexp.MustCompile(`require\s*\(\s*(.+?)\s*,\s*([A-Z][A-Za-z0-9_]*\s*\([^()]*\))\s*\)\s*;`)
	storageValueRe    = regexp.MustCompile(`\b(uint\d*|int\d*|bool|address|bytes\d+)\s+storage\b`)
	forUncheckedRe    = regexp.MustCompile(`for\s*\([^)]*unchecked`)
)

// postprocess normalizes generated source: unwrap code fences and rewrite
// the two patterns models keep producing that solc rejects.
func postprocess(raw string) string {
	code := raw
	if m := codeFenceRe.FindStringSubmatch(code); m != nil {
		code = m[1]
	}
	// `unchecked { ++i; }` is not legal in a for-statement header.
	code = uncheckedHeaderRe.ReplaceAllString(code, "for ($1$2)")
	// require() takes a string reason; custom errors need revert.
	code = requireErrorRe.ReplaceAllString(code, "if (!($1)) revert $2;")
	return strings.TrimSpace(code)
}

// sanityCheck rejects answers that cannot possibly be a contract.
func sanityCheck(code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return fmt.Errorf("generated source is empty")
	}
	if !strings.Contains(trimmed, "contract ") {
		return fmt.Errorf("generated source has no contract declaration")
	}
	if len(trimmed) < minSourceLength {
		return fmt.Errorf("generated source is implausibly short (%d chars)", len(trimmed))
	}
	return nil
}

// staticPrecheck flags compilation anti-patterns the verifier model tends
// to miss. A non-empty return rejects the candidate before any AI verdict.
func staticPrecheck(code string) []string {
	var flags []string
	if storageValueRe.MatchString(code) {
		flags = append(flags, "storage reference on a value type")
	}
	if requireErrorRe.MatchString(code) {
		flags = append(flags, "require() with a custom error argument")
	}
	if forUncheckedRe.MatchString(code) {
		flags = append(flags, "unchecked block inside a for-statement header")
	}
	return flags
}
