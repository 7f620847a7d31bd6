// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package optimizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gweizero/engine/pkg/common"
)

// draft is the structured optimization plan requested from the draft stage.
type draft struct {
	Optimizations        []common.Optimization `json:"optimizations"`
	Edits                []common.EditOp       `json:"edits"`
	TotalEstimatedSaving string                `json:"totalEstimatedSaving"`
}

const draftSchemaJSON = `{
  "type": "object",
  "required": ["optimizations", "edits", "totalEstimatedSaving"],
  "properties": {
    "optimizations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "detail": {"type": "string"},
          "estimatedSaving": {"type": "string"}
        }
      }
    },
    "edits": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action", "lineStart", "lineEnd", "before", "after", "rationale"],
        "properties": {
          "action": {"enum": ["replace", "insert", "delete"]},
          "lineStart": {"type": "number"},
          "lineEnd": {"type": "number"},
          "before": {"type": "string"},
          "after": {"type": "string"},
          "rationale": {"type": "string"}
        }
      }
    },
    "totalEstimatedSaving": {"type": "string"}
  }
}`

var draftSchema = gojsonschema.NewStringLoader(draftSchemaJSON)

var (
	codeFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// cleanupJSON recovers a JSON object from a chatty model answer: unwrap
// code fences, slice the first-{ to last-} region, drop control characters
// and trailing commas.
func cleanupJSON(raw string) string {
	s := raw
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	s = controlCharsRe.ReplaceAllString(s, "")
	s = trailingComma.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// parseDraft parses and schema-validates a draft answer. Schema violations
// come back as the enumerated error list used in the repair prompt.
func parseDraft(raw string) (*draft, []string) {
	cleaned := cleanupJSON(raw)

	result, err := gojsonschema.Validate(draftSchema, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, []string{fmt.Sprintf("not valid JSON: %v", err)}
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, problems
	}

	var d draft
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return nil, []string{fmt.Sprintf("decode: %v", err)}
	}
	return &d, nil
}
