// Package heuristics implements deterministic, non-LLM building blocks
// shared by the architect and the resolver chain: input-format detection,
// section segmentation, validation-type inference and extraction, and
// schema-driven planner-step construction.
package heuristics

import (
	"encoding/json"
	"strings"
)

// Format names the coarse shape heuristics detected for a parse's input.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatKeyValue Format = "key-value"
	FormatProse    Format = "prose"
)

// minKeyValueLines is the minimum number of key:value-shaped lines before
// input is classified key-value rather than prose.
const minKeyValueLines = 2

var keyValueSeparators = []string{":", "=", "-"}

// DetectFormat classifies input as JSON, CSV, structured key-value, or
// prose, in that priority order.
func DetectFormat(input string) Format {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return FormatProse
	}
	if looksLikeJSONObject(trimmed) {
		return FormatJSON
	}
	if looksLikeCSV(trimmed) {
		return FormatCSV
	}
	if countKeyValueLines(trimmed) >= minKeyValueLines {
		return FormatKeyValue
	}
	return FormatProse
}

func looksLikeJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

func looksLikeCSV(s string) bool {
	lines := splitNonEmptyLines(s)
	if len(lines) < 2 {
		return false
	}
	header := strings.Count(lines[0], ",")
	if header < 1 {
		return false
	}
	matching := 0
	for _, line := range lines[1:] {
		if strings.Count(line, ",") >= header {
			matching++
		}
	}
	return matching >= 1
}

func countKeyValueLines(s string) int {
	count := 0
	for _, line := range splitNonEmptyLines(s) {
		if isKeyValueLine(line) {
			count++
		}
	}
	return count
}

func isKeyValueLine(line string) bool {
	for _, sep := range keyValueSeparators {
		idx := strings.Index(line, sep)
		if idx <= 0 || idx == len(line)-1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key != "" && value != "" && !strings.ContainsAny(key, "{}[]") {
			return true
		}
	}
	return false
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
