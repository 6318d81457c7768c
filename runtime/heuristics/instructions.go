package heuristics

import (
	"regexp"
	"strings"
)

var fieldGuidanceLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _]*?)\s*[:\-]\s*(.+)$`)

// ParseFieldGuidance scans free-form caller instructions for lines shaped
// like "<FieldLabel>: guidance..." or "<FieldLabel> - guidance...",
// folding indented continuation lines into the preceding guidance entry.
// The returned map is keyed by a normalized field label (lower-cased,
// spaces collapsed to underscores) so callers can match against schema
// keys loosely.
func ParseFieldGuidance(instructions string) map[string]string {
	guidance := make(map[string]string)
	var currentKey string

	for _, raw := range strings.Split(instructions, "\n") {
		if strings.TrimSpace(raw) == "" {
			currentKey = ""
			continue
		}
		if isIndented(raw) && currentKey != "" {
			guidance[currentKey] = strings.TrimSpace(guidance[currentKey] + " " + strings.TrimSpace(raw))
			continue
		}
		m := fieldGuidanceLine.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			currentKey = ""
			continue
		}
		key := normalizeLabel(m[1])
		guidance[key] = strings.TrimSpace(m[2])
		currentKey = key
	}
	return guidance
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.Join(strings.Fields(label), "_")
}

// NormalizeKey normalizes a schema field or JSON key for loose comparison:
// lower-cased, non-alphanumeric characters removed. Callers wanting the
// underscore/space variants should also check NormalizeKeyVariants.
func NormalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeKeyVariants returns the normalized form of key plus its
// underscore- and space-separated variants, for broader matching against
// differently-cased/spaced JSON keys.
func NormalizeKeyVariants(key string) []string {
	lower := strings.ToLower(key)
	return []string{
		NormalizeKey(key),
		strings.ReplaceAll(lower, " ", "_"),
		strings.ReplaceAll(lower, "_", " "),
	}
}
