package heuristics

import (
	"regexp"
	"strings"
)

// Section is a contiguous block of text under a heading.
type Section struct {
	Heading string
	Lines   []string
}

var headingPattern = regexp.MustCompile(`^#{1,6}\s+.+|^[A-Z][A-Z0-9 _/-]{2,}:?$|^.+:$`)

// Segment splits text into Sections by heading lines: markdown-style
// (`# Heading`), uppercase labels, or lines ending in a colon. Lines
// before the first heading form a section with an empty Heading.
func Segment(text string) []Section {
	var sections []Section
	var current *Section

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isHeadingLine(trimmed) {
			sections = append(sections, Section{})
			current = &sections[len(sections)-1]
			current.Heading = normalizeHeading(trimmed)
			continue
		}
		if current == nil {
			sections = append(sections, Section{})
			current = &sections[len(sections)-1]
		}
		current.Lines = append(current.Lines, line)
	}
	return sections
}

func isHeadingLine(line string) bool {
	if !headingPattern.MatchString(line) {
		return false
	}
	// A colon-terminated line with many words is more likely a
	// key:value line than a heading; require it to be short.
	if strings.HasSuffix(line, ":") && len(strings.Fields(line)) > 4 {
		return false
	}
	return true
}

func normalizeHeading(line string) string {
	h := strings.TrimLeft(line, "#")
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, ":")
	return h
}
