package heuristics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegment_SplitsOnHeadings(t *testing.T) {
	t.Parallel()
	text := "CONTACT\nJane Doe\njane@example.com\n\nADDRESS\n123 Main St"
	sections := Segment(text)
	require.Len(t, sections, 2)
	require.Equal(t, "CONTACT", sections[0].Heading)
	require.Equal(t, []string{"Jane Doe", "jane@example.com"}, sections[0].Lines)
	require.Equal(t, "ADDRESS", sections[1].Heading)
	require.Equal(t, []string{"123 Main St"}, sections[1].Lines)
}

func TestSegment_LinesBeforeFirstHeadingHaveEmptyHeading(t *testing.T) {
	t.Parallel()
	text := "preamble line\nSECTION ONE\nbody"
	sections := Segment(text)
	require.Len(t, sections, 2)
	require.Equal(t, "", sections[0].Heading)
	require.Equal(t, []string{"preamble line"}, sections[0].Lines)
}

func TestSegment_MarkdownHeading(t *testing.T) {
	t.Parallel()
	text := "# Summary\nsome text"
	sections := Segment(text)
	require.Len(t, sections, 1)
	require.Equal(t, "Summary", sections[0].Heading)
}
