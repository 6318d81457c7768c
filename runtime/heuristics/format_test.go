package heuristics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFormat_JSON(t *testing.T) {
	t.Parallel()
	require.Equal(t, FormatJSON, DetectFormat(`{"a": 1, "b": "two"}`))
}

func TestDetectFormat_CSV(t *testing.T) {
	t.Parallel()
	require.Equal(t, FormatCSV, DetectFormat("name,age,city\nAlice,30,NYC\nBob,25,LA"))
}

func TestDetectFormat_KeyValue(t *testing.T) {
	t.Parallel()
	require.Equal(t, FormatKeyValue, DetectFormat("Invoice Total: $1,234.56\nDue Date: 2024-02-01\nNotes: net-30"))
}

func TestDetectFormat_Prose(t *testing.T) {
	t.Parallel()
	require.Equal(t, FormatProse, DetectFormat("This is just a paragraph of plain text with no structure to it at all."))
}

func TestDetectFormat_EmptyInputIsProse(t *testing.T) {
	t.Parallel()
	require.Equal(t, FormatProse, DetectFormat(""))
}
