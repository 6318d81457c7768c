package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract/runtime/plan"
)

func TestDefaultResolver_AppliesValidationTypeToWholeInput(t *testing.T) {
	t.Parallel()
	ectx := NewExtractionContext("contact jane@example.com for details")
	r := DefaultResolver{}
	step := plan.SearchStep{TargetKey: "email", ValidationType: plan.ValidationEmail}

	require.True(t, r.Supports(step, ectx))
	res, err := r.Resolve(context.Background(), step, ectx)
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", res.Value)
	require.Equal(t, defaultConfidenceByType[plan.ValidationEmail], res.Confidence)
}

func TestDefaultResolver_NoMatchReturnsNoValue(t *testing.T) {
	t.Parallel()
	ectx := NewExtractionContext("nothing useful here")
	r := DefaultResolver{}
	step := plan.SearchStep{TargetKey: "email", ValidationType: plan.ValidationEmail}

	res, err := r.Resolve(context.Background(), step, ectx)
	require.NoError(t, err)
	require.False(t, res.HasValue)
}
