package resolve

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fieldforge/extract/runtime/llm"
	"github.com/fieldforge/extract/runtime/plan"
)

// TestFallbackResolverProperty_InvocationsNeverExceedBudget verifies that,
// across an arbitrary number of Resolve calls sharing one ExtractionContext,
// the fallback resolver never invokes the client more times than
// MaxInvocationsPerParse allows, regardless of how many steps ask for it.
func TestFallbackResolverProperty_InvocationsNeverExceedBudget(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("invocation count is bounded by MaxInvocationsPerParse", prop.ForAll(
		func(budget, stepCount int) bool {
			r := NewFallbackResolver(FallbackOptions{
				Client:                 llm.NewScripted(map[string]llm.Response{"field": {Value: "v"}}, nil),
				Enabled:                true,
				GateMode:               GateSkipWhenConfident,
				PlannerConfidence:      0,
				MaxInvocationsPerParse: budget,
			})
			ectx := NewExtractionContext("")
			for i := 0; i < stepCount; i++ {
				step := plan.SearchStep{TargetKey: "field", IsRequired: true}
				if !r.Supports(step, ectx) {
					continue
				}
				if _, err := r.Resolve(context.Background(), step, ectx); err != nil {
					return false
				}
			}
			invocations, _ := ectx.FallbackUsage().Snapshot()
			return invocations <= budget
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 50),
	))

	properties.Property("a zero budget means unlimited, invoking once per admitted step", prop.ForAll(
		func(stepCount int) bool {
			r := NewFallbackResolver(FallbackOptions{
				Client:            llm.NewScripted(map[string]llm.Response{"field": {Value: "v"}}, nil),
				Enabled:           true,
				PlannerConfidence: 0,
			})
			ectx := NewExtractionContext("")
			for i := 0; i < stepCount; i++ {
				step := plan.SearchStep{TargetKey: "field", IsRequired: true}
				if r.Supports(step, ectx) {
					_, _ = r.Resolve(context.Background(), step, ectx)
				}
			}
			invocations, _ := ectx.FallbackUsage().Snapshot()
			return invocations == stepCount
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
