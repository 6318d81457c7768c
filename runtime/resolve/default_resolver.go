package resolve

import (
	"context"

	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/plan"
)

var defaultConfidenceByType = map[plan.ValidationType]float64{
	plan.ValidationEmail:      0.7,
	plan.ValidationPhone:      0.6,
	plan.ValidationISODate:    0.75,
	plan.ValidationDate:       0.6,
	plan.ValidationURL:        0.7,
	plan.ValidationCurrency:   0.65,
	plan.ValidationPercentage: 0.65,
	plan.ValidationNumber:     0.55,
	plan.ValidationBoolean:    0.55,
}

const defaultResolverConfidence = 0.4

// DefaultResolver applies the step's validation-type regex/heuristic
// directly against the whole input as a last deterministic attempt before
// any lean-LLM fallback.
type DefaultResolver struct{}

// Name implements Resolver.
func (DefaultResolver) Name() string { return "validation-default" }

// Supports always applies; it is the catch-all before the fallback resolver.
func (DefaultResolver) Supports(plan.SearchStep, *ExtractionContext) bool { return true }

// Resolve applies the step's validation-typed extraction to the full input.
func (r DefaultResolver) Resolve(_ context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error) {
	value, found := heuristics.ExtractByValidationType(step.ValidationType, ectx.Input())
	if !found {
		return Result{}, nil
	}
	confidence := defaultConfidenceByType[step.ValidationType]
	if confidence == 0 {
		confidence = defaultResolverConfidence
	}
	return Result{Value: value, Confidence: confidence, HasValue: true}, nil
}
