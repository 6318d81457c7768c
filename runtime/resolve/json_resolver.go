package resolve

import (
	"context"

	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/plan"
)

const jsonResolverConfidence = 0.92

// JSONResolver resolves a step by breadth-first key search over a
// once-parsed JSON payload, comparing normalized forms of targetKey
// against normalized forms of each candidate key.
type JSONResolver struct{}

// Name implements Resolver.
func (JSONResolver) Name() string { return "json" }

// Supports applies only when the input parses as a JSON payload.
func (JSONResolver) Supports(_ plan.SearchStep, ectx *ExtractionContext) bool {
	if ectx.Format() != heuristics.FormatJSON {
		return false
	}
	_, ok := ectx.JSONPayload()
	return ok
}

// Resolve performs a breadth-first search for targetKey across the parsed
// JSON tree, matching normalized key variants.
func (r JSONResolver) Resolve(_ context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error) {
	payload, ok := ectx.JSONPayload()
	if !ok {
		return Result{}, nil
	}
	targets := make(map[string]struct{})
	for _, v := range heuristics.NormalizeKeyVariants(step.TargetKey) {
		targets[v] = struct{}{}
	}

	value, found := bfsFindKey(payload, targets)
	if !found {
		return Result{}, nil
	}
	return Result{Value: value, Confidence: jsonResolverConfidence, HasValue: true}, nil
}

func bfsFindKey(root any, targets map[string]struct{}) (any, bool) {
	queue := []any{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		switch typed := node.(type) {
		case map[string]any:
			for k, v := range typed {
				for _, variant := range heuristics.NormalizeKeyVariants(k) {
					if _, match := targets[variant]; match {
						return v, true
					}
				}
			}
			for _, v := range typed {
				queue = append(queue, v)
			}
		case []any:
			queue = append(queue, typed...)
		}
	}
	return nil, false
}
