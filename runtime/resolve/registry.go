package resolve

import (
	"context"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/resolveerr"
)

// Result is what a Resolver produces for a single SearchStep.
type Result struct {
	Value      any
	Confidence float64
	HasValue   bool
}

// Resolver is a single deterministic (or gated-LLM) strategy for
// resolving one SearchStep. Supports is consulted before Resolve so the
// registry can skip resolvers that cannot apply. Resolve errors are never
// fatal: the registry records them as a warning diagnostic and continues
// to the next resolver.
type Resolver interface {
	Name() string
	Supports(step plan.SearchStep, ectx *ExtractionContext) bool
	Resolve(ctx context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error)
}

// Registry holds an ordered chain of Resolvers. The first resolver whose
// Supports is true and whose Resolve returns a value wins.
type Registry struct {
	resolvers []Resolver
}

// NewRegistry constructs a Registry over resolvers, in priority order.
func NewRegistry(resolvers ...Resolver) *Registry {
	return &Registry{resolvers: resolvers}
}

// Resolve runs step through the resolver chain, returning the first
// produced value along with its resolver name. Each resolver that returns
// an error adds one warning diagnostic to diags, in resolver order;
// resolvers that decline or return no value add none.
func (r *Registry) Resolve(ctx context.Context, step plan.SearchStep, ectx *ExtractionContext, diags *diagnostic.Collector) (Result, string) {
	for _, resolver := range r.resolvers {
		if !resolver.Supports(step, ectx) {
			continue
		}
		result, err := resolver.Resolve(ctx, step, ectx)
		if err != nil {
			ectx.RecordResolverError(resolver.Name())
			// The chain survives as a resolveerr.Error up to this point;
			// it is flattened into a single diagnostic string here and
			// the cause chain itself is not carried any further.
			diags.Addf(step.TargetKey, diagnostic.StageExtractor, diagnostic.SeverityWarning,
				"%s: %s", resolver.Name(), resolveerr.FromError(err).Error())
			continue
		}
		if result.HasValue {
			return result, resolver.Name()
		}
	}
	return Result{}, ""
}
