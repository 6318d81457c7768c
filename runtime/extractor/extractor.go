// Package extractor executes a SearchPlan against the resolver registry,
// using one of three strategies (sequential, parallel, adaptive) and
// computing per-field and overall confidence.
package extractor

import (
	"context"
	"sort"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/queue"
	"github.com/fieldforge/extract/runtime/resolve"
)

const (
	defaultArchitectWeight = 0.3
	defaultExtractorWeight = 0.7

	// adaptiveEscalationThreshold is the number of trailing steps the
	// adaptive strategy fans out over the Async Task Queue; every earlier
	// step runs sequentially, and plans with no more steps than this run
	// fully sequentially.
	adaptiveEscalationThreshold = 3
)

// ConfidenceWeights weighs the architect's plan confidence against the
// extractor's mean field confidence when computing the overall score.
type ConfidenceWeights struct {
	Architect float64
	Extractor float64
}

// DefaultConfidenceWeights returns the default 0.3/0.7 split.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{Architect: defaultArchitectWeight, Extractor: defaultExtractorWeight}
}

// FieldResult is a single step's resolution outcome.
type FieldResult struct {
	TargetKey    string
	Value        any
	HasValue     bool
	Confidence   float64
	ResolverName string
}

// Result is the extractor's output for one SearchPlan execution.
type Result struct {
	Fields            []FieldResult
	ParsedData        map[string]any
	OverallConfidence float64
	FallbackUsage     *resolve.FallbackUsage
}

// Extractor executes SearchPlans via a Registry.
type Extractor struct {
	registry      *resolve.Registry
	queue         queue.Queue
	weights       ConfidenceWeights
	parallelQueue bool
}

// Options configures an Extractor.
type Options struct {
	Registry    *resolve.Registry
	Queue       queue.Queue
	Weights     ConfidenceWeights
}

// New constructs an Extractor. When opts.Queue is nil, parallel/adaptive
// strategies fall back to sequential execution (no concurrency available).
func New(opts Options) *Extractor {
	weights := opts.Weights
	if weights.Architect == 0 && weights.Extractor == 0 {
		weights = DefaultConfidenceWeights()
	}
	return &Extractor{
		registry:      opts.Registry,
		queue:         opts.Queue,
		weights:       weights,
		parallelQueue: opts.Queue != nil,
	}
}

// Execute runs p's steps against the shared ExtractionContext using the
// plan's strategy, returning per-field results, assembled parsedData, and
// overall confidence.
func (e *Extractor) Execute(ctx context.Context, p *plan.SearchPlan, ectx *resolve.ExtractionContext, diags *diagnostic.Collector) Result {
	strategy := p.Strategy
	if strategy == "" {
		strategy = plan.StrategySequential
	}

	var fields []FieldResult
	switch strategy {
	case plan.StrategyParallel:
		fields = e.executeParallel(ctx, p.Steps, ectx, diags)
	case plan.StrategyAdaptive:
		fields = e.executeAdaptive(ctx, p.Steps, ectx, diags)
	default:
		fields = e.executeSequential(ctx, p.Steps, ectx, diags)
	}

	parsedData := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.HasValue {
			parsedData[f.TargetKey] = f.Value
		}
	}

	overall := e.overallConfidence(p, fields)

	return Result{
		Fields:            fields,
		ParsedData:        parsedData,
		OverallConfidence: overall,
		FallbackUsage:     ectx.FallbackUsage(),
	}
}

func (e *Extractor) executeSequential(ctx context.Context, steps []plan.SearchStep, ectx *resolve.ExtractionContext, diags *diagnostic.Collector) []FieldResult {
	out := make([]FieldResult, len(steps))
	for i, step := range steps {
		out[i] = e.resolveStep(ctx, step, ectx, diags)
	}
	return out
}

func (e *Extractor) executeParallel(ctx context.Context, steps []plan.SearchStep, ectx *resolve.ExtractionContext, diags *diagnostic.Collector) []FieldResult {
	if !e.parallelQueue {
		return e.executeSequential(ctx, steps, ectx, diags)
	}

	results := make([]FieldResult, len(steps))
	diagsByStep := make([][]diagnostic.Diagnostic, len(steps))
	futures := make([]queue.Future, len(steps))

	for i, step := range steps {
		i, step := i, step
		futures[i] = e.queue.Enqueue(ctx, func(ctx context.Context) (any, error) {
			localDiags := &diagnostic.Collector{}
			res := e.resolveStep(ctx, step, ectx, localDiags)
			return stepOutcome{result: res, diags: localDiags.Items()}, nil
		})
	}

	for i, f := range futures {
		v, _ := f.Get(ctx)
		outcome, _ := v.(stepOutcome)
		results[i] = outcome.result
		diagsByStep[i] = outcome.diags
	}

	mergeDiagnosticsInStepOrder(diags, diagsByStep)
	return results
}

type stepOutcome struct {
	result FieldResult
	diags  []diagnostic.Diagnostic
}

// executeAdaptive resolves steps sequentially until only a small tail
// remains, then fans the remainder out in parallel: the first
// len(steps)-N steps run in order and the last N run concurrently, where
// N is adaptiveEscalationThreshold.
func (e *Extractor) executeAdaptive(ctx context.Context, steps []plan.SearchStep, ectx *resolve.ExtractionContext, diags *diagnostic.Collector) []FieldResult {
	if !e.parallelQueue || len(steps) <= adaptiveEscalationThreshold {
		return e.executeSequential(ctx, steps, ectx, diags)
	}

	sequentialCount := len(steps) - adaptiveEscalationThreshold
	results := make([]FieldResult, len(steps))
	for i := 0; i < sequentialCount; i++ {
		results[i] = e.resolveStep(ctx, steps[i], ectx, diags)
	}

	tail := steps[sequentialCount:]
	tailResults := e.executeParallel(ctx, tail, ectx, diags)
	copy(results[sequentialCount:], tailResults)
	return results
}

func (e *Extractor) resolveStep(ctx context.Context, step plan.SearchStep, ectx *resolve.ExtractionContext, diags *diagnostic.Collector) FieldResult {
	if value, ok := ectx.TakeSharedExtraction(step.TargetKey); ok {
		ectx.FallbackUsage().RecordReused(step.TargetKey, 0)
		return FieldResult{TargetKey: step.TargetKey, Value: value, HasValue: true, Confidence: 0, ResolverName: "shared-extraction"}
	}

	res, resolverName := e.registry.Resolve(ctx, step, ectx, diags)
	if !res.HasValue && step.IsRequired {
		diags.Addf(step.TargetKey, diagnostic.StageExtractor, diagnostic.SeverityWarning,
			"no resolver produced a value for required field %q", step.TargetKey)
	}
	if !res.HasValue && !step.IsRequired && step.FallbackValue != nil {
		return FieldResult{TargetKey: step.TargetKey, Value: step.FallbackValue, HasValue: true, Confidence: 0, ResolverName: "fallback-value"}
	}
	return FieldResult{TargetKey: step.TargetKey, Value: res.Value, HasValue: res.HasValue, Confidence: res.Confidence, ResolverName: resolverName}
}

func (e *Extractor) overallConfidence(p *plan.SearchPlan, fields []FieldResult) float64 {
	requiredIdx := map[string]bool{}
	for _, s := range p.Steps {
		if s.IsRequired {
			requiredIdx[s.TargetKey] = true
		}
	}

	var sum float64
	var count int
	for _, f := range fields {
		if !requiredIdx[f.TargetKey] {
			continue
		}
		confidence := f.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		sum += confidence
		count++
	}
	meanFieldConfidence := 0.0
	if count > 0 {
		meanFieldConfidence = sum / float64(count)
	}

	return e.weights.Architect*p.Metadata.PlannerConfidence + e.weights.Extractor*meanFieldConfidence
}

// mergeDiagnosticsInStepOrder appends the per-step diagnostics collected
// during a parallel run into diags, sorted by originating step index so
// unordered completion never reorders the final diagnostic list.
func mergeDiagnosticsInStepOrder(diags *diagnostic.Collector, diagsByStep [][]diagnostic.Diagnostic) {
	type indexed struct {
		step int
		d    diagnostic.Diagnostic
	}
	var all []indexed
	for i, ds := range diagsByStep {
		for _, d := range ds {
			all = append(all, indexed{step: i, d: d})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].step < all[j].step })
	for _, item := range all {
		diags.Add(item.d)
	}
}
