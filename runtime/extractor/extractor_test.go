package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/queue"
	"github.com/fieldforge/extract/runtime/resolve"
)

func plannedPlan(strategy plan.Strategy, steps ...plan.SearchStep) *plan.SearchPlan {
	return &plan.SearchPlan{
		Steps:    steps,
		Strategy: strategy,
		Metadata: plan.PlanMetadata{PlannerConfidence: 0.8},
	}
}

func TestExecute_SequentialResolvesEveryStepInOrder(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("invoice total: $10\ndue date: 2024-01-01")
	reg := resolve.NewRegistry(
		resolve.LooseKVResolver{},
		resolve.DefaultResolver{},
	)
	e := New(Options{Registry: reg})
	p := plannedPlan(plan.StrategySequential,
		plan.SearchStep{TargetKey: "invoice_total", ValidationType: plan.ValidationCurrency, IsRequired: true},
		plan.SearchStep{TargetKey: "due_date", ValidationType: plan.ValidationISODate, IsRequired: true},
	)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)

	require.Len(t, result.Fields, 2)
	require.Equal(t, "invoice_total", result.Fields[0].TargetKey)
	require.Equal(t, "due_date", result.Fields[1].TargetKey)
}

func TestExecute_ParallelFallsBackToSequentialWithoutQueue(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("x: 1\ny: 2")
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	e := New(Options{Registry: reg})
	p := plannedPlan(plan.StrategyParallel,
		plan.SearchStep{TargetKey: "x", ValidationType: plan.ValidationNumber},
		plan.SearchStep{TargetKey: "y", ValidationType: plan.ValidationNumber},
	)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)
	require.Len(t, result.Fields, 2)
}

func TestExecute_ParallelWithQueueResolvesAllSteps(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("x: 1\ny: 2\nz: 3")
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	q := queue.New(4)
	e := New(Options{Registry: reg, Queue: q})
	p := plannedPlan(plan.StrategyParallel,
		plan.SearchStep{TargetKey: "x", ValidationType: plan.ValidationNumber},
		plan.SearchStep{TargetKey: "y", ValidationType: plan.ValidationNumber},
		plan.SearchStep{TargetKey: "z", ValidationType: plan.ValidationNumber},
	)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)

	require.Len(t, result.ParsedData, 3)
	require.Equal(t, "1", result.ParsedData["x"])
	require.Equal(t, "2", result.ParsedData["y"])
	require.Equal(t, "3", result.ParsedData["z"])
}

func TestExecute_ParallelDiagnosticsSortedByStepOrder(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("")
	reg := resolve.NewRegistry(resolve.DefaultResolver{})
	q := queue.New(4)
	e := New(Options{Registry: reg, Queue: q})
	p := plannedPlan(plan.StrategyParallel,
		plan.SearchStep{TargetKey: "a", ValidationType: plan.ValidationEmail, IsRequired: true},
		plan.SearchStep{TargetKey: "b", ValidationType: plan.ValidationEmail, IsRequired: true},
		plan.SearchStep{TargetKey: "c", ValidationType: plan.ValidationEmail, IsRequired: true},
	)
	diags := &diagnostic.Collector{}

	e.Execute(context.Background(), p, ectx, diags)

	items := diags.Items()
	require.Len(t, items, 3)
	require.Equal(t, "a", items[0].Field)
	require.Equal(t, "b", items[1].Field)
	require.Equal(t, "c", items[2].Field)
}

func TestExecute_AdaptiveEscalatesTailStepsToParallel(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("a: 1\nb: 2\nc: 3\nd: 4\ne: 5")
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	q := queue.New(4)
	e := New(Options{Registry: reg, Queue: q})
	steps := make([]plan.SearchStep, 0, 5)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		steps = append(steps, plan.SearchStep{TargetKey: key, ValidationType: plan.ValidationNumber})
	}
	p := plannedPlan(plan.StrategyAdaptive, steps...)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)
	require.Len(t, result.ParsedData, 5)
}

func TestExecute_OverallConfidenceBlendsArchitectAndFieldConfidence(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("email: jane@example.com")
	reg := resolve.NewRegistry(resolve.LooseKVResolver{})
	e := New(Options{Registry: reg, Weights: ConfidenceWeights{Architect: 0.3, Extractor: 0.7}})
	p := &plan.SearchPlan{
		Steps:    []plan.SearchStep{{TargetKey: "email", ValidationType: plan.ValidationEmail, IsRequired: true}},
		Strategy: plan.StrategySequential,
		Metadata: plan.PlanMetadata{PlannerConfidence: 1.0},
	}
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)
	require.InDelta(t, 0.3*1.0+0.7*result.Fields[0].Confidence, result.OverallConfidence, 0.0001)
}

func TestExecute_MissingRequiredFieldEmitsWarningDiagnostic(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("nothing relevant here")
	reg := resolve.NewRegistry(resolve.DefaultResolver{})
	e := New(Options{Registry: reg})
	p := plannedPlan(plan.StrategySequential,
		plan.SearchStep{TargetKey: "email", ValidationType: plan.ValidationEmail, IsRequired: true},
	)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)
	require.False(t, result.Fields[0].HasValue)
	require.Equal(t, 1, diags.Len())
}

func TestExecute_SharedExtractionShortCircuitsRegistryAndCountsAsReused(t *testing.T) {
	t.Parallel()
	ectx := resolve.NewExtractionContext("")
	ectx.StoreSharedExtractions(map[string]any{"secondary": "prefetched"})
	reg := resolve.NewRegistry(resolve.DefaultResolver{})
	e := New(Options{Registry: reg})
	p := plannedPlan(plan.StrategySequential,
		plan.SearchStep{TargetKey: "secondary", ValidationType: plan.ValidationString},
	)
	diags := &diagnostic.Collector{}

	result := e.Execute(context.Background(), p, ectx, diags)
	require.Equal(t, "prefetched", result.ParsedData["secondary"])
	require.Equal(t, 1, result.FallbackUsage.ReusedResolutions)
}
