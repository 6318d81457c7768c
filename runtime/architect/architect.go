// Package architect implements the planning stage: turning a normalized
// request into a SearchPlan the extractor can execute. The default path is
// pure heuristic; an optional model-backed rewrite may follow when the
// heuristic plan's confidence is too low and budget allows.
package architect

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/llm"
	"github.com/fieldforge/extract/runtime/plan"
)

const (
	baseTokensPerRequiredField = 128

	complexityMultiplierLow    = 1.0
	complexityMultiplierMedium = 1.4
	complexityMultiplierHigh   = 1.9

	// heuristicBaseConfidence is the architect's self-reported confidence
	// for a plan built purely from field-name heuristics, before any
	// context-detection or guidance signal raises it.
	heuristicBaseConfidence = 0.55
	contextSignalBoost      = 0.15
	guidanceSignalBoost     = 0.1
	maxHeuristicConfidence  = 0.9
)

// Request is the normalized input the architect plans against.
type Request struct {
	SchemaKeys        []string
	SchemaDescriptors map[string]heuristics.FieldDescriptor
	Instructions      string
	DetectedContext   string
	ContextSummary    string
	ContextConfidence float64
	Profile           string
}

// Options configures optional model-backed rewriting.
type Options struct {
	// RewriteClient is consulted when non-nil and the heuristic plan's
	// confidence falls below RewriteThreshold.
	RewriteClient llm.Client
	// RewriteThreshold gates the optional rewrite. Zero disables rewriting.
	RewriteThreshold float64
	// RewriteBudgetRemaining caps how many rewrites this architect instance
	// may still issue; the architect decrements it after each successful
	// rewrite.
	RewriteBudgetRemaining int
}

// Architect builds SearchPlans from normalized requests.
type Architect struct {
	opts Options
}

// New constructs an Architect with the given rewrite options.
func New(opts Options) *Architect {
	return &Architect{opts: opts}
}

// Plan produces a SearchPlan for req, applying the heuristic builder first
// and an optional model rewrite second.
func (a *Architect) Plan(ctx context.Context, req Request, diags *diagnostic.Collector) *plan.SearchPlan {
	heuristicPlan := a.buildHeuristic(req)

	if a.opts.RewriteClient == nil || a.opts.RewriteThreshold <= 0 {
		return heuristicPlan
	}
	if heuristicPlan.Metadata.PlannerConfidence >= a.opts.RewriteThreshold {
		return heuristicPlan
	}
	if a.opts.RewriteBudgetRemaining <= 0 {
		diags.Addf("*", diagnostic.StageArchitect, diagnostic.SeverityWarning,
			"rewrite budget exhausted, using heuristic plan")
		return heuristicPlan
	}

	rewritten, err := a.rewrite(ctx, req, heuristicPlan)
	if err != nil {
		diags.Addf("*", diagnostic.StageArchitect, diagnostic.SeverityWarning,
			"model rewrite failed, falling back to heuristic plan: %v", err)
		return heuristicPlan
	}
	return rewritten
}

func (a *Architect) buildHeuristic(req Request) *plan.SearchPlan {
	steps := heuristics.BuildSteps(req.SchemaKeys, req.SchemaDescriptors, heuristics.BuildStepsOptions{
		Instructions:      req.Instructions,
		ContextSummary:    req.ContextSummary,
		ContextConfidence: req.ContextConfidence,
	})

	confidence := heuristicBaseConfidence
	if req.ContextConfidence >= 0.6 {
		confidence += contextSignalBoost
	}
	if req.Instructions != "" {
		confidence += guidanceSignalBoost
	}
	if confidence > maxHeuristicConfidence {
		confidence = maxHeuristicConfidence
	}

	required := 0
	for _, s := range steps {
		if s.IsRequired {
			required++
		}
	}
	complexity := classifyComplexity(len(steps))

	return &plan.SearchPlan{
		ID:                  uuid.NewString(),
		Steps:               steps,
		Strategy:            plan.StrategySequential,
		ConfidenceThreshold: 0.7,
		Metadata: plan.PlanMetadata{
			DetectedFormat:    "",
			Complexity:        complexity,
			EstimatedTokens:   estimateTokens(required, complexity),
			Origin:            plan.OriginHeuristic,
			PlannerConfidence: confidence,
			DetectedContext:   req.DetectedContext,
		},
	}
}

// rewrite asks the model-backed collaborator to revise the heuristic plan.
// It is modeled as a single ExtractField-shaped round trip over a synthetic
// "plan" field, matching the narrow lean-LLM contract this module already
// depends on rather than introducing a second provider-facing interface.
func (a *Architect) rewrite(ctx context.Context, req Request, heuristicPlan *plan.SearchPlan) (*plan.SearchPlan, error) {
	resp, err := a.opts.RewriteClient.ExtractField(ctx, llm.Request{
		Field:           "__plan_rewrite__",
		Instruction:     req.Instructions,
		PlanSummary:     summarizePlan(heuristicPlan),
		DetectedContext: req.DetectedContext,
	})
	if err != nil {
		return nil, err
	}
	a.opts.RewriteBudgetRemaining--

	confidence := heuristicPlan.Metadata.PlannerConfidence
	if resp.HasConfidence {
		confidence = resp.Confidence
	}

	rewritten := plan.ClonePlan(heuristicPlan)
	rewritten.Metadata.Origin = plan.OriginModel
	rewritten.Metadata.PlannerConfidence = confidence
	return rewritten, nil
}

func summarizePlan(p *plan.SearchPlan) string {
	summary := ""
	for i, step := range p.Steps {
		if i > 0 {
			summary += "; "
		}
		summary += step.TargetKey + ": " + step.SearchInstruction
	}
	return summary
}

func classifyComplexity(stepCount int) plan.Complexity {
	switch {
	case stepCount <= 3:
		return plan.ComplexityLow
	case stepCount <= 8:
		return plan.ComplexityMedium
	default:
		return plan.ComplexityHigh
	}
}

func estimateTokens(requiredFields int, complexity plan.Complexity) int {
	multiplier := complexityMultiplierLow
	switch complexity {
	case plan.ComplexityMedium:
		multiplier = complexityMultiplierMedium
	case plan.ComplexityHigh:
		multiplier = complexityMultiplierHigh
	}
	return int(math.Round(float64(requiredFields*baseTokensPerRequiredField) * multiplier))
}
