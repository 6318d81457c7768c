package resolve

import (
	"context"

	"github.com/fieldforge/extract/runtime/llm"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/resolveerr"
)

// GateMode selects how a plan's PlannerConfidence gates the lean-LLM
// fallback resolver.
//
// The source material left this ambiguous ("default ~0.86 meaning
// heuristic plan is trusted; alternative: invert meaning as configured"),
// so the behavior is a configurable enum rather than a single hardcoded
// interpretation.
type GateMode string

const (
	// GateSkipWhenConfident is the default: fallback only runs when the
	// architect's plan confidence is BELOW the gate threshold (a
	// confident heuristic plan needs no LLM help).
	GateSkipWhenConfident GateMode = "skip_when_confident"
	// GateRequireConfident inverts the above: fallback only runs when
	// plan confidence is AT OR ABOVE the threshold (the caller trusts
	// the LLM only once the plan itself looks sound).
	GateRequireConfident GateMode = "require_confident"
)

const defaultGateThreshold = 0.86

// FallbackOptions configures FallbackResolver.
type FallbackOptions struct {
	Client                   llm.Client
	Enabled                  bool
	AllowOptionalFields      bool
	GateMode                 GateMode
	GateThreshold            float64
	MaxInvocationsPerParse   int
	MaxTokensPerParse        int
	PlannerConfidence        float64
	DetectedContext          string
}

// FallbackResolver calls the external lightweight LLM client when every
// deterministic resolver has declined. It is always the last resolver in
// the chain and its failures are never fatal to a parse.
type FallbackResolver struct {
	opts FallbackOptions
}

// NewFallbackResolver constructs a FallbackResolver. A nil Client or
// Enabled=false means the resolver never supports any step; a non-nil
// client such as llm.Disabled is still consulted and yields no value.
func NewFallbackResolver(opts FallbackOptions) *FallbackResolver {
	if opts.GateThreshold == 0 {
		opts.GateThreshold = defaultGateThreshold
	}
	if opts.GateMode == "" {
		opts.GateMode = GateSkipWhenConfident
	}
	return &FallbackResolver{opts: opts}
}

// Name implements Resolver.
func (FallbackResolver) Name() string { return "lean-llm-fallback" }

// Supports applies only when the fallback is enabled, the step qualifies
// (required, or optional fallback is allowed), and the plan-confidence
// gate admits this parse. Budget limits are checked at Resolve time since
// they may change between steps within the same parse. A gate decline is
// recorded on ectx's FallbackUsage so skippedByPlanConfidence reflects
// steps the resolver was never even consulted for.
func (r *FallbackResolver) Supports(step plan.SearchStep, ectx *ExtractionContext) bool {
	if !r.opts.Enabled || r.opts.Client == nil {
		return false
	}
	if !step.IsRequired && !r.opts.AllowOptionalFields {
		return false
	}
	if r.gateAdmits() {
		return true
	}
	ectx.FallbackUsage().RecordSkippedByGate(step.TargetKey, string(r.opts.GateMode))
	return false
}

func (r *FallbackResolver) gateAdmits() bool {
	switch r.opts.GateMode {
	case GateRequireConfident:
		return r.opts.PlannerConfidence >= r.opts.GateThreshold
	default:
		return r.opts.PlannerConfidence < r.opts.GateThreshold
	}
}

// Resolve invokes the lean-LLM client for step, short-circuiting
// subsequent steps whose target keys appear in the response's
// SharedExtractions. A client failure is never fatal to the parse, but it
// is not silently dropped either: it comes back as a resolveerr.Error so
// the registry can record it as a diagnostic before moving on.
func (r *FallbackResolver) Resolve(ctx context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error) {
	usage := ectx.FallbackUsage()

	invocations, tokens := usage.Snapshot()
	if r.opts.MaxInvocationsPerParse > 0 && invocations >= r.opts.MaxInvocationsPerParse {
		usage.RecordSkippedByLimits(step.TargetKey)
		return Result{}, nil
	}
	if r.opts.MaxTokensPerParse > 0 && tokens >= r.opts.MaxTokensPerParse {
		usage.RecordSkippedByLimits(step.TargetKey)
		return Result{}, nil
	}

	resp, err := r.opts.Client.ExtractField(ctx, llm.Request{
		Field:           step.TargetKey,
		Description:     step.Description,
		ValidationType:  string(step.ValidationType),
		Instruction:     step.SearchInstruction,
		Input:           ectx.Input(),
		DetectedContext: r.opts.DetectedContext,
	})
	if err != nil {
		return Result{}, resolveerr.NewWithCause("lean-llm extraction failed", err)
	}
	if resp.Value == nil {
		return Result{}, nil
	}

	confidence := resp.Confidence
	if !resp.HasConfidence {
		confidence = 0.5
	}
	usage.RecordInvoked(step.TargetKey, confidence, resp.TokensUsed, resp.Reason)
	ectx.StoreSharedExtractions(resp.SharedExtractions)

	return Result{Value: resp.Value, Confidence: confidence, HasValue: true}, nil
}
