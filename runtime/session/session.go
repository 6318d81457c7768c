// Package session implements the reusable parse-configuration abstraction:
// a locked schema, instructions, options, and profile bound to a plan that
// the architect builds once and the extractor then reuses across many
// parses, with an auto-refresh policy for when confidence drifts low.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldforge/extract/runtime/architect"
	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/extractor"
	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/pipeline"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/queue"
	"github.com/fieldforge/extract/runtime/resolve"
)

// errDisposed is returned by Parse/ParseMany once Dispose has been called.
var errDisposed = errors.New("session: disposed")

// Options carries the per-parse overrides a caller may apply.
type Options struct {
	ConfidenceThreshold float64
	Strategy            plan.Strategy
	ValidateOutput      bool
}

// AutoRefresh configures the background plan-rewrite policy.
type AutoRefresh struct {
	// Enabled turns the policy on. Disabled by default: without it, a
	// Session's plan never changes once built.
	Enabled bool
	// Threshold is the confidence floor below which a refresh is scheduled.
	Threshold float64
	// Cooldown is the minimum wall-clock gap between two refreshes.
	Cooldown time.Duration
}

// Config constructs a Session. SchemaKeys/SchemaDescriptors/Instructions/
// Profile are locked for the Session's lifetime; Architect and Extractor
// are the shared collaborators the Session drives on every parse.
type Config struct {
	SchemaKeys        []string
	SchemaDescriptors map[string]heuristics.FieldDescriptor
	Instructions      string
	Profile           string
	Options           Options

	Architect *architect.Architect
	Extractor *extractor.Extractor
	// Queue runs the background architect-rerun task when AutoRefresh is
	// enabled. A nil Queue makes refreshes run inline on the parse that
	// triggers them.
	Queue queue.Queue

	Preprocessors  []pipeline.Preprocessor
	Postprocessors []pipeline.Postprocessor

	AutoRefresh AutoRefresh

	// InitialPlan seeds the Session with an already-built plan, skipping
	// the first architect call. Nil means the first Parse builds one.
	InitialPlan *plan.SearchPlan
}

// ParseResult is what a single Parse/ParseMany item produces.
type ParseResult struct {
	ParsedData  map[string]any
	Confidence  float64
	Diagnostics []diagnostic.Diagnostic
	Plan        *plan.SearchPlan
}

// Snapshot reports a Session's current plan and aggregate state.
type Snapshot struct {
	Plan           *plan.SearchPlan
	LastConfidence float64
	ParseCount     int
}

// Session wraps a locked extraction configuration around a reusable plan.
type Session struct {
	cfg Config

	mu             sync.Mutex
	currentPlan    *plan.SearchPlan
	lastConfidence float64
	lastRefreshAt  time.Time
	refreshing     bool
	parseCount     int
	disposed       bool
}

// New constructs a Session from cfg.
func New(cfg Config) *Session {
	return &Session{
		cfg:         cfg,
		currentPlan: plan.ClonePlan(cfg.InitialPlan),
	}
}

// Parse runs the pipeline for a single input, building a plan on first use
// and reusing it afterward. overrides, if non-nil, replace the Session's
// locked Options for this call only.
func (s *Session) Parse(ctx context.Context, input string, overrides *Options) (ParseResult, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ParseResult{}, errDisposed
	}
	opts := s.cfg.Options
	if overrides != nil {
		opts = *overrides
	}
	s.mu.Unlock()

	diags := &diagnostic.Collector{}

	preIn := &pipeline.PreprocessInput{InputData: input, SchemaKeys: append([]string{}, s.cfg.SchemaKeys...), Instructions: s.cfg.Instructions}
	if err := pipeline.Chain(s.cfg.Preprocessors, preIn, diags); err != nil {
		return ParseResult{ParsedData: map[string]any{}, Diagnostics: diags.Items()}, err
	}

	activePlan := s.ensurePlan(ctx, diags)

	strategyPlan := plan.ClonePlan(activePlan)
	if opts.Strategy != "" {
		strategyPlan.Strategy = opts.Strategy
	}
	if opts.ConfidenceThreshold > 0 {
		strategyPlan.ConfidenceThreshold = opts.ConfidenceThreshold
	}

	ectx := resolve.NewExtractionContext(preIn.InputData)
	result := s.cfg.Extractor.Execute(ctx, strategyPlan, ectx, diags)

	postIn := &pipeline.PostprocessInput{ParsedData: result.ParsedData, Plan: strategyPlan}
	postprocessors := s.cfg.Postprocessors
	if opts.ValidateOutput {
		postprocessors = append(append([]pipeline.Postprocessor{}, postprocessors...), pipeline.ValidateOutput())
	}
	pipeline.RunPostprocessors(postprocessors, postIn, diags)

	s.recordParse(ctx, result.OverallConfidence, strategyPlan)

	return ParseResult{
		ParsedData:  postIn.ParsedData,
		Confidence:  result.OverallConfidence,
		Diagnostics: diags.Items(),
		Plan:        plan.ClonePlan(strategyPlan),
	}, nil
}

// ParseMany runs Parse over inputs in order, preserving result order.
func (s *Session) ParseMany(ctx context.Context, inputs []string, overrides *Options) ([]ParseResult, error) {
	out := make([]ParseResult, len(inputs))
	for i, input := range inputs {
		res, err := s.Parse(ctx, input, overrides)
		if err != nil {
			return out[:i], err
		}
		out[i] = res
	}
	return out, nil
}

// Snapshot returns a clone of the current plan plus aggregate session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Plan:           plan.ClonePlan(s.currentPlan),
		LastConfidence: s.lastConfidence,
		ParseCount:     s.parseCount,
	}
}

// Dispose releases the Session. Idempotent.
func (s *Session) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	return nil
}

func (s *Session) ensurePlan(ctx context.Context, diags *diagnostic.Collector) *plan.SearchPlan {
	s.mu.Lock()
	existing := s.currentPlan
	s.mu.Unlock()
	if existing != nil {
		return existing
	}

	built := s.cfg.Architect.Plan(ctx, architect.Request{
		SchemaKeys:        s.cfg.SchemaKeys,
		SchemaDescriptors: s.cfg.SchemaDescriptors,
		Instructions:      s.cfg.Instructions,
		Profile:           s.cfg.Profile,
	}, diags)

	s.mu.Lock()
	if s.currentPlan == nil {
		s.currentPlan = built
	}
	result := s.currentPlan
	s.mu.Unlock()
	return result
}

// recordParse updates aggregate state and, when AutoRefresh is enabled and
// confidence fell below threshold with the cooldown elapsed, schedules an
// architect rerun. The rerun replaces the Session's plan atomically once it
// completes; a parse that starts before the rerun finishes keeps using the
// plan it already has, and any parse starting after the swap picks up the
// new one.
func (s *Session) recordParse(ctx context.Context, confidence float64, usedPlan *plan.SearchPlan) {
	s.mu.Lock()
	s.parseCount++
	s.lastConfidence = confidence
	needsRefresh := s.cfg.AutoRefresh.Enabled &&
		confidence < s.cfg.AutoRefresh.Threshold &&
		!s.refreshing &&
		time.Since(s.lastRefreshAt) >= s.cfg.AutoRefresh.Cooldown
	if needsRefresh {
		s.refreshing = true
		s.lastRefreshAt = time.Now()
	}
	s.mu.Unlock()

	if !needsRefresh {
		return
	}

	rerun := func(ctx context.Context) (any, error) {
		diags := &diagnostic.Collector{}
		rebuilt := s.cfg.Architect.Plan(ctx, architect.Request{
			SchemaKeys:        s.cfg.SchemaKeys,
			SchemaDescriptors: s.cfg.SchemaDescriptors,
			Instructions:      s.cfg.Instructions,
			Profile:           s.cfg.Profile,
		}, diags)

		s.mu.Lock()
		s.currentPlan = rebuilt
		s.refreshing = false
		s.mu.Unlock()
		return rebuilt, nil
	}

	if s.cfg.Queue != nil {
		s.cfg.Queue.Enqueue(ctx, rerun)
		return
	}
	_, _ = rerun(ctx)
}
