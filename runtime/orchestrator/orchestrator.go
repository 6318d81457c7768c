// Package orchestrator implements the top-level parse/parseMany state
// machine: validate, preprocess, resolve a plan (cache or architect),
// extract, postprocess, and assemble a response, emitting telemetry at
// every boundary. It is the sole owner of a parse's per-request scratch
// state; every other package in this module is a collaborator it drives.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fieldforge/extract/runtime/architect"
	"github.com/fieldforge/extract/runtime/cache"
	"github.com/fieldforge/extract/runtime/detect"
	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/extractor"
	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/parserequest"
	"github.com/fieldforge/extract/runtime/pipeline"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/resolve"
	"github.com/fieldforge/extract/runtime/telemetry"
)

const (
	defaultMaxInputLength  = 200_000
	defaultMaxSchemaFields = 64

	defaultConfidenceThreshold = 0.7
)

// Config wires an Orchestrator's collaborators and tunables. Architect and
// Extractor must be set. New defaults the cache, telemetry, logger, context
// definitions, pipeline chains, limits, confidence threshold and strategy
// when left zero-valued; DefaultProfile and the Cache* policy fields stay
// as given.
type Config struct {
	Architect *architect.Architect
	Extractor *extractor.Extractor
	Cache     cache.Store
	Telemetry telemetry.Bus

	// Logger emits structured entry/exit logs for every stage boundary and
	// a Warn/Error line for every diagnostic a stage adds. Nil selects a
	// Logger that discards everything.
	Logger telemetry.Logger

	// ContextDefinitions seeds the system-context detector. Nil selects
	// DefaultContextDefinitions.
	ContextDefinitions []detect.Definition
	DetectorOptions     detect.Options

	Preprocessors  []pipeline.Preprocessor
	Postprocessors []pipeline.Postprocessor

	MaxInputLength             int
	MaxSchemaFields            int
	DefaultConfidenceThreshold float64
	DefaultStrategy            plan.Strategy
	DefaultProfile             string

	// CacheMinConfidence/CacheMaxAge/CacheStaleAfter parameterize the
	// cache-entry evaluation policy a plan-cache hit is checked against.
	CacheMinConfidence float64
	CacheMaxAge        time.Duration
	CacheStaleAfter    time.Duration
}

// Orchestrator drives a single parse end to end.
type Orchestrator struct {
	cfg              Config
	detector         *detect.Detector
	contextSummaries map[string]string
}

// New constructs an Orchestrator, applying the Config defaults listed above.
func New(cfg Config) *Orchestrator {
	if cfg.ContextDefinitions == nil {
		cfg.ContextDefinitions = DefaultContextDefinitions()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemStore(cache.Options{})
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = defaultMaxInputLength
	}
	if cfg.MaxSchemaFields <= 0 {
		cfg.MaxSchemaFields = defaultMaxSchemaFields
	}
	if cfg.DefaultConfidenceThreshold <= 0 {
		cfg.DefaultConfidenceThreshold = defaultConfidenceThreshold
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = plan.StrategySequential
	}
	if cfg.Preprocessors == nil {
		cfg.Preprocessors = []pipeline.Preprocessor{
			pipeline.TrimInput,
			pipeline.NormalizeLineEndings,
			pipeline.NormalizeSchemaKeys(cfg.MaxSchemaFields),
		}
	}
	if cfg.Postprocessors == nil {
		cfg.Postprocessors = []pipeline.Postprocessor{pipeline.ApplyFallbackValues, pipeline.DropEmptyStrings}
	}

	summaries := make(map[string]string, len(cfg.ContextDefinitions))
	for _, d := range cfg.ContextDefinitions {
		summaries[d.ID] = d.Summary
	}

	return &Orchestrator{
		cfg:              cfg,
		detector:         detect.New(cfg.ContextDefinitions, cfg.DetectorOptions),
		contextSummaries: summaries,
	}
}

// Parse runs the full pipeline for a single request, recovering from any
// unexpected panic as an orchestration-stage failure rather than letting it
// escape to the caller.
func (o *Orchestrator) Parse(ctx context.Context, req parserequest.Request) (resp parserequest.Response) {
	start := time.Now()
	requestID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			diags := &diagnostic.Collector{}
			diags.Addf("*", diagnostic.StageOrchestration, diagnostic.SeverityError, "unexpected failure: %v", r)
			o.cfg.Logger.Error(ctx, "unexpected failure", "requestID", requestID, "panic", r)
			resp = o.failureResponse(requestID, diagnostic.StageOrchestration, "", fmt.Sprintf("unexpected failure: %v", r), diags, nil, start)
			o.emit(ctx, telemetry.EventParseFinish, requestID, map[string]any{"success": false})
		}
	}()

	o.cfg.Logger.Debug(ctx, "parse start", "requestID", requestID)
	o.emit(ctx, telemetry.EventParseStart, requestID, nil)
	resp = o.doParse(ctx, req, requestID, start)
	o.cfg.Logger.Debug(ctx, "parse finish", "requestID", requestID, "success", resp.Success)
	o.emit(ctx, telemetry.EventParseFinish, requestID, map[string]any{"success": resp.Success})
	return resp
}

// ParseMany runs Parse over reqs in order, preserving result order. Unlike
// a Session's ParseMany, a failure in one request never aborts the rest:
// each request is independent at this layer.
func (o *Orchestrator) ParseMany(ctx context.Context, reqs []parserequest.Request) []parserequest.Response {
	out := make([]parserequest.Response, len(reqs))
	for i, r := range reqs {
		out[i] = o.Parse(ctx, r)
	}
	return out
}

func (o *Orchestrator) doParse(ctx context.Context, req parserequest.Request, requestID string, start time.Time) parserequest.Response {
	diags := &diagnostic.Collector{}
	keys := schemaKeysSorted(req.Schema)

	if code, message, bad := o.validateRequest(req); bad {
		diags.Addf("*", diagnostic.StageValidation, diagnostic.SeverityError, "%s", message)
		o.logNewDiagnostics(ctx, requestID, diags, 0)
		return o.failureResponse(requestID, diagnostic.StageValidation, code, message, diags, keys, start)
	}

	descriptors := fieldDescriptors(req.Schema)

	preStart := time.Now()
	diagsBefore := diags.Len()
	o.cfg.Logger.Debug(ctx, "preprocess start", "requestID", requestID)
	o.emit(ctx, telemetry.EventPreprocessStart, requestID, nil)
	preIn := &pipeline.PreprocessInput{
		InputData:    req.InputData,
		SchemaKeys:   append([]string{}, keys...),
		Instructions: req.Instructions,
	}
	if err := pipeline.Chain(o.cfg.Preprocessors, preIn, diags); err != nil {
		o.logNewDiagnostics(ctx, requestID, diags, diagsBefore)
		return o.failureResponse(requestID, diagnostic.StagePreprocess, parserequest.CodeSchemaTooLarge, err.Error(), diags, keys, start)
	}
	o.logNewDiagnostics(ctx, requestID, diags, diagsBefore)
	o.cfg.Logger.Debug(ctx, "preprocess finish", "requestID", requestID)
	o.emit(ctx, telemetry.EventPreprocessFinish, requestID, nil)
	preprocessMs := time.Since(preStart).Milliseconds()

	opts := req.Options
	strategy := opts.Strategy
	if strategy == "" {
		strategy = o.cfg.DefaultStrategy
	}
	profile := opts.Profile
	if profile == "" {
		profile = o.cfg.DefaultProfile
	}
	confidenceThreshold := opts.ConfidenceThreshold
	if confidenceThreshold <= 0 {
		confidenceThreshold = o.cfg.DefaultConfidenceThreshold
	}

	detection := o.detector.Detect(detect.Input{
		SchemaFields:      preIn.SchemaKeys,
		Instructions:      preIn.Instructions,
		Sample:            preIn.InputData,
		DomainHints:       opts.DomainHints,
		SystemContextHint: opts.SystemContextHint,
	})
	var detectedContext, contextSummary string
	if detection.ContextID != detect.Generic {
		detectedContext = detection.ContextID
		contextSummary = o.contextSummaries[detection.ContextID]
	}

	cacheKey := cache.Key(preIn.SchemaKeys, preIn.Instructions, string(strategy), profile, confidenceThreshold, opts.ValidateOutput)
	entry, found, _ := o.cfg.Cache.Get(ctx, cacheKey)
	evaluation := cache.Evaluate(entry, found, o.cfg.CacheMinConfidence, o.cfg.CacheMaxAge, o.cfg.CacheStaleAfter)

	architectReq := architect.Request{
		SchemaKeys:        preIn.SchemaKeys,
		SchemaDescriptors: descriptors,
		Instructions:      preIn.Instructions,
		DetectedContext:   detectedContext,
		ContextSummary:    contextSummary,
		ContextConfidence: detection.Confidence,
		Profile:           profile,
	}

	var activePlan *plan.SearchPlan
	var architectTokens int
	var architectMs int64

	switch evaluation {
	case cache.EvalHit, cache.EvalStale:
		o.cfg.Logger.Debug(ctx, "architect skipped, plan cache hit", "requestID", requestID, "stale", evaluation == cache.EvalStale)
		o.emitCache(ctx, telemetry.CacheActionHit, requestID, cacheKey)
		activePlan = plan.ClonePlan(entry.Plan)
		activePlan.Metadata.Origin = plan.OriginCached
		if evaluation == cache.EvalStale {
			go o.refreshPlanAsync(cacheKey, architectReq, profile)
		}
	default:
		o.emitCache(ctx, telemetry.CacheActionMiss, requestID, cacheKey)
		architectStart := time.Now()
		diagsBefore := diags.Len()
		o.cfg.Logger.Debug(ctx, "architect start", "requestID", requestID)
		o.emit(ctx, telemetry.EventArchitectStart, requestID, nil)
		built := o.cfg.Architect.Plan(ctx, architectReq, diags)
		o.logNewDiagnostics(ctx, requestID, diags, diagsBefore)
		o.cfg.Logger.Debug(ctx, "architect finish", "requestID", requestID)
		o.emit(ctx, telemetry.EventArchitectFinish, requestID, nil)
		architectMs = time.Since(architectStart).Milliseconds()
		architectTokens = built.Metadata.EstimatedTokens
		activePlan = built

		_ = o.cfg.Cache.Set(ctx, cacheKey, cache.Entry{
			Plan:       plan.ClonePlan(built),
			Confidence: built.Metadata.PlannerConfidence,
			Profile:    profile,
		})
		o.emitCache(ctx, telemetry.CacheActionStore, requestID, cacheKey)
	}

	strategyPlan := plan.ClonePlan(activePlan)
	strategyPlan.Strategy = strategy
	strategyPlan.ConfidenceThreshold = confidenceThreshold
	strategyPlan.Metadata.DetectedFormat = string(heuristics.DetectFormat(preIn.InputData))

	ectx := resolve.NewExtractionContext(preIn.InputData)
	extractStart := time.Now()
	extractDiagsBefore := diags.Len()
	o.cfg.Logger.Debug(ctx, "extractor start", "requestID", requestID)
	o.emit(ctx, telemetry.EventExtractorStart, requestID, nil)
	result := o.cfg.Extractor.Execute(ctx, strategyPlan, ectx, diags)
	o.logNewDiagnostics(ctx, requestID, diags, extractDiagsBefore)
	o.cfg.Logger.Debug(ctx, "extractor finish", "requestID", requestID)
	o.emit(ctx, telemetry.EventExtractorFinish, requestID, nil)
	extractorMs := time.Since(extractStart).Milliseconds()

	if err := ctx.Err(); err != nil {
		diags.Addf("*", diagnostic.StageOrchestration, diagnostic.SeverityError, "parse cancelled: %v", err)
		o.cfg.Logger.Error(ctx, "parse cancelled", "requestID", requestID, "err", err)
		return o.failureResponse(requestID, diagnostic.StageOrchestration, "", err.Error(), diags, keys, start)
	}

	annotateJSONResolutions(diags, result.Fields)
	o.emitFieldEvents(ctx, requestID, result.Fields)
	o.emitFallbackEvents(ctx, requestID, result.FallbackUsage)

	postIn := &pipeline.PostprocessInput{ParsedData: result.ParsedData, Plan: strategyPlan}
	postStart := time.Now()
	postDiagsBefore := diags.Len()
	o.cfg.Logger.Debug(ctx, "postprocess start", "requestID", requestID)
	postprocessors := o.cfg.Postprocessors
	if opts.ValidateOutput {
		postprocessors = append(append([]pipeline.Postprocessor{}, postprocessors...), pipeline.ValidateOutput())
	}
	pipeline.RunPostprocessors(postprocessors, postIn, diags)
	backfillMissingSchemaKeys(postIn.ParsedData, keys)
	o.logNewDiagnostics(ctx, requestID, diags, postDiagsBefore)
	o.cfg.Logger.Debug(ctx, "postprocess finish", "requestID", requestID)
	postprocessMs := time.Since(postStart).Milliseconds()

	success := allRequiredPresent(strategyPlan, postIn.ParsedData)
	extractorTokens := result.FallbackUsage.TotalTokens

	return parserequest.Response{
		Success:    success,
		ParsedData: postIn.ParsedData,
		Metadata: parserequest.Metadata{
			Plan:             plan.ClonePlan(strategyPlan),
			Confidence:       result.OverallConfidence,
			TokensUsed:       clampInt(architectTokens + extractorTokens),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ArchitectTokens:  clampInt(architectTokens),
			ExtractorTokens:  clampInt(extractorTokens),
			RequestID:        requestID,
			Timestamp:        time.Now(),
			Diagnostics:      diags.Items(),
			StageBreakdown: parserequest.StageBreakdown{
				PreprocessMs:  preprocessMs,
				ArchitectMs:   architectMs,
				ExtractorMs:   extractorMs,
				PostprocessMs: postprocessMs,
			},
			Fallback: fallbackSummary(result.FallbackUsage),
		},
	}
}

// refreshPlanAsync rebuilds and re-stores the plan for key in the
// background, detached from the triggering request's context, per the
// stale-entry cache-evaluation policy.
func (o *Orchestrator) refreshPlanAsync(key string, req architect.Request, profile string) {
	diags := &diagnostic.Collector{}
	rebuilt := o.cfg.Architect.Plan(context.Background(), req, diags)
	_ = o.cfg.Cache.Set(context.Background(), key, cache.Entry{
		Plan:       plan.ClonePlan(rebuilt),
		Confidence: rebuilt.Metadata.PlannerConfidence,
		Profile:    profile,
	})
}

func (o *Orchestrator) validateRequest(req parserequest.Request) (code, message string, bad bool) {
	if strings.TrimSpace(req.InputData) == "" {
		return parserequest.CodeEmptyInputData, "input data is empty or whitespace-only", true
	}
	if o.cfg.MaxInputLength > 0 && len(req.InputData) > o.cfg.MaxInputLength {
		return parserequest.CodeInputTooLarge, fmt.Sprintf("input length %d exceeds maxInputLength %d", len(req.InputData), o.cfg.MaxInputLength), true
	}
	if o.cfg.MaxSchemaFields > 0 && len(req.Schema) > o.cfg.MaxSchemaFields {
		return parserequest.CodeSchemaTooLarge, fmt.Sprintf("schema field count %d exceeds maxSchemaFields %d", len(req.Schema), o.cfg.MaxSchemaFields), true
	}
	if !utf8.ValidString(req.Instructions) {
		return parserequest.CodeInvalidInstructions, "instructions is not valid text", true
	}
	return "", "", false
}

func (o *Orchestrator) failureResponse(requestID string, stage diagnostic.Stage, code, message string, diags *diagnostic.Collector, keys []string, start time.Time) parserequest.Response {
	return parserequest.Response{
		Success:    false,
		ParsedData: map[string]any{},
		Metadata: parserequest.Metadata{
			Plan:             placeholderPlan(keys),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			RequestID:        requestID,
			Timestamp:        time.Now(),
			Diagnostics:      diags.Items(),
		},
		Error: &parserequest.Error{Stage: stage, Message: message, Code: code},
	}
}

// placeholderPlan builds the one-step-per-schema-key plan an upstream
// validation failure falls back to, so the response's metadata.plan is
// never nil even on a hard failure.
func placeholderPlan(keys []string) *plan.SearchPlan {
	steps := make([]plan.SearchStep, 0, len(keys))
	for _, k := range keys {
		steps = append(steps, plan.SearchStep{
			TargetKey:         k,
			SearchInstruction: "No plan generated due to upstream validation error.",
		})
	}
	return &plan.SearchPlan{Steps: steps, Metadata: plan.PlanMetadata{Origin: plan.OriginManual}}
}

func (o *Orchestrator) emit(ctx context.Context, eventType telemetry.EventType, requestID string, payload map[string]any) {
	o.cfg.Telemetry.Emit(ctx, telemetry.Event{Type: eventType, Timestamp: time.Now(), RequestID: requestID, Payload: payload})
}

// logNewDiagnostics logs every diagnostic added to diags since before at
// Warn (or Error, for error-severity diagnostics), matching this stage's
// contribution to the parse. Info-severity diagnostics are already visible
// via the field-resolved telemetry events and are not re-logged here.
func (o *Orchestrator) logNewDiagnostics(ctx context.Context, requestID string, diags *diagnostic.Collector, before int) {
	items := diags.Items()
	for _, d := range items[before:] {
		switch d.Severity {
		case diagnostic.SeverityWarning:
			o.cfg.Logger.Warn(ctx, d.Message, "requestID", requestID, "field", d.Field, "stage", string(d.Stage))
		case diagnostic.SeverityError:
			o.cfg.Logger.Error(ctx, d.Message, "requestID", requestID, "field", d.Field, "stage", string(d.Stage))
		}
	}
}

func (o *Orchestrator) emitCache(ctx context.Context, action telemetry.CacheAction, requestID, key string) {
	o.emit(ctx, telemetry.EventPlanCache, requestID, telemetry.CacheEventPayload(action, telemetry.CacheSourceCore, key))
}

func (o *Orchestrator) emitFieldEvents(ctx context.Context, requestID string, fields []extractor.FieldResult) {
	for _, f := range fields {
		o.emit(ctx, telemetry.EventFieldResolved, requestID, map[string]any{
			"field": f.TargetKey, "hasValue": f.HasValue, "confidence": f.Confidence, "resolver": f.ResolverName,
		})
	}
}

func (o *Orchestrator) emitFallbackEvents(ctx context.Context, requestID string, usage *resolve.FallbackUsage) {
	if usage == nil {
		return
	}
	for _, fu := range usage.Fields {
		var eventType telemetry.EventType
		switch fu.Action {
		case resolve.FallbackInvoked:
			eventType = telemetry.EventFallbackInvoked
		case resolve.FallbackReused:
			eventType = telemetry.EventFallbackReused
		case resolve.FallbackSkipped:
			eventType = telemetry.EventFallbackSkipped
		default:
			continue
		}
		o.emit(ctx, eventType, requestID, map[string]any{"field": fu.Field, "confidence": fu.Confidence, "tokens": fu.Tokens, "reason": fu.Reason})
	}
}

// annotateJSONResolutions records an info diagnostic for every field the
// JSON resolver won, matching the "Resolved via JSON path <Key>" note a
// caller inspecting a JSON-happy-path response expects to see.
func annotateJSONResolutions(diags *diagnostic.Collector, fields []extractor.FieldResult) {
	for _, f := range fields {
		if f.HasValue && f.ResolverName == "json" {
			diags.Addf(f.TargetKey, diagnostic.StageExtractor, diagnostic.SeverityInfo,
				"Resolved via JSON path %s", capitalizeFirst(f.TargetKey))
		}
	}
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// backfillMissingSchemaKeys ensures parsedData carries exactly one entry per
// requested schema key: a resolver's value survives untouched, and any key
// no resolver, fallback, or postprocessor ever populated (including one a
// postprocessor like DropEmptyStrings removed outright) comes back as an
// explicit null rather than an absent key.
func backfillMissingSchemaKeys(parsedData map[string]any, keys []string) {
	for _, k := range keys {
		if _, ok := parsedData[k]; !ok {
			parsedData[k] = nil
		}
	}
}

func allRequiredPresent(p *plan.SearchPlan, parsedData map[string]any) bool {
	for _, step := range p.RequiredSteps() {
		if v, ok := parsedData[step.TargetKey]; !ok || v == nil {
			return false
		}
	}
	return true
}

func fallbackSummary(u *resolve.FallbackUsage) *parserequest.FallbackSummary {
	if u == nil {
		return nil
	}
	if u.TotalInvocations == 0 && u.ReusedResolutions == 0 && u.SkippedByPlanConfidence == 0 && u.SkippedByLimits == 0 && u.SharedExtractions == 0 {
		return nil
	}
	return &parserequest.FallbackSummary{
		TotalInvocations:        u.TotalInvocations,
		ResolvedFields:          u.ResolvedFields,
		ReusedResolutions:       u.ReusedResolutions,
		SkippedByPlanConfidence: u.SkippedByPlanConfidence,
		SkippedByLimits:         u.SkippedByLimits,
		SharedExtractions:       u.SharedExtractions,
		TotalTokens:             u.TotalTokens,
	}
}

func schemaKeysSorted(schema map[string]parserequest.FieldSchema) []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fieldDescriptors(schema map[string]parserequest.FieldSchema) map[string]heuristics.FieldDescriptor {
	out := make(map[string]heuristics.FieldDescriptor, len(schema))
	for k, f := range schema {
		out[k] = heuristics.FieldDescriptor{
			ValidationType: f.ValidationType,
			Description:    f.Description,
			Required:       f.Required,
			FallbackValue:  f.FallbackValue,
		}
	}
	return out
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
