// Package parserequest defines the wire-format request/response shapes for
// a parse: the language-neutral envelope a caller sends in and the
// envelope the orchestrator returns, independent of any transport.
package parserequest

import (
	"time"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/plan"
)

// FieldSchema describes one top-level outputSchema key.
type FieldSchema struct {
	ValidationType plan.ValidationType `json:"validationType,omitempty"`
	Description    string              `json:"description,omitempty"`
	Required       bool                `json:"required,omitempty"`
	FallbackValue  any                 `json:"fallbackValue,omitempty"`
}

// Options carries the recognised per-request options.
type Options struct {
	TimeoutMillis       int64         `json:"timeout,omitempty"`
	Retries             int           `json:"retries,omitempty"`
	ValidateOutput      bool          `json:"validateOutput,omitempty"`
	ConfidenceThreshold float64       `json:"confidenceThreshold,omitempty"`
	Strategy            plan.Strategy `json:"strategy,omitempty"`
	Profile             string        `json:"profile,omitempty"`
	DomainHints         []string      `json:"domainHints,omitempty"`
	SystemContextHint   string        `json:"systemContextHint,omitempty"`
}

// Request is the wire-format parse request.
type Request struct {
	InputData string                 `json:"inputData"`
	Schema    map[string]FieldSchema `json:"outputSchema"`
	Instructions string              `json:"instructions,omitempty"`
	Options    Options               `json:"options,omitempty"`
	// CorrelationID is an optional caller-supplied identifier carried on
	// the request. The orchestrator does not copy it into telemetry
	// events, which carry only the generated RequestID.
	CorrelationID string `json:"correlationId,omitempty"`
}

// StageBreakdown reports per-stage timing, in milliseconds.
type StageBreakdown struct {
	PreprocessMs int64 `json:"preprocess,omitempty"`
	ArchitectMs  int64 `json:"architect"`
	ExtractorMs  int64 `json:"extractor"`
	PostprocessMs int64 `json:"postprocess,omitempty"`
}

// FallbackSummary mirrors resolve.FallbackUsage's wire-visible subset.
type FallbackSummary struct {
	TotalInvocations        int `json:"totalInvocations"`
	ResolvedFields          int `json:"resolvedFields"`
	ReusedResolutions       int `json:"reusedResolutions"`
	SkippedByPlanConfidence int `json:"skippedByPlanConfidence"`
	SkippedByLimits         int `json:"skippedByLimits"`
	SharedExtractions       int `json:"sharedExtractions"`
	TotalTokens             int `json:"totalTokens"`
}

// Metadata is the response's non-data envelope.
type Metadata struct {
	Plan              *plan.SearchPlan            `json:"plan"`
	Confidence        float64                      `json:"confidence"`
	TokensUsed        int                          `json:"tokensUsed"`
	ProcessingTimeMs  int64                        `json:"processingTimeMs"`
	ArchitectTokens   int                          `json:"architectTokens"`
	ExtractorTokens   int                          `json:"extractorTokens"`
	RequestID         string                       `json:"requestId"`
	Timestamp         time.Time                    `json:"timestamp"`
	Diagnostics       []diagnostic.Diagnostic      `json:"diagnostics"`
	StageBreakdown    StageBreakdown               `json:"stageBreakdown"`
	Fallback          *FallbackSummary             `json:"fallback,omitempty"`
}

// Error is the wire-format failure detail, present only when Success=false.
type Error struct {
	Stage   diagnostic.Stage `json:"stage"`
	Message string           `json:"message"`
	Code    string           `json:"code,omitempty"`
}

// Response is the wire-format parse response.
type Response struct {
	Success    bool           `json:"success"`
	ParsedData map[string]any `json:"parsedData"`
	Metadata   Metadata       `json:"metadata"`
	Error      *Error         `json:"error,omitempty"`
}

// Boundary failure codes recognised by callers inspecting Error.Code.
const (
	CodeEmptyInputData     = "EMPTY_INPUT_DATA"
	CodeInputTooLarge      = "INPUT_TOO_LARGE"
	CodeSchemaTooLarge     = "SCHEMA_TOO_LARGE"
	CodeInvalidInstructions = "INVALID_INSTRUCTIONS"
)

// ClampNonNegative clamps an integer counter to zero, per the orchestrator's
// "clamp all tokens/time counters to non-negative integers" requirement.
func ClampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
