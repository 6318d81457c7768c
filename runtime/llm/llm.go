// Package llm defines the lightweight-LLM fallback collaborator contract
// the extractor consults when a resolver chain exhausts its deterministic
// options for a required or low-confidence field. No concrete provider is
// instantiated in this package; Client is deliberately provider-agnostic,
// trimmed to the single extractField call the fallback resolver needs.
package llm

import "context"

type (
	// Request is the input to a single field-extraction call.
	Request struct {
		// Field is the target schema key being resolved.
		Field string
		// Description is the human-readable summary of the field.
		Description string
		// ValidationType names the expected value shape.
		ValidationType string
		// Instruction is the composed search guidance for this field.
		Instruction string
		// Input is the (possibly truncated) source text to search.
		Input string
		// PlanSummary optionally gives the model a compact view of the
		// surrounding plan for cross-field consistency.
		PlanSummary string
		// DetectedContext is the system-context label attached to this
		// parse, if any.
		DetectedContext string
	}

	// Response is the result of a field-extraction call.
	Response struct {
		// Value is the extracted value, or nil if none was found.
		Value any
		// Confidence is the model's self-reported confidence, if any.
		Confidence float64
		// HasConfidence reports whether Confidence was set by the provider.
		HasConfidence bool
		// Reason is a short human-readable rationale, if provided.
		Reason string
		// TokensUsed reports token consumption for this call, if known.
		TokensUsed int
		// FinishReason records why generation stopped, provider-specific.
		FinishReason string
		// SharedExtractions carries additional field values the model
		// incidentally surfaced while resolving Field, keyed by target key.
		SharedExtractions map[string]any
	}

	// Client is the provider-agnostic lean-LLM fallback contract. The
	// orchestrator MUST tolerate any failure from Client as "no value
	// provided" plus a diagnostic; Client implementations are never
	// permitted to cause a parse to fail.
	Client interface {
		ExtractField(ctx context.Context, req Request) (Response, error)
	}
)
