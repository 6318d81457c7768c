// Package resolve implements the resolver registry and the ordered chain
// of field resolvers that execute a SearchPlan's steps. Resolvers share a
// per-parse ExtractionContext scratchpad so format detection, JSON
// parsing, and section segmentation happen at most once per parse even
// when the extractor fans steps out across the async task queue.
package resolve

import (
	"encoding/json"
	"sync"

	"github.com/fieldforge/extract/runtime/heuristics"
)

// ExtractionContext is the per-parse scratch state resolvers share. It is
// created at parse start, passed by reference to every resolver
// invocation, and dropped at response assembly. All lazy caches are
// populated at most once even under the extractor's parallel strategy.
type ExtractionContext struct {
	input string

	mu              sync.Mutex
	formatDetected  bool
	format          heuristics.Format
	jsonDetected    bool
	jsonPayload     any
	jsonValid       bool
	sectionsDone    bool
	sections        []heuristics.Section
	looseKVDone     bool
	looseKV         map[string][]string
	resolverErrors  map[string]int
	fallbackUsage   *FallbackUsage
	sharedExtract   map[string]any
}

// NewExtractionContext constructs a fresh ExtractionContext over input.
func NewExtractionContext(input string) *ExtractionContext {
	return &ExtractionContext{
		input:          input,
		resolverErrors: make(map[string]int),
		fallbackUsage:  &FallbackUsage{},
	}
}

// Input returns the full parse input text.
func (c *ExtractionContext) Input() string { return c.input }

// Format lazily detects and caches the input's Format.
func (c *ExtractionContext) Format() heuristics.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.formatDetected {
		c.format = heuristics.DetectFormat(c.input)
		c.formatDetected = true
	}
	return c.format
}

// JSONPayload lazily parses the input as JSON, caching both the result and
// whether parsing succeeded.
func (c *ExtractionContext) JSONPayload() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.jsonDetected {
		var v any
		c.jsonValid = json.Unmarshal([]byte(c.input), &v) == nil
		c.jsonPayload = v
		c.jsonDetected = true
	}
	return c.jsonPayload, c.jsonValid
}

// Sections lazily segments the input, caching the result.
func (c *ExtractionContext) Sections() []heuristics.Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sectionsDone {
		c.sections = heuristics.Segment(c.input)
		c.sectionsDone = true
	}
	return c.sections
}

// LooseKV lazily builds a normalized key->candidate-values map from lines
// shaped like "key: value", "key = value", or "key — value".
func (c *ExtractionContext) LooseKV() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.looseKVDone {
		c.looseKV = buildLooseKV(c.input)
		c.looseKVDone = true
	}
	return c.looseKV
}

// RecordResolverError notes that resolverName failed for this parse,
// purely for diagnostics/telemetry purposes; it never affects control flow.
func (c *ExtractionContext) RecordResolverError(resolverName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolverErrors[resolverName]++
}

// FallbackUsage returns the shared lean-LLM usage tracker for this parse.
func (c *ExtractionContext) FallbackUsage() *FallbackUsage { return c.fallbackUsage }

// TakeSharedExtraction returns and removes a value the lean-LLM fallback
// resolver incidentally produced for targetKey on an earlier step, if any.
// The extractor consults this before invoking the registry so a field
// already resolved via sharedExtractions is counted as reused rather than
// triggering a second invocation.
func (c *ExtractionContext) TakeSharedExtraction(targetKey string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.sharedExtract[targetKey]
	if ok {
		delete(c.sharedExtract, targetKey)
	}
	return v, ok
}

// StoreSharedExtractions records values the lean-LLM fallback resolver
// incidentally produced for fields other than the one it was asked to
// resolve.
func (c *ExtractionContext) StoreSharedExtractions(values map[string]any) {
	if len(values) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sharedExtract == nil {
		c.sharedExtract = make(map[string]any, len(values))
	}
	for k, v := range values {
		c.sharedExtract[k] = v
	}
}
