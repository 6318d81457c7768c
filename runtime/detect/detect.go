// Package detect implements the system-context detector: a static,
// keyword-weighted classifier that labels a parse with a domain (e.g.
// "finance", "medical") so the architect and heuristics can bias
// search-instruction composition. It is intentionally not a model call —
// detection must be cheap enough to run on every parse.
package detect

import (
	"math"
	"strings"
)

const (
	schemaWeight      = 1.25
	instructionWeight = 1.5
	sampleWeight      = 1.0
	hintWeight        = 2.5
	defaultHintBoost  = 1.25

	defaultAmbiguityDelta = 1.0
	defaultMinimumScore   = 1.0

	// Generic is returned when no context clears the ambiguity/minimum
	// thresholds.
	Generic = "generic"
)

type (
	// Definition is a single registered system-context entry: a keyword
	// set and a human summary.
	Definition struct {
		ID       string
		Summary  string
		Keywords []string
	}

	// Input carries everything the detector scores against.
	Input struct {
		SchemaFields      []string
		Instructions      string
		Sample            string
		DomainHints       []string
		SystemContextHint string
	}

	// Options tunes the detector's tie-breaking thresholds.
	Options struct {
		AmbiguityDelta float64
		MinimumScore   float64
		HintBoost      float64
	}

	// Result is the detector's verdict.
	Result struct {
		ContextID  string
		Confidence float64
		Scores     map[string]float64
	}

	// Detector scores an Input against a static table of Definitions.
	Detector struct {
		definitions []Definition
		opts        Options
	}
)

// New constructs a Detector over the given context definitions, applying
// defaults for any zero-valued Options field.
func New(definitions []Definition, opts Options) *Detector {
	if opts.AmbiguityDelta <= 0 {
		opts.AmbiguityDelta = defaultAmbiguityDelta
	}
	if opts.MinimumScore <= 0 {
		opts.MinimumScore = defaultMinimumScore
	}
	if opts.HintBoost <= 0 {
		opts.HintBoost = defaultHintBoost
	}
	return &Detector{definitions: definitions, opts: opts}
}

// Detect scores in against every registered Definition and returns the
// winning context, or Generic when the result is ambiguous or too weak.
func (d *Detector) Detect(in Input) Result {
	schemaText := strings.ToLower(strings.Join(in.SchemaFields, " "))
	instructionText := strings.ToLower(in.Instructions)
	sampleText := strings.ToLower(in.Sample)
	hintText := strings.ToLower(strings.Join(in.DomainHints, " "))
	explicitHint := strings.ToLower(in.SystemContextHint)

	scores := make(map[string]float64, len(d.definitions))
	for _, def := range d.definitions {
		var score float64
		for _, kw := range def.Keywords {
			kw = strings.ToLower(kw)
			score += float64(strings.Count(schemaText, kw)) * schemaWeight
			score += float64(strings.Count(instructionText, kw)) * instructionWeight
			score += float64(strings.Count(sampleText, kw)) * sampleWeight
			score += float64(strings.Count(hintText, kw)) * hintWeight
		}
		if explicitHint != "" && strings.EqualFold(explicitHint, def.ID) {
			score += d.opts.HintBoost
		}
		scores[def.ID] = score
	}

	topID, topScore, secondScore := topTwo(scores)
	if topID == "" {
		return Result{ContextID: Generic, Confidence: confidence(0), Scores: scores}
	}
	if topScore-secondScore < d.opts.AmbiguityDelta {
		return Result{ContextID: Generic, Confidence: confidence(0), Scores: scores}
	}
	if topScore < d.opts.MinimumScore {
		return Result{ContextID: Generic, Confidence: confidence(0), Scores: scores}
	}
	return Result{ContextID: topID, Confidence: confidence(topScore), Scores: scores}
}

func topTwo(scores map[string]float64) (topID string, top, second float64) {
	for id, s := range scores {
		switch {
		case s > top || topID == "":
			if topID != "" {
				second = top
			}
			topID, top = id, s
		case s > second:
			second = s
		}
	}
	return topID, top, second
}

// confidence maps a raw score to the [0.35, 0.95] confidence band.
func confidence(score float64) float64 {
	c := 0.35 + math.Log2(1+score)
	if c < 0.35 {
		return 0.35
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}
