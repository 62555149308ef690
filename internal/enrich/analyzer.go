// Package enrich adapts the optional external content analyzer. Every call
// degrades to "absent" on failure: callers fall back to heuristic scores and
// never see an error from this package.
package enrich

import (
	"context"
	"math"
	"strings"
)

// MaxCategories is the most categories kept from one analysis.
const MaxCategories = 10

// Checks selects which analyses are requested.
type Checks struct {
	Spam        bool
	Quality     bool
	Toxicity    bool
	AIGenerated bool
}

// Any reports whether at least one check is selected.
func (c Checks) Any() bool {
	return c.Spam || c.Quality || c.Toxicity || c.AIGenerated
}

func (c Checks) names() []string {
	var names []string
	if c.Spam {
		names = append(names, "spam")
	}
	if c.Quality {
		names = append(names, "quality")
	}
	if c.Toxicity {
		names = append(names, "toxicity")
	}
	if c.AIGenerated {
		names = append(names, "ai_generated")
	}
	return names
}

// Request is one piece of content to analyze.
type Request struct {
	Title  string
	Body   string
	Checks Checks
}

// Analysis holds validated enrichment scores in [0,1]. A nil field was not
// returned or was unusable.
type Analysis struct {
	SpamProbability        *float64 `json:"spam_probability,omitempty"`
	QualityScore           *float64 `json:"quality_score,omitempty"`
	ToxicityScore          *float64 `json:"toxicity_score,omitempty"`
	AIGeneratedProbability *float64 `json:"ai_generated_probability,omitempty"`
	Categories             []string `json:"categories,omitempty"`
}

// Empty reports whether no score survived validation.
func (a *Analysis) Empty() bool {
	return a == nil || (a.SpamProbability == nil && a.QualityScore == nil &&
		a.ToxicityScore == nil && a.AIGeneratedProbability == nil)
}

// Analyzer returns an analysis of req, or false when none is available.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Analysis, bool)
}

// NoopAnalyzer is used when no analyzer is configured.
type NoopAnalyzer struct{}

// Analyze always reports absent.
func (NoopAnalyzer) Analyze(context.Context, Request) (*Analysis, bool) { return nil, false }

// Validate clamps every score into [0,1], drops NaN and infinite values and
// trims the category list. It returns nil when nothing usable remains.
func Validate(a *Analysis) *Analysis {
	if a == nil {
		return nil
	}
	out := &Analysis{
		SpamProbability:        clampPtr(a.SpamProbability),
		QualityScore:           clampPtr(a.QualityScore),
		ToxicityScore:          clampPtr(a.ToxicityScore),
		AIGeneratedProbability: clampPtr(a.AIGeneratedProbability),
	}
	for _, c := range a.Categories {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		out.Categories = append(out.Categories, c)
		if len(out.Categories) == MaxCategories {
			break
		}
	}
	if out.Empty() {
		return nil
	}
	return out
}

func clampPtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := math.Max(0, math.Min(1, *v))
	return &c
}
