package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/signals"
)

// Spam component names.
const (
	ComponentKeywords    = "keywords"
	ComponentLinks       = "links"
	ComponentCaps        = "caps"
	ComponentPunctuation = "punctuation"
	ComponentBehavior    = "behavior"
	ComponentSimilarity  = "similarity"
)

// Quality component names.
const (
	ComponentQualityKeywords = "quality_keywords"
	ComponentReadability     = "readability"
	ComponentLength          = "length"
	ComponentStructure       = "structure"
	ComponentReputation      = "reputation"
)

// minCapsLetters is the fewest letters for which shouting is measured.
const minCapsLetters = 10

// SpamScore holds the spam, quality and toxicity composites of a submission.
type SpamScore struct {
	Spam     Result
	Quality  Result
	Toxicity float64
	Signals  signals.Set
	Stats    signals.TextStats
}

// Spam scores a submission. Missing behavioral data leaves the behavior
// component at 0 and reputation neutral.
func (e *Engine) Spam(c content.SpamCandidate, now time.Time) SpamScore {
	item := c.Item
	set, stats := e.extractor.Extract(item, now)
	set.Merge(signals.Behavior(c.Profile, c.SimilarCount))

	sw := e.weights.Spam
	spam := Compute([]Component{
		{Name: ComponentKeywords, Raw: math.Max(set[signals.KeywordDensity]*4, float64(stats.SpamMatches)/3)},
		{Name: ComponentLinks, Raw: set[signals.LinkDensity] * 5},
		{Name: ComponentCaps, Raw: capsScore(stats)},
		{Name: ComponentPunctuation, Raw: math.Max(float64(stats.PunctuationRuns)/2, stats.PunctuationRatio*5)},
		{Name: ComponentBehavior, Raw: behaviorScore(c.Profile, set)},
		{Name: ComponentSimilarity, Raw: set[signals.Similarity]},
	}, map[string]float64{
		ComponentKeywords:    sw.Keywords,
		ComponentLinks:       sw.Links,
		ComponentCaps:        sw.Caps,
		ComponentPunctuation: sw.Punctuation,
		ComponentBehavior:    sw.Behavior,
		ComponentSimilarity:  sw.Similarity,
	})

	qw := e.weights.Quality
	quality := Compute([]Component{
		{Name: ComponentQualityKeywords, Raw: float64(stats.QualityMatches) / 5},
		{Name: ComponentReadability, Raw: Readability(stats)},
		{Name: ComponentLength, Raw: LengthScore(stats.Words)},
		{Name: ComponentStructure, Raw: StructureScore(item)},
		{Name: ComponentEngagement, Raw: signals.RawEngagementRate(item) / 0.1},
		{Name: ComponentReputation, Raw: set[signals.Reputation]},
	}, map[string]float64{
		ComponentQualityKeywords: qw.Keywords,
		ComponentReadability:     qw.Readability,
		ComponentLength:          qw.Length,
		ComponentStructure:       qw.Structure,
		ComponentEngagement:      qw.Engagement,
		ComponentReputation:      qw.Reputation,
	})

	return SpamScore{
		Spam:     spam,
		Quality:  quality,
		Toxicity: ToxicityScore(stats),
		Signals:  set,
		Stats:    stats,
	}
}

func capsScore(stats signals.TextStats) float64 {
	if stats.Letters < minCapsLetters {
		return 0
	}
	return stats.CapsRatio / 0.5
}

func behaviorScore(profile *content.BehavioralProfile, set signals.Set) float64 {
	if profile == nil {
		return 0
	}
	return (set[signals.PostingFrequency] + set[signals.PreviousSpamRatio] + (1 - set[signals.Reputation])) / 3
}

// ToxicityScore is min(1, toxic matches/2).
func ToxicityScore(stats signals.TextStats) float64 {
	return math.Min(1, float64(stats.ToxicMatches)/2)
}

// Readability scores average word length and sentence length against
// comfortable bands. Each half contributes 0.5 inside its band and 0.25
// in the surrounding tolerance.
func Readability(stats signals.TextStats) float64 {
	if stats.Words == 0 {
		return 0
	}
	var score float64
	switch wl := stats.AvgWordLength; {
	case wl >= 3.5 && wl <= 7:
		score += 0.5
	case wl >= 2.5 && wl <= 9:
		score += 0.25
	}
	switch wps := stats.WordsPerSentence; {
	case wps >= 8 && wps <= 25:
		score += 0.5
	case wps >= 4 && wps <= 35:
		score += 0.25
	}
	return score
}

// LengthScore buckets word count: under 20 is 0.2, under 50 0.4, under 100
// 0.6, under 300 0.8, longer 1.0. Empty text scores 0.
func LengthScore(words int) float64 {
	switch {
	case words <= 0:
		return 0
	case words < 20:
		return 0.2
	case words < 50:
		return 0.4
	case words < 100:
		return 0.6
	case words < 300:
		return 0.8
	default:
		return 1.0
	}
}

// StructureScore rewards a title (0.5), tags (0.25) and a URL (0.25).
func StructureScore(item *content.Item) float64 {
	var score float64
	if strings.TrimSpace(item.Title) != "" {
		score += 0.5
	}
	if len(item.Tags) > 0 {
		score += 0.25
	}
	if strings.TrimSpace(item.URL) != "" {
		score += 0.25
	}
	return score
}
