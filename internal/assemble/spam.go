package assemble

import (
	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/scoring"
)

// Quality sub-scores below weakSubScore and spam sub-scores at or above
// strongSubScore earn a suggestion.
const (
	weakSubScore   = 0.4
	strongSubScore = 0.5
)

// Recommendation is the moderation advice returned with a spam check.
type Recommendation struct {
	Decision    decision.Action `json:"decision"`
	Reasons     []string        `json:"reasons"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
}

var spamAdvice = []struct {
	component string
	text      string
}{
	{scoring.ComponentKeywords, "Remove promotional phrases such as \"buy now\" or \"click here\""},
	{scoring.ComponentLinks, "Reduce the number of links"},
	{scoring.ComponentCaps, "Avoid writing in all capitals"},
	{scoring.ComponentPunctuation, "Avoid repeated exclamation or question marks"},
}

var qualityAdvice = []struct {
	component string
	text      string
}{
	{scoring.ComponentLength, "Add more detail; longer posts tend to be more useful"},
	{scoring.ComponentReadability, "Use sentences of moderate length and plain words"},
	{scoring.ComponentStructure, "Add a title, tags and a source link"},
	{scoring.ComponentQualityKeywords, "Explain or demonstrate something: examples, steps or analysis"},
}

// Recommend builds the recommendation for a decision. Reasons keep the
// decision's rule order; suggestions come from strong spam and weak quality
// sub-scores.
func Recommend(d decision.SpamDecision, s scoring.SpamScore) Recommendation {
	rec := Recommendation{
		Decision: d.Action,
		Reasons:  make([]string, 0, len(d.Reasons)),
		Labels:   d.Labels,
	}
	for _, r := range d.Reasons {
		rec.Reasons = append(rec.Reasons, r.Message)
	}
	if d.Action == decision.ActionApprove {
		return rec
	}
	for _, a := range spamAdvice {
		if s.Spam.Breakdown[a.component] >= strongSubScore {
			rec.Suggestions = append(rec.Suggestions, a.text)
		}
	}
	for _, a := range qualityAdvice {
		if v, ok := s.Quality.Breakdown[a.component]; ok && v < weakSubScore {
			rec.Suggestions = append(rec.Suggestions, a.text)
		}
	}
	return rec
}
