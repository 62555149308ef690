package signals

import (
	"github.com/onnwee/contentrank/internal/content"
)

// NeutralReputation is used when nothing is known about an author.
const NeutralReputation = 0.5

// Behavior computes author signals. A nil profile yields neutral reputation
// and zero risk signals; similarCount is the number of near-duplicates seen.
func Behavior(profile *content.BehavioralProfile, similarCount int) Set {
	set := Set{
		PostingFrequency:  0,
		Reputation:        NeutralReputation,
		PreviousSpamRatio: 0,
		Similarity:        SimilarityScore(similarCount),
	}
	if profile == nil {
		return set
	}
	set[PostingFrequency] = PostingFrequencyScore(profile)
	set[Reputation] = ReputationScore(profile)
	set[PreviousSpamRatio] = profile.PreviousSpamRatio()
	return set
}

// PostingFrequencyScore buckets posts per day: >20 is 1.0, >10 is 0.7,
// >5 is 0.4, anything else 0.1.
func PostingFrequencyScore(p *content.BehavioralProfile) float64 {
	if p == nil || p.TotalPosts <= 0 {
		return 0
	}
	days := p.AccountAgeDays
	if days < 1 {
		days = 1
	}
	perDay := float64(p.TotalPosts) / days
	switch {
	case perDay > 20:
		return 1.0
	case perDay > 10:
		return 0.7
	case perDay > 5:
		return 0.4
	default:
		return 0.1
	}
}

// ReputationScore buckets account age (under a day 0.1, a week 0.3, a month
// 0.5, a year 0.8, older 1.0) and averages it with the known quality score.
func ReputationScore(p *content.BehavioralProfile) float64 {
	if p == nil {
		return NeutralReputation
	}
	var age float64
	switch d := p.AccountAgeDays; {
	case d < 1:
		age = 0.1
	case d < 7:
		age = 0.3
	case d < 30:
		age = 0.5
	case d < 365:
		age = 0.8
	default:
		age = 1.0
	}
	if p.QualityScore == nil {
		return age
	}
	return (age + unit(*p.QualityScore)) / 2
}

// SimilarityScore buckets the number of similar items already seen:
// none 0, one 0.3, two to four 0.6, five or more 1.0.
func SimilarityScore(similarCount int) float64 {
	switch {
	case similarCount <= 0:
		return 0
	case similarCount == 1:
		return 0.3
	case similarCount < 5:
		return 0.6
	default:
		return 1.0
	}
}
