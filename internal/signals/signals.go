// Package signals turns content, author history and user context into
// normalized numeric signals in [0,1]. Everything here is pure: no I/O, and
// time enters only through an explicit now.
package signals

import (
	"math"
	"time"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/ranking"
)

// Signal names.
const (
	KeywordDensity     = "keyword_density"
	QualityDensity     = "quality_density"
	ToxicDensity       = "toxic_density"
	LinkDensity        = "link_density"
	CapsRatio          = "caps_ratio"
	PunctuationRatio   = "punctuation_ratio"
	AvgWordLength      = "avg_word_length"
	SentenceComplexity = "sentence_complexity"

	Views          = "views"
	Likes          = "likes"
	Comments       = "comments"
	Shares         = "shares"
	Saves          = "saves"
	EngagementRate = "engagement_rate"
	Recency        = "recency_score"
	Velocity       = "velocity"

	PostingFrequency  = "posting_frequency"
	Reputation        = "reputation"
	PreviousSpamRatio = "previous_spam_ratio"
	Similarity        = "similarity"

	Personalization = "personalization"
)

// recencyFloor keeps the recency signal strictly positive.
const recencyFloor = 1e-6

// Set maps signal names to values in [0,1]. A Set is built fresh per call.
type Set map[string]float64

// Merge copies every signal of other into s.
func (s Set) Merge(other Set) Set {
	for k, v := range other {
		s[k] = v
	}
	return s
}

// Extractor computes signals using one configuration snapshot.
type Extractor struct {
	lex *ranking.Lexicon
	cfg ranking.SignalConfig
}

// New creates an extractor. A nil lexicon uses the defaults.
func New(lex *ranking.Lexicon, cfg ranking.SignalConfig) *Extractor {
	if lex == nil {
		lex = ranking.DefaultLexicon()
	}
	return &Extractor{lex: lex, cfg: cfg}
}

// FromSnapshot creates an extractor from a published configuration.
func FromSnapshot(snap *ranking.Snapshot) *Extractor {
	return New(snap.Lexicon, snap.Weights.Signals)
}

// Extract computes the text, engagement, recency and velocity signals of an
// item at now.
func (e *Extractor) Extract(item *content.Item, now time.Time) (Set, TextStats) {
	set, stats := e.Text(item.Title, item.Body)
	set.Merge(e.Engagement(item))
	set[Recency] = e.Recency(item.CreatedAt, now)
	set[Velocity] = e.Velocity(item)
	return set, stats
}

// Engagement normalizes each counter with a log curve that saturates at the
// configured scale, and adds the engagement rate.
func (e *Extractor) Engagement(item *content.Item) Set {
	sc := e.cfg.Scales
	return Set{
		Views:          LogNormalize(float64(item.ViewCount), sc.Views),
		Likes:          LogNormalize(float64(item.LikeCount), sc.Likes),
		Comments:       LogNormalize(float64(item.CommentCount), sc.Comments),
		Shares:         LogNormalize(float64(item.ShareCount), sc.Shares),
		Saves:          LogNormalize(float64(item.SaveCount), sc.Saves),
		EngagementRate: math.Min(1, RawEngagementRate(item)),
	}
}

// LogNormalize maps count onto [0,1] as log10(1+count)/log10(1+scale),
// capped at 1. Non-positive counts or scales yield 0.
func LogNormalize(count, scale float64) float64 {
	if count <= 0 || scale <= 0 || math.IsNaN(count) {
		return 0
	}
	return math.Min(1, math.Log10(1+count)/math.Log10(1+scale))
}

// RawEngagementRate returns (likes+comments+shares)/views, or 0 with no views.
// The result is not capped.
func RawEngagementRate(item *content.Item) float64 {
	if item.ViewCount <= 0 {
		return 0
	}
	eng := item.LifetimeEngagement()
	if eng <= 0 {
		return 0
	}
	return float64(eng) / float64(item.ViewCount)
}

// Recency returns a value in (0,1] that decays with age in three regimes:
// per hour below 24h, per day below 7d, per week beyond. Each regime starts
// where the previous one ended, so the curve is continuous but its slope
// changes at 24h and 7d. Timestamps in the future score 1.
func (e *Extractor) Recency(createdAt, now time.Time) float64 {
	return RecencyScore(now.Sub(createdAt), e.cfg.Recency)
}

// RecencyScore is Recency for a precomputed age.
func RecencyScore(age time.Duration, d ranking.RecencyDecay) float64 {
	if age <= 0 {
		return 1
	}
	hours := age.Hours()

	var score float64
	switch {
	case hours < 24:
		score = math.Pow(d.Hourly, hours)
	case hours < 24*7:
		days := hours / 24
		score = math.Pow(d.Hourly, 24) * math.Pow(d.Daily, days-1)
	default:
		weeks := hours / (24 * 7)
		score = math.Pow(d.Hourly, 24) * math.Pow(d.Daily, 6) * math.Pow(d.Weekly, weeks-1)
	}

	if math.IsNaN(score) || score < recencyFloor {
		return recencyFloor
	}
	if score > 1 {
		return 1
	}
	return score
}

// Velocity returns recent engagement over lifetime engagement scaled by the
// configured sensitivity and capped at 1. Zero lifetime engagement yields 0.
func (e *Extractor) Velocity(item *content.Item) float64 {
	lifetime := item.LifetimeEngagement()
	recent := item.RecentEngagement()
	if lifetime <= 0 || recent <= 0 {
		return 0
	}
	sensitivity := e.cfg.VelocitySensitivity
	if sensitivity <= 0 {
		sensitivity = 1
	}
	return math.Min(1, float64(recent)/float64(lifetime)*sensitivity)
}

// PersonalizationScore returns the share of the item's tags the user is
// interested in, plus a small bonus for sources the user already follows.
// A nil user contributes 0.
func PersonalizationScore(item *content.Item, user *content.UserContext) float64 {
	if user == nil {
		return 0
	}
	var score float64
	interests := user.InterestTags()
	if len(interests) > 0 && len(item.Tags) > 0 {
		matched := 0
		for _, t := range item.Tags {
			if _, ok := interests[normalize(t)]; ok {
				matched++
			}
		}
		score = float64(matched) / float64(len(item.Tags))
	}
	if item.Source != "" {
		if _, ok := user.InteractedSources()[item.Source]; ok {
			score += 0.2
		}
	}
	return math.Min(1, score)
}
