package ranking

// EngagementMix weights the individual counters inside the trending
// engagement sub-score.
type EngagementMix struct {
	Likes    float64 `json:"likes"`
	Comments float64 `json:"comments"`
	Shares   float64 `json:"shares"`
	Saves    float64 `json:"saves"`
}

// TrendingWeights defines the composite weights and boosts for trending.
type TrendingWeights struct {
	Views           float64       `json:"views"`            // default: 0.2
	Engagement      float64       `json:"engagement"`       // default: 0.3
	Velocity        float64       `json:"velocity"`         // default: 0.25
	Recency         float64       `json:"recency"`          // default: 0.2
	Personalization float64       `json:"personalization"`  // default: 0.05
	EngagementMix   EngagementMix `json:"engagement_mix"`   // default: 0.3/0.3/0.25/0.15
	TrendingBoost   float64       `json:"trending_boost"`   // velocity multiplier for is_trending (default: 1.2)
	VerifiedBoost   float64       `json:"verified_boost"`   // engagement multiplier for is_verified (default: 1.1)
}

// SearchWeights defines the composite weights and boosts for search relevance.
type SearchWeights struct {
	Title            float64 `json:"title"`              // default: 0.35
	Content          float64 `json:"content"`            // default: 0.25
	Tags             float64 `json:"tags"`               // default: 0.15
	Popularity       float64 `json:"popularity"`         // default: 0.1
	Recency          float64 `json:"recency"`            // default: 0.1
	Personalization  float64 `json:"personalization"`    // default: 0.05
	ExactMatchBoost  float64 `json:"exact_match_boost"`  // default: 1.5
	PhraseMatchBoost float64 `json:"phrase_match_boost"` // default: 1.2
	PopularityBoost  float64 `json:"popularity_boost"`   // trending or verified items (default: 1.1)
}

// SpamWeights defines the penalty weights of the spam composite.
// They sum above 1 on purpose: any two strong signals should be enough to
// cross the reject threshold.
type SpamWeights struct {
	Keywords    float64 `json:"keywords"`    // default: 0.45
	Links       float64 `json:"links"`       // default: 0.2
	Caps        float64 `json:"caps"`        // default: 0.2
	Punctuation float64 `json:"punctuation"` // default: 0.15
	Behavior    float64 `json:"behavior"`    // default: 0.25
	Similarity  float64 `json:"similarity"`  // default: 0.3
}

// QualityWeights defines the weights of the quality composite.
type QualityWeights struct {
	Keywords    float64 `json:"keywords"`    // default: 0.25
	Readability float64 `json:"readability"` // default: 0.2
	Length      float64 `json:"length"`      // default: 0.2
	Structure   float64 `json:"structure"`   // default: 0.1
	Engagement  float64 `json:"engagement"`  // default: 0.15
	Reputation  float64 `json:"reputation"`  // default: 0.1
}

// RecencyDecay holds the per-regime decay bases of the recency signal.
type RecencyDecay struct {
	Hourly float64 `json:"hourly"` // per hour, age < 24h (default: 0.98)
	Daily  float64 `json:"daily"`  // per day, age < 7d (default: 0.85)
	Weekly float64 `json:"weekly"` // per week beyond (default: 0.70)
}

// EngagementScales are the counts at which each engagement signal saturates.
type EngagementScales struct {
	Views    float64 `json:"views"`
	Likes    float64 `json:"likes"`
	Comments float64 `json:"comments"`
	Shares   float64 `json:"shares"`
	Saves    float64 `json:"saves"`
}

// SignalConfig tunes signal extraction.
type SignalConfig struct {
	Recency             RecencyDecay     `json:"recency"`
	VelocitySensitivity float64          `json:"velocity_sensitivity"` // default: 2
	Scales              EngagementScales `json:"scales"`
}

// TrendingThresholds configures trending qualification and classification.
type TrendingThresholds struct {
	MinScore            float64          `json:"min_score"`             // default: 0.1
	MinViews            map[string]int64 `json:"min_views"`             // per time window
	RisingVelocity      float64          `json:"rising_velocity"`       // default: 0.5
	ViralEngagementRate float64          `json:"viral_engagement_rate"` // default: 0.1
	ViralMinViews       int64            `json:"viral_min_views"`       // default: 1000
	ViralMinShares      int64            `json:"viral_min_shares"`      // default: 50
	DirectionUp         float64          `json:"direction_up"`          // velocity >= is "up" (default: 0.6)
	DirectionDown       float64          `json:"direction_down"`        // velocity <= is "down" (default: 0.2)
}

// SearchThresholds configures search result filtering.
type SearchThresholds struct {
	MinScore float64 `json:"min_score"` // default: 0.1
}

// SpamThresholds configures the spam decision rules.
type SpamThresholds struct {
	Reject               float64 `json:"reject"`                // spam score (default: 0.7)
	Review               float64 `json:"review"`                // spam score (default: 0.4)
	Toxicity             float64 `json:"toxicity"`              // default: 0.7
	LowQuality           float64 `json:"low_quality"`           // default: 0.3
	AIGenerated          float64 `json:"ai_generated"`          // default: 0.8
	QuarantineReputation float64 `json:"quarantine_reputation"` // default: 0.15
	StrictDelta          float64 `json:"strict_delta"`          // lowers every threshold in strict mode (default: 0.1)
}

// Thresholds groups all decision thresholds.
type Thresholds struct {
	Trending TrendingThresholds `json:"trending"`
	Search   SearchThresholds   `json:"search"`
	Spam     SpamThresholds     `json:"spam"`
}

// BlendConfig controls how enrichment scores mix into heuristic composites.
type BlendConfig struct {
	HeuristicRatio float64 `json:"heuristic_ratio"` // default: 0.7 (AI gets the rest)
}

// Weights holds every tunable number of the engines.
type Weights struct {
	Trending   TrendingWeights `json:"trending"`
	Search     SearchWeights   `json:"search"`
	Spam       SpamWeights     `json:"spam"`
	Quality    QualityWeights  `json:"quality"`
	Signals    SignalConfig    `json:"signals"`
	Thresholds Thresholds      `json:"thresholds"`
	Blend      BlendConfig     `json:"blend"`
}

// Time window names accepted by trending.
const (
	WindowRealtime = "realtime"
	WindowDaily    = "daily"
	WindowWeekly   = "weekly"
	WindowMonthly  = "monthly"
)

// DefaultWeights returns the default weight configuration.
//
// Trending formula: composite = views*0.2 + engagement*0.3 + velocity*0.25 + recency*0.2 + personalization*0.05
//   - engagement = likes*0.3 + comments*0.3 + shares*0.25 + saves*0.15
//   - is_trending multiplies velocity by 1.2, is_verified multiplies engagement by 1.1
//
// Search formula: composite = title*0.35 + content*0.25 + tags*0.15 + popularity*0.1 + recency*0.1 + personalization*0.05
//   - exact title match is boosted 1.5x, phrase match 1.2x, before clamping
//
// Spam and quality are separate composites; spam weights are penalties.
func DefaultWeights() *Weights {
	return &Weights{
		Trending: TrendingWeights{
			Views:           0.2,
			Engagement:      0.3,
			Velocity:        0.25,
			Recency:         0.2,
			Personalization: 0.05,
			EngagementMix: EngagementMix{
				Likes:    0.3,
				Comments: 0.3,
				Shares:   0.25,
				Saves:    0.15,
			},
			TrendingBoost: 1.2,
			VerifiedBoost: 1.1,
		},
		Search: SearchWeights{
			Title:            0.35,
			Content:          0.25,
			Tags:             0.15,
			Popularity:       0.1,
			Recency:          0.1,
			Personalization:  0.05,
			ExactMatchBoost:  1.5,
			PhraseMatchBoost: 1.2,
			PopularityBoost:  1.1,
		},
		Spam: SpamWeights{
			Keywords:    0.45,
			Links:       0.2,
			Caps:        0.2,
			Punctuation: 0.15,
			Behavior:    0.25,
			Similarity:  0.3,
		},
		Quality: QualityWeights{
			Keywords:    0.25,
			Readability: 0.2,
			Length:      0.2,
			Structure:   0.1,
			Engagement:  0.15,
			Reputation:  0.1,
		},
		Signals: SignalConfig{
			Recency:             RecencyDecay{Hourly: 0.98, Daily: 0.85, Weekly: 0.70},
			VelocitySensitivity: 2,
			Scales: EngagementScales{
				Views:    10000,
				Likes:    1000,
				Comments: 500,
				Shares:   200,
				Saves:    200,
			},
		},
		Thresholds: Thresholds{
			Trending: TrendingThresholds{
				MinScore: 0.1,
				MinViews: map[string]int64{
					WindowRealtime: 5,
					WindowDaily:    10,
					WindowWeekly:   50,
					WindowMonthly:  100,
				},
				RisingVelocity:      0.5,
				ViralEngagementRate: 0.1,
				ViralMinViews:       1000,
				ViralMinShares:      50,
				DirectionUp:         0.6,
				DirectionDown:       0.2,
			},
			Search: SearchThresholds{MinScore: 0.1},
			Spam: SpamThresholds{
				Reject:               0.7,
				Review:               0.4,
				Toxicity:             0.7,
				LowQuality:           0.3,
				AIGenerated:          0.8,
				QuarantineReputation: 0.15,
				StrictDelta:          0.1,
			},
		},
		Blend: BlendConfig{HeuristicRatio: 0.7},
	}
}

// Clone returns a deep copy.
func (w *Weights) Clone() *Weights {
	cp := *w
	if w.Thresholds.Trending.MinViews != nil {
		cp.Thresholds.Trending.MinViews = make(map[string]int64, len(w.Thresholds.Trending.MinViews))
		for k, v := range w.Thresholds.Trending.MinViews {
			cp.Thresholds.Trending.MinViews[k] = v
		}
	}
	return &cp
}
