package scoring

import (
	"time"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/signals"
)

// Trending component names.
const (
	ComponentViews           = "views"
	ComponentEngagement      = "engagement"
	ComponentVelocity        = "velocity"
	ComponentRecency         = "recency"
	ComponentPersonalization = "personalization"
)

// TrendingScore is the trending composite of one item.
type TrendingScore struct {
	Result
	Signals        signals.Set
	EngagementRate float64 // uncapped (likes+comments+shares)/views
	Velocity       float64
}

// Trending scores a trending candidate at now. The user context, when
// present, adds the personalization component.
func (e *Engine) Trending(c content.TrendingCandidate, now time.Time) TrendingScore {
	item := c.Item
	w := e.weights.Trending
	ex := e.extractor

	set := ex.Engagement(item)
	set[signals.Recency] = ex.Recency(item.CreatedAt, now)
	set[signals.Velocity] = ex.Velocity(item)
	set[signals.Personalization] = signals.PersonalizationScore(item, c.User)

	mix := w.EngagementMix
	engagement := mix.Likes*set[signals.Likes] +
		mix.Comments*set[signals.Comments] +
		mix.Shares*set[signals.Shares] +
		mix.Saves*set[signals.Saves]

	var engagementBoost, velocityBoost float64
	if item.IsVerified {
		engagementBoost = w.VerifiedBoost
	}
	if item.IsTrending {
		velocityBoost = w.TrendingBoost
	}

	res := Compute([]Component{
		{Name: ComponentViews, Raw: set[signals.Views]},
		{Name: ComponentEngagement, Raw: engagement, Boost: engagementBoost},
		{Name: ComponentVelocity, Raw: set[signals.Velocity], Boost: velocityBoost},
		{Name: ComponentRecency, Raw: set[signals.Recency]},
		{Name: ComponentPersonalization, Raw: set[signals.Personalization]},
	}, map[string]float64{
		ComponentViews:           w.Views,
		ComponentEngagement:      w.Engagement,
		ComponentVelocity:        w.Velocity,
		ComponentRecency:         w.Recency,
		ComponentPersonalization: w.Personalization,
	})

	return TrendingScore{
		Result:         res,
		Signals:        set,
		EngagementRate: signals.RawEngagementRate(item),
		Velocity:       set[signals.Velocity],
	}
}
