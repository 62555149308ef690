// Package decision maps composite scores to discrete outcomes: trending
// qualification and classification, search filtering and ordering, and the
// spam moderation decision with its reasons.
package decision

import (
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/contentrank/internal/ranking"
)

// ErrUnknownWindow is returned for a trending time window that is not
// realtime, daily, weekly or monthly.
var ErrUnknownWindow = errors.New("unknown time window")

// Direction is the short-term trend of an item.
type Direction string

// Trend directions.
const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Window is a trending time window with its qualification threshold.
type Window struct {
	Name     string
	Duration time.Duration
	MinViews int64
}

var windowDurations = map[string]time.Duration{
	ranking.WindowRealtime: time.Hour,
	ranking.WindowDaily:    24 * time.Hour,
	ranking.WindowWeekly:   7 * 24 * time.Hour,
	ranking.WindowMonthly:  30 * 24 * time.Hour,
}

var defaultMinViews = map[string]int64{
	ranking.WindowRealtime: 5,
	ranking.WindowDaily:    10,
	ranking.WindowWeekly:   50,
	ranking.WindowMonthly:  100,
}

// WindowNames lists the accepted windows from shortest to longest.
var WindowNames = []string{
	ranking.WindowRealtime,
	ranking.WindowDaily,
	ranking.WindowWeekly,
	ranking.WindowMonthly,
}

// TrendingPolicy applies the trending thresholds.
type TrendingPolicy struct {
	th ranking.TrendingThresholds
}

// NewTrendingPolicy creates a policy with the given thresholds.
func NewTrendingPolicy(th ranking.TrendingThresholds) *TrendingPolicy {
	return &TrendingPolicy{th: th}
}

// Window resolves a window name. The minimum view count comes from the
// thresholds, falling back to the built-in value for that window.
func (p *TrendingPolicy) Window(name string) (Window, error) {
	d, ok := windowDurations[name]
	if !ok {
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
	}
	minViews, ok := p.th.MinViews[name]
	if !ok {
		minViews = defaultMinViews[name]
	}
	return Window{Name: name, Duration: d, MinViews: minViews}, nil
}

// Qualifies reports whether an item makes the trending list.
func (p *TrendingPolicy) Qualifies(score float64, views int64, w Window) bool {
	return score >= p.th.MinScore && views >= w.MinViews
}

// IsRising reports a fast-growing item that is still inside the window.
func (p *TrendingPolicy) IsRising(velocity float64, age time.Duration, views int64, w Window) bool {
	return velocity >= p.th.RisingVelocity && age <= w.Duration && views >= w.MinViews
}

// IsViral reports an item with a high engagement rate at scale.
func (p *TrendingPolicy) IsViral(engagementRate float64, views, shares int64) bool {
	return engagementRate >= p.th.ViralEngagementRate &&
		views >= p.th.ViralMinViews &&
		shares >= p.th.ViralMinShares
}

// Direction classifies velocity against the up and down thresholds.
func (p *TrendingPolicy) Direction(velocity float64) Direction {
	switch {
	case velocity >= p.th.DirectionUp:
		return DirectionUp
	case velocity <= p.th.DirectionDown:
		return DirectionDown
	default:
		return DirectionStable
	}
}
