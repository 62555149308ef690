package assemble

import (
	"sort"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/decision"
)

// Ranked is a scored trending item.
type Ranked struct {
	Item           *content.Item
	Score          float64
	Breakdown      map[string]float64
	Velocity       float64
	EngagementRate float64
	Rank           int
	Direction      decision.Direction
}

// SortByScore orders items by score descending. Ties fall back to newer
// items first, then ID.
func SortByScore(items []Ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.After(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}

// AssignRanks numbers items 1..N in their current order and attaches the
// trend direction. Call it after the final sort.
func AssignRanks(items []Ranked, policy *decision.TrendingPolicy) {
	for i := range items {
		items[i].Rank = i + 1
		items[i].Direction = policy.Direction(items[i].Velocity)
	}
}
