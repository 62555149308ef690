package decision

import (
	"errors"
	"fmt"
	"sort"

	"github.com/onnwee/contentrank/internal/content"
)

// ErrUnknownSort is returned for an unsupported sort order.
var ErrUnknownSort = errors.New("unknown sort order")

// SortBy is the order of search results.
type SortBy string

// Sort orders.
const (
	SortRelevance  SortBy = "relevance"
	SortDate       SortBy = "date"
	SortPopularity SortBy = "popularity"
)

// ParseSort validates a sort order. Empty means relevance.
func ParseSort(s string) (SortBy, error) {
	switch SortBy(s) {
	case "":
		return SortRelevance, nil
	case SortRelevance, SortDate, SortPopularity:
		return SortBy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSort, s)
}

// Scored is an item with its relevance score.
type Scored struct {
	Item  *content.Item
	Score float64
}

// FilterByFloor drops results scoring below floor, keeping order.
func FilterByFloor(results []Scored, floor float64) []Scored {
	kept := make([]Scored, 0, len(results))
	for _, r := range results {
		if r.Score >= floor {
			kept = append(kept, r)
		}
	}
	return kept
}

// Sort orders results in place. Ties always fall back to item ID so the
// order is total and reproducible.
func Sort(results []Scored, by SortBy) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch by {
		case SortDate:
			if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
				return a.Item.CreatedAt.After(b.Item.CreatedAt)
			}
		case SortPopularity:
			if a.Item.ViewCount != b.Item.ViewCount {
				return a.Item.ViewCount > b.Item.ViewCount
			}
			if ae, be := a.Item.LifetimeEngagement(), b.Item.LifetimeEngagement(); ae != be {
				return ae > be
			}
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Item.ID < b.Item.ID
	})
}
