package content

import "strings"

// Candidate is implemented by every scoring-family input. Each family carries
// its own context next to the shared base item.
type Candidate interface {
	Base() *Item
}

// TrendingCandidate is an item considered for a trending list.
type TrendingCandidate struct {
	Item *Item
	User *UserContext
}

// Base returns the underlying item.
func (c TrendingCandidate) Base() *Item { return c.Item }

// SearchCandidate is an item matched by a search query.
type SearchCandidate struct {
	Item  *Item
	User  *UserContext
	Query string
}

// Base returns the underlying item.
func (c SearchCandidate) Base() *Item { return c.Item }

// SpamCandidate is a submission under spam/quality review.
type SpamCandidate struct {
	Item         *Item
	Profile      *BehavioralProfile
	SimilarCount int
}

// Base returns the underlying item.
func (c SpamCandidate) Base() *Item { return c.Item }

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
