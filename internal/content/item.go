// Package content provides the content model evaluated by the scoring engines
// and the repositories that supply candidate items, user context and author
// history.
package content

import (
	"time"
)

// Item is a read-only snapshot of a piece of content being scored.
// The engines never mutate an Item; hiding or labelling content is a side
// effect performed by callers acting on a decision.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Type      string    `json:"type,omitempty"`   // e.g. "article", "post", "video"
	Source    string    `json:"source,omitempty"` // originating feed or community
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Lifetime engagement counters
	ViewCount    int64 `json:"view_count"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	ShareCount   int64 `json:"share_count"`
	SaveCount    int64 `json:"save_count"`

	// Engagement within the recent window, used for velocity
	RecentLikes    int64 `json:"recent_likes,omitempty"`
	RecentComments int64 `json:"recent_comments,omitempty"`
	RecentShares   int64 `json:"recent_shares,omitempty"`

	IsTrending bool `json:"is_trending,omitempty"`
	IsVerified bool `json:"is_verified,omitempty"`
}

// LifetimeEngagement returns likes + comments + shares over the item's life.
func (i *Item) LifetimeEngagement() int64 {
	return i.LikeCount + i.CommentCount + i.ShareCount
}

// RecentEngagement returns likes + comments + shares in the recent window.
func (i *Item) RecentEngagement() int64 {
	return i.RecentLikes + i.RecentComments + i.RecentShares
}

// Age returns how old the item is at now. Items dated in the future have age 0.
func (i *Item) Age(now time.Time) time.Duration {
	age := now.Sub(i.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Interaction is one entry of a user's interaction history.
type Interaction struct {
	ContentID string   `json:"content_id,omitempty"`
	Source    string   `json:"source,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// UserContext carries optional personalization inputs.
// A nil *UserContext is valid everywhere and contributes nothing.
type UserContext struct {
	UserID      string        `json:"user_id,omitempty"`
	Preferences []string      `json:"preferences,omitempty"`
	History     []Interaction `json:"history,omitempty"`
	Language    string        `json:"language,omitempty"`
	Geography   string        `json:"geography,omitempty"`
}

// InterestTags returns the lower-cased union of preference tags and tags seen
// in the interaction history.
func (u *UserContext) InterestTags() map[string]struct{} {
	if u == nil {
		return nil
	}
	tags := make(map[string]struct{}, len(u.Preferences))
	for _, p := range u.Preferences {
		tags[normalizeTag(p)] = struct{}{}
	}
	for _, h := range u.History {
		for _, t := range h.Tags {
			tags[normalizeTag(t)] = struct{}{}
		}
	}
	return tags
}

// InteractedSources returns the set of sources the user has interacted with.
func (u *UserContext) InteractedSources() map[string]struct{} {
	if u == nil {
		return nil
	}
	sources := make(map[string]struct{}, len(u.History))
	for _, h := range u.History {
		if h.Source != "" {
			sources[h.Source] = struct{}{}
		}
	}
	return sources
}

// BehavioralProfile is an author's posting history, used by spam evaluation.
type BehavioralProfile struct {
	TotalPosts     int64    `json:"total_posts"`
	SpamCount      int64    `json:"spam_count"`
	QualityScore   *float64 `json:"quality_score,omitempty"` // [0,1] when known
	AccountAgeDays float64  `json:"account_age_days"`
}

// PreviousSpamRatio returns SpamCount/TotalPosts, or 0 when the author has no posts.
func (p *BehavioralProfile) PreviousSpamRatio() float64 {
	if p == nil || p.TotalPosts <= 0 {
		return 0
	}
	ratio := float64(p.SpamCount) / float64(p.TotalPosts)
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}
