package content

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Common errors for content store operations.
var (
	// ErrNotFound is returned when a user or author has no stored record.
	ErrNotFound = errors.New("content: not found")
	// ErrStoreUnavailable wraps every failure of the backing store. There is no
	// meaningful fallback for missing candidate data, so callers surface it.
	ErrStoreUnavailable = errors.New("content: store unavailable")
)

// DefaultListLimit bounds candidate fetches when no limit is given.
const DefaultListLimit = 500

// ListOptions selects recent candidates for trending.
type ListOptions struct {
	Since    time.Time // only items created at or after Since
	Category string    // optional; matches Type or any tag
	Limit    int
}

// Filters narrows search candidates.
type Filters struct {
	Tags     []string   `json:"tags,omitempty"`
	Types    []string   `json:"types,omitempty"`
	Sources  []string   `json:"sources,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	MinViews int64      `json:"min_views,omitempty"`
}

// SearchOptions selects search candidates matching any of the query variants.
type SearchOptions struct {
	Variants []string
	Filters  Filters
	Limit    int
}

// Repository is the content store collaborator.
type Repository interface {
	// ListRecent returns items created since opts.Since, newest first.
	ListRecent(ctx context.Context, opts ListOptions) ([]*Item, error)

	// Search returns items whose title, body or tags contain any variant.
	Search(ctx context.Context, opts SearchOptions) ([]*Item, error)

	// GetUserContext returns stored personalization data for a user.
	// Returns ErrNotFound if the user is unknown.
	GetUserContext(ctx context.Context, userID string) (*UserContext, error)

	// GetAuthorProfile returns the behavioral profile of an author.
	// Returns ErrNotFound if the author is unknown.
	GetAuthorProfile(ctx context.Context, authorID string) (*BehavioralProfile, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex. Returned items are copies.
type InMemoryRepository struct {
	mu       sync.RWMutex
	items    map[string]*Item
	users    map[string]*UserContext
	profiles map[string]*BehavioralProfile
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items:    make(map[string]*Item),
		users:    make(map[string]*UserContext),
		profiles: make(map[string]*BehavioralProfile),
	}
}

// Put stores or replaces an item.
func (r *InMemoryRepository) Put(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := copyItem(item)
	r.items[item.ID] = cp
}

// PutUserContext stores personalization data for a user.
func (r *InMemoryRepository) PutUserContext(u *UserContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.UserID] = &cp
}

// PutAuthorProfile stores an author's behavioral profile.
func (r *InMemoryRepository) PutAuthorProfile(authorID string, p *BehavioralProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.profiles[authorID] = &cp
}

// ListRecent implements Repository.
func (r *InMemoryRepository) ListRecent(ctx context.Context, opts ListOptions) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	category := normalizeTag(opts.Category)
	var out []*Item
	for _, item := range r.items {
		if item.CreatedAt.Before(opts.Since) {
			continue
		}
		if category != "" && !matchesCategory(item, category) {
			continue
		}
		out = append(out, copyItem(item))
	}
	sortNewestFirst(out)
	return truncate(out, opts.Limit), nil
}

// Search implements Repository.
func (r *InMemoryRepository) Search(ctx context.Context, opts SearchOptions) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	variants := make([]string, 0, len(opts.Variants))
	for _, v := range opts.Variants {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			variants = append(variants, v)
		}
	}

	var out []*Item
	for _, item := range r.items {
		if !MatchesFilters(item, opts.Filters) {
			continue
		}
		if !matchesAnyVariant(item, variants) {
			continue
		}
		out = append(out, copyItem(item))
	}
	sortNewestFirst(out)
	return truncate(out, opts.Limit), nil
}

// GetUserContext implements Repository.
func (r *InMemoryRepository) GetUserContext(ctx context.Context, userID string) (*UserContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetAuthorProfile implements Repository.
func (r *InMemoryRepository) GetAuthorProfile(ctx context.Context, authorID string) (*BehavioralProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[authorID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// MatchesFilters reports whether item passes every set filter.
func MatchesFilters(item *Item, f Filters) bool {
	if len(f.Types) > 0 && !containsFold(f.Types, item.Type) {
		return false
	}
	if len(f.Sources) > 0 && !containsFold(f.Sources, item.Source) {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, t := range item.Tags {
			if containsFold(f.Tags, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && item.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && item.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.MinViews > 0 && item.ViewCount < f.MinViews {
		return false
	}
	return true
}

func matchesCategory(item *Item, category string) bool {
	if normalizeTag(item.Type) == category {
		return true
	}
	for _, t := range item.Tags {
		if normalizeTag(t) == category {
			return true
		}
	}
	return false
}

func matchesAnyVariant(item *Item, variants []string) bool {
	if len(variants) == 0 {
		return true
	}
	title := strings.ToLower(item.Title)
	body := strings.ToLower(item.Body)
	for _, v := range variants {
		if strings.Contains(title, v) || strings.Contains(body, v) {
			return true
		}
		for _, t := range item.Tags {
			if strings.Contains(strings.ToLower(t), v) {
				return true
			}
		}
	}
	return false
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func copyItem(item *Item) *Item {
	cp := *item
	if item.Tags != nil {
		cp.Tags = append([]string(nil), item.Tags...)
	}
	return &cp
}

// sortNewestFirst orders by created_at DESC with id ASC as tie-breaker.
func sortNewestFirst(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func truncate(items []*Item, limit int) []*Item {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
