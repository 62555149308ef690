// Package trending ranks recent content by engagement, velocity and recency
// for a time window.
package trending

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/contentrank/internal/analytics"
	"github.com/onnwee/contentrank/internal/assemble"
	"github.com/onnwee/contentrank/internal/cache"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/scoring"
	"github.com/onnwee/contentrank/internal/tracing"
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid trending request")

// Limits for the number of returned items.
const (
	DefaultLimit          = 20
	MaxLimit              = 100
	DefaultCandidateLimit = 1000
)

// Options are optional trending features.
type Options struct {
	IncludeRising bool   `json:"include_rising,omitempty"`
	IncludeViral  bool   `json:"include_viral,omitempty"`
	Personalized  bool   `json:"personalized,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Request asks for the trending list of one window.
type Request struct {
	TimeWindow string  `json:"timeWindow"`
	Category   string  `json:"category,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Options    Options `json:"options,omitempty"`
}

// Entry is one ranked item.
type Entry struct {
	content.Item
	TrendingScore  float64            `json:"trending_score"`
	Rank           int                `json:"rank"`
	Direction      decision.Direction `json:"direction"`
	Velocity       float64            `json:"velocity"`
	EngagementRate float64            `json:"engagement_rate"`
	Breakdown      map[string]float64 `json:"breakdown"`
}

// Metadata describes how a response was computed.
type Metadata struct {
	TotalItems       int    `json:"total_items"`
	CalculationTime  int64  `json:"calculation_time"` // milliseconds
	AlgorithmVersion string `json:"algorithm_version"`
	Cached           bool   `json:"cached,omitempty"`
}

// Response is the trending result for a window.
type Response struct {
	Success    bool     `json:"success"`
	TimeWindow string   `json:"timeWindow"`
	Trending   []Entry  `json:"trending"`
	Rising     []Entry  `json:"rising,omitempty"`
	Viral      []Entry  `json:"viral,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

// Config holds the service dependencies.
type Config struct {
	Ranking        *ranking.Store
	Repository     content.Repository
	Cache          *cache.Cache[Response] // optional
	Analytics      *analytics.Logger      // optional
	Logger         *slog.Logger
	CandidateLimit int
}

// Service computes trending lists.
type Service struct {
	ranking        *ranking.Store
	repo           content.Repository
	cache          *cache.Cache[Response]
	analytics      *analytics.Logger
	logger         *slog.Logger
	candidateLimit int
	timeNow        func() time.Time
}

// NewService creates a trending service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	return &Service{
		ranking:        cfg.Ranking,
		repo:           cfg.Repository,
		cache:          cfg.Cache,
		analytics:      cfg.Analytics,
		logger:         cfg.Logger,
		candidateLimit: cfg.CandidateLimit,
		timeNow:        time.Now,
	}
}

// Trending returns the trending list for req. Non-personalized responses are
// served from the cache when fresh.
func (s *Service) Trending(ctx context.Context, req Request) (*Response, error) {
	return s.trending(ctx, req, true)
}

// Refresh recomputes the default list of a window and stores it in the cache.
func (s *Service) Refresh(ctx context.Context, window string) (*Response, error) {
	return s.trending(ctx, Request{TimeWindow: window}, false)
}

func (s *Service) trending(ctx context.Context, req Request, readCache bool) (*Response, error) {
	start := s.timeNow()
	snap := s.ranking.Current()
	policy := decision.NewTrendingPolicy(snap.Weights.Thresholds.Trending)

	window, err := policy.Window(req.TimeWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	personalized := req.Options.Personalized && req.Options.UserID != ""
	key := cacheKey(req, window.Name, limit, snap.Version)
	if !personalized && readCache && s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			cached.Metadata.Cached = true
			return &cached, nil
		}
	}

	var user *content.UserContext
	if personalized {
		user = s.userContext(ctx, req.Options.UserID)
	}

	items, err := s.repo.ListRecent(ctx, content.ListOptions{
		Since:    start.Add(-window.Duration),
		Category: req.Category,
		Limit:    s.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trending candidates: %w", err)
	}

	scored, err := s.score(ctx, scoring.NewEngine(snap), items, user, start)
	if err != nil {
		return nil, err
	}

	trending := make([]assemble.Ranked, 0, len(scored))
	var rising, viral []assemble.Ranked
	for _, r := range scored {
		item := r.Item
		if policy.Qualifies(r.Score, item.ViewCount, window) {
			trending = append(trending, r)
		}
		if req.Options.IncludeRising && policy.IsRising(r.Velocity, item.Age(start), item.ViewCount, window) {
			rising = append(rising, r)
		}
		if req.Options.IncludeViral && policy.IsViral(r.EngagementRate, item.ViewCount, item.ShareCount) {
			viral = append(viral, r)
		}
	}

	assemble.SortByScore(trending)
	trending = trending[:min(len(trending), limit)]
	assemble.AssignRanks(trending, policy)

	resp := &Response{
		Success:    true,
		TimeWindow: window.Name,
		Trending:   entries(trending),
		Metadata: Metadata{
			TotalItems:       len(trending),
			AlgorithmVersion: snap.Version,
		},
	}
	if req.Options.IncludeRising {
		resp.Rising = entries(rankBy(rising, limit, policy, func(r assemble.Ranked) float64 { return r.Velocity }))
	}
	if req.Options.IncludeViral {
		resp.Viral = entries(rankBy(viral, limit, policy, func(r assemble.Ranked) float64 { return r.EngagementRate }))
	}
	elapsed := s.timeNow().Sub(start)
	resp.Metadata.CalculationTime = elapsed.Milliseconds()

	if !personalized && s.cache != nil {
		s.cache.Set(ctx, key, *resp)
	}

	s.analytics.Record(analytics.Event{
		Kind:        analytics.KindTrending,
		ResultCount: len(resp.Trending),
		DurationMS:  elapsed.Milliseconds(),
		Payload: map[string]any{
			"time_window":  window.Name,
			"category":     req.Category,
			"candidates":   len(items),
			"personalized": personalized,
		},
	})

	return resp, nil
}

// score computes every candidate's composite concurrently. Results are
// index-aligned with items so ordering is decided only afterwards.
func (s *Service) score(ctx context.Context, engine *scoring.Engine, items []*content.Item, user *content.UserContext, now time.Time) (out []assemble.Ranked, err error) {
	ctx, end := tracing.StartSpan(ctx, "trending.score")
	defer func() { end(err) }()
	tracing.SetAttributes(ctx, attribute.Int("trending.candidates", len(items)))

	out = make([]assemble.Ranked, len(items))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ts := engine.Trending(content.TrendingCandidate{Item: item, User: user}, now)
			out[i] = assemble.Ranked{
				Item:           item,
				Score:          ts.Score,
				Breakdown:      ts.Breakdown,
				Velocity:       ts.Velocity,
				EngagementRate: ts.EngagementRate,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) userContext(ctx context.Context, userID string) *content.UserContext {
	user, err := s.repo.GetUserContext(ctx, userID)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load user context, continuing without personalization",
				"user_id", userID, "error", err)
		}
		return nil
	}
	return user
}

// rankBy orders a secondary list by key descending, truncates and ranks it.
func rankBy(items []assemble.Ranked, limit int, policy *decision.TrendingPolicy, key func(assemble.Ranked) float64) []assemble.Ranked {
	slices.SortStableFunc(items, func(a, b assemble.Ranked) int {
		if c := cmp.Compare(key(b), key(a)); c != 0 {
			return c
		}
		return strings.Compare(a.Item.ID, b.Item.ID)
	})
	items = items[:min(len(items), limit)]
	assemble.AssignRanks(items, policy)
	return items
}

func entries(ranked []assemble.Ranked) []Entry {
	out := make([]Entry, len(ranked))
	for i, r := range ranked {
		out[i] = Entry{
			Item:           *r.Item,
			TrendingScore:  r.Score,
			Rank:           r.Rank,
			Direction:      r.Direction,
			Velocity:       r.Velocity,
			EngagementRate: r.EngagementRate,
			Breakdown:      r.Breakdown,
		}
	}
	return out
}

func cacheKey(req Request, window string, limit int, version string) string {
	return strings.Join([]string{
		version,
		window,
		strings.ToLower(strings.TrimSpace(req.Category)),
		strconv.Itoa(limit),
		strconv.FormatBool(req.Options.IncludeRising),
		strconv.FormatBool(req.Options.IncludeViral),
	}, "|")
}
