// Package search answers free-text queries with relevance-ranked content.
// Queries are expanded with synonyms, stems and typo corrections before
// candidates are fetched and scored.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/contentrank/internal/analytics"
	"github.com/onnwee/contentrank/internal/assemble"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/query"
	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/scoring"
	"github.com/onnwee/contentrank/internal/tracing"
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid search request")

// Request limits.
const (
	DefaultLimit          = 20
	MaxLimit              = 100
	MaxQueryLength        = 500
	DefaultCandidateLimit = 1000
)

// Options control paging, ordering and query expansion.
type Options struct {
	Page           int    `json:"page,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	SortBy         string `json:"sort_by,omitempty"`
	IncludeSimilar *bool  `json:"include_similar,omitempty"` // expansion; on unless false
	Personalized   bool   `json:"personalized,omitempty"`
}

// Request is a search query.
type Request struct {
	Query       string               `json:"query"`
	Filters     content.Filters      `json:"filters,omitempty"`
	Options     Options              `json:"options,omitempty"`
	UserContext *content.UserContext `json:"user_context,omitempty"`
	RequestID   string               `json:"-"`
}

// Result is one matching item.
type Result struct {
	content.Item
	RelevanceScore float64             `json:"relevance_score"`
	Breakdown      map[string]float64  `json:"breakdown"`
	Highlights     assemble.Highlights `json:"highlights"`
}

// Performance reports where time went, in milliseconds.
type Performance struct {
	SearchTimeMS  int64 `json:"search_time_ms"`
	ScoringTimeMS int64 `json:"scoring_time_ms"`
	TotalTimeMS   int64 `json:"total_time_ms"`
}

// Response is a page of results.
type Response struct {
	Success         bool             `json:"success"`
	Query           string           `json:"query"`
	ExpandedQuery   []string         `json:"expanded_query,omitempty"`
	TotalResults    int              `json:"total_results"`
	Page            int              `json:"page"`
	Limit           int              `json:"limit"`
	Results         []Result         `json:"results"`
	Facets          *assemble.Facets `json:"facets,omitempty"`
	Suggestions     []string         `json:"suggestions,omitempty"`
	RelatedSearches []string         `json:"related_searches,omitempty"`
	Performance     Performance      `json:"performance"`
}

// Config holds the service dependencies.
type Config struct {
	Ranking        *ranking.Store
	Repository     content.Repository
	Analytics      *analytics.Logger // optional
	Logger         *slog.Logger
	CandidateLimit int
}

// Service runs searches.
type Service struct {
	ranking        *ranking.Store
	repo           content.Repository
	analytics      *analytics.Logger
	logger         *slog.Logger
	candidateLimit int
	timeNow        func() time.Time
}

// NewService creates a search service.
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
		analytics:      cfg.Analytics,
		logger:         cfg.Logger,
		candidateLimit: cfg.CandidateLimit,
		timeNow:        time.Now,
	}
}

type params struct {
	query string
	sort  decision.SortBy
	page  int
	limit int
}

func validate(req Request) (params, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return params{}, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return params{}, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, MaxQueryLength)
	}
	by, err := decision.ParseSort(req.Options.SortBy)
	if err != nil {
		return params{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Options.Page < 0 || req.Options.Limit < 0 {
		return params{}, fmt.Errorf("%w: page and limit must not be negative", ErrInvalidRequest)
	}
	f := req.Filters
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return params{}, fmt.Errorf("%w: date_from is after date_to", ErrInvalidRequest)
	}

	p := params{query: q, sort: by, page: max(req.Options.Page, 1), limit: req.Options.Limit}
	if p.limit == 0 {
		p.limit = DefaultLimit
	}
	p.limit = min(p.limit, MaxLimit)
	return p, nil
}

// Search runs req. Validation failures wrap ErrInvalidRequest; store
// failures wrap content.ErrStoreUnavailable.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := s.timeNow()
	p, err := validate(req)
	if err != nil {
		return nil, err
	}

	snap := s.ranking.Current()
	exp := query.Original(p.query)
	if req.Options.IncludeSimilar == nil || *req.Options.IncludeSimilar {
		exp = query.NewExpander(snap.Lexicon).Expand(p.query)
	}

	var user *content.UserContext
	if req.Options.Personalized {
		user = s.userContext(ctx, req.UserContext)
	}

	items, err := s.repo.Search(ctx, content.SearchOptions{
		Variants: exp.Variants,
		Filters:  req.Filters,
		Limit:    s.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search candidates: %w", err)
	}
	fetched := s.timeNow()

	scores, err := s.score(ctx, scoring.NewEngine(snap), items, user, exp, p.query, start)
	if err != nil {
		return nil, err
	}
	scored := s.timeNow()

	results := make([]decision.Scored, len(items))
	for i, item := range items {
		results[i] = decision.Scored{Item: item, Score: scores[item.ID].Score}
	}
	results = decision.FilterByFloor(results, snap.Weights.Thresholds.Search.MinScore)
	decision.Sort(results, p.sort)

	matched := make([]*content.Item, len(results))
	for i, r := range results {
		matched[i] = r.Item
	}
	facets := assemble.BuildFacets(matched, assemble.DefaultFacetSize)

	resp := &Response{
		Success:         true,
		Query:           p.query,
		ExpandedQuery:   exp.Variants,
		TotalResults:    len(results),
		Page:            p.page,
		Limit:           p.limit,
		Results:         []Result{},
		Facets:          &facets,
		Suggestions:     assemble.Suggestions(exp.Normalized, snap.Lexicon.SuggestionPatterns),
		RelatedSearches: assemble.RelatedSearches(matched, exp.Terms),
	}

	from := min((p.page-1)*p.limit, len(results))
	to := min(from+p.limit, len(results))
	for _, r := range results[from:to] {
		resp.Results = append(resp.Results, Result{
			Item:           *r.Item,
			RelevanceScore: r.Score,
			Breakdown:      scores[r.Item.ID].Breakdown,
			Highlights:     assemble.Highlight(r.Item, exp.Variants, assemble.DefaultHighlightWindow),
		})
	}

	end := s.timeNow()
	resp.Performance = Performance{
		SearchTimeMS:  fetched.Sub(start).Milliseconds(),
		ScoringTimeMS: scored.Sub(fetched).Milliseconds(),
		TotalTimeMS:   end.Sub(start).Milliseconds(),
	}

	s.analytics.Record(analytics.Event{
		Kind:        analytics.KindSearch,
		RequestID:   req.RequestID,
		Query:       p.query,
		ResultCount: resp.TotalResults,
		DurationMS:  resp.Performance.TotalTimeMS,
		Payload: map[string]any{
			"sort_by":    string(p.sort),
			"page":       p.page,
			"variants":   len(exp.Variants),
			"candidates": len(items),
		},
	})

	return resp, nil
}

// score computes every candidate's relevance concurrently, keyed by item ID.
func (s *Service) score(ctx context.Context, engine *scoring.Engine, items []*content.Item, user *content.UserContext,
	exp query.Expansion, q string, now time.Time) (out map[string]scoring.SearchScore, err error) {
	ctx, end := tracing.StartSpan(ctx, "search.score")
	defer func() { end(err) }()
	tracing.SetAttributes(ctx,
		attribute.Int("search.candidates", len(items)),
		attribute.Int("search.variants", len(exp.Variants)))

	scores := make([]scoring.SearchScore, len(items))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores[i] = engine.Search(content.SearchCandidate{Item: item, User: user, Query: q}, exp, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out = make(map[string]scoring.SearchScore, len(items))
	for i, item := range items {
		out[item.ID] = scores[i]
	}
	return out, nil
}

// userContext returns the request's user context, loading the stored one
// when only an ID was given.
func (s *Service) userContext(ctx context.Context, uc *content.UserContext) *content.UserContext {
	if uc == nil {
		return nil
	}
	if uc.UserID == "" || len(uc.Preferences) > 0 || len(uc.History) > 0 {
		return uc
	}
	stored, err := s.repo.GetUserContext(ctx, uc.UserID)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load user context, continuing without personalization",
				"user_id", uc.UserID, "error", err)
		}
		return uc
	}
	return stored
}
