// Package spam evaluates submissions for spam, quality and toxicity and
// recommends a moderation action.
package spam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/contentrank/internal/analytics"
	"github.com/onnwee/contentrank/internal/assemble"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/enrich"
	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/scoring"
	"github.com/onnwee/contentrank/internal/signals"
	"github.com/onnwee/contentrank/internal/tracing"
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid spam check request")

// Limits.
const (
	MaxBatchSize  = 50
	MaxBodyLength = 100_000
)

// unavailableMessage is the reason given with the conservative default.
const unavailableMessage = "automated check unavailable, queued for manual review"

// Content is the submission under review.
type Content struct {
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body"`
	URL      string         `json:"url,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	AuthorID string         `json:"author_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Context is what the caller knows about the submission's origin.
type Context struct {
	UserHistory    *content.BehavioralProfile `json:"user_history,omitempty"`
	SimilarContent []string                   `json:"similar_content,omitempty"`
	IPAddress      string                     `json:"ip_address,omitempty"`
	UserAgent      string                     `json:"user_agent,omitempty"`
}

// Options select the optional checks.
type Options struct {
	CheckAIGenerated bool `json:"check_ai_generated,omitempty"`
	CheckPlagiarism  bool `json:"check_plagiarism,omitempty"`
	CheckToxicity    bool `json:"check_toxicity,omitempty"`
	StrictMode       bool `json:"strict_mode,omitempty"`
}

// Request is one spam check.
type Request struct {
	Content   Content `json:"content"`
	Context   Context `json:"context,omitempty"`
	Options   Options `json:"options,omitempty"`
	RequestID string  `json:"-"`
}

// Scores are the final composites, after blending with enrichment.
type Scores struct {
	Spam        float64 `json:"spam"`
	Quality     float64 `json:"quality"`
	Toxicity    float64 `json:"toxicity"`
	AIGenerated float64 `json:"ai_generated"`
}

// Breakdown holds the heuristic sub-scores of each composite.
type Breakdown struct {
	Spam    map[string]float64 `json:"spam"`
	Quality map[string]float64 `json:"quality"`
}

// Performance reports timings in milliseconds.
type Performance struct {
	AnalysisTimeMS   int64 `json:"analysis_time_ms"`
	EnrichmentTimeMS int64 `json:"enrichment_time_ms"`
	TotalTimeMS      int64 `json:"total_time_ms"`
}

// Response is the result of one spam check.
type Response struct {
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
	IsSpam          bool                    `json:"is_spam"`
	IsLowQuality    bool                    `json:"is_low_quality"`
	ShouldReview    bool                    `json:"should_review"`
	Scores          Scores                  `json:"scores"`
	Signals         map[string]float64      `json:"signals"`
	Breakdown       *Breakdown              `json:"breakdown,omitempty"`
	Recommendations assemble.Recommendation `json:"recommendations"`
	Enriched        bool                    `json:"enriched"`
	Categories      []string                `json:"categories,omitempty"`
	Performance     Performance             `json:"performance"`
}

// Conservative is the response used when a check cannot be completed. It
// never marks content as spam; it asks for a human review instead.
func Conservative(message string) *Response {
	d := decision.Conservative(message)
	return &Response{
		Success:      false,
		Error:        message,
		ShouldReview: true,
		Signals:      map[string]float64{},
		Recommendations: assemble.Recommendation{
			Decision: d.Action,
			Reasons:  []string{message},
			Labels:   d.Labels,
		},
	}
}

// Config holds the service dependencies.
type Config struct {
	Ranking          *ranking.Store
	Repository       content.Repository // optional; author profiles
	Analyzer         enrich.Analyzer    // optional
	BatchConcurrency int
	Analytics        *analytics.Logger // optional
	Logger           *slog.Logger
}

// Service runs spam checks.
type Service struct {
	ranking   *ranking.Store
	repo      content.Repository
	analyzer  enrich.Analyzer
	batch     *enrich.BatchAnalyzer
	analytics *analytics.Logger
	logger    *slog.Logger
	timeNow   func() time.Time
}

// NewService creates a spam service.
func NewService(cfg Config) *Service {
	if cfg.Analyzer == nil {
		cfg.Analyzer = enrich.NoopAnalyzer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		ranking:   cfg.Ranking,
		repo:      cfg.Repository,
		analyzer:  cfg.Analyzer,
		batch:     enrich.NewBatchAnalyzer(cfg.Analyzer, cfg.BatchConcurrency),
		analytics: cfg.Analytics,
		logger:    cfg.Logger,
		timeNow:   time.Now,
	}
}

// Validate checks a request before any work is done.
func Validate(req Request) error {
	body := strings.TrimSpace(req.Content.Body)
	if body == "" {
		return fmt.Errorf("%w: content.body is required", ErrInvalidRequest)
	}
	if len(req.Content.Body) > MaxBodyLength {
		return fmt.Errorf("%w: content.body exceeds %d bytes", ErrInvalidRequest, MaxBodyLength)
	}
	if h := req.Context.UserHistory; h != nil {
		if h.TotalPosts < 0 || h.SpamCount < 0 || h.AccountAgeDays < 0 {
			return fmt.Errorf("%w: context.user_history counts must not be negative", ErrInvalidRequest)
		}
	}
	return nil
}

func checksFor(opts Options) enrich.Checks {
	if !opts.CheckAIGenerated && !opts.CheckToxicity {
		return enrich.Checks{}
	}
	return enrich.Checks{
		Spam:        true,
		Quality:     true,
		Toxicity:    opts.CheckToxicity,
		AIGenerated: opts.CheckAIGenerated,
	}
}

// Check evaluates one submission. Only validation failures return an error;
// anything else degrades to the conservative response.
func (s *Service) Check(ctx context.Context, req Request) (*Response, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	start := s.timeNow()
	snap := s.ranking.Current()
	candidate := s.candidate(ctx, req)

	var analysis *enrich.Analysis
	if checks := checksFor(req.Options); checks.Any() {
		if a, ok := s.analyzer.Analyze(ctx, enrich.Request{
			Title:  req.Content.Title,
			Body:   req.Content.Body,
			Checks: checks,
		}); ok {
			analysis = a
		} else {
			tracing.AddEvent(ctx, "enrichment_degraded", attribute.Bool("strict", req.Options.StrictMode))
		}
	}
	enriched := s.timeNow()

	resp := s.evaluate(ctx, snap, candidate, analysis, req)
	end := s.timeNow()
	resp.Performance = Performance{
		AnalysisTimeMS:   end.Sub(enriched).Milliseconds(),
		EnrichmentTimeMS: enriched.Sub(start).Milliseconds(),
		TotalTimeMS:      end.Sub(start).Milliseconds(),
	}
	s.record(req, resp)
	return resp, nil
}

// BatchResult is the outcome for one item of a batch, in request order.
type BatchResult struct {
	Index int `json:"index"`
	*Response
}

// BatchSummary counts outcomes in a batch.
type BatchSummary struct {
	Total      int `json:"total"`
	Spam       int `json:"spam"`
	LowQuality int `json:"low_quality"`
	Review     int `json:"review"`
	Invalid    int `json:"invalid"`
}

// BatchResponse is the result of a batch check.
type BatchResponse struct {
	Success     bool          `json:"success"`
	Results     []BatchResult `json:"results"`
	Summary     BatchSummary  `json:"summary"`
	Performance Performance   `json:"performance"`
}

// CheckBatch evaluates up to MaxBatchSize submissions. Enrichment runs with
// bounded concurrency; an invalid item fails only itself.
func (s *Service) CheckBatch(ctx context.Context, reqs []Request) (*BatchResponse, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: at most %d items per batch", ErrInvalidRequest, MaxBatchSize)
	}
	start := s.timeNow()
	snap := s.ranking.Current()

	valid := make([]error, len(reqs))
	enrichReqs := make([]enrich.Request, len(reqs))
	for i, req := range reqs {
		if valid[i] = Validate(req); valid[i] != nil {
			continue
		}
		enrichReqs[i] = enrich.Request{Title: req.Content.Title, Body: req.Content.Body, Checks: checksFor(req.Options)}
	}
	analyses := s.batch.AnalyzeAll(ctx, enrichReqs)
	enriched := s.timeNow()

	out := &BatchResponse{Success: true, Results: make([]BatchResult, len(reqs))}
	out.Summary.Total = len(reqs)
	for i, req := range reqs {
		if valid[i] != nil {
			out.Results[i] = BatchResult{Index: i, Response: &Response{Success: false, Error: valid[i].Error(), Signals: map[string]float64{}}}
			out.Summary.Invalid++
			continue
		}
		resp := s.evaluate(ctx, snap, s.candidate(ctx, req), analyses[i], req)
		s.record(req, resp)
		out.Results[i] = BatchResult{Index: i, Response: resp}
		if resp.IsSpam {
			out.Summary.Spam++
		}
		if resp.IsLowQuality {
			out.Summary.LowQuality++
		}
		if resp.ShouldReview {
			out.Summary.Review++
		}
	}

	end := s.timeNow()
	out.Performance = Performance{
		AnalysisTimeMS:   end.Sub(enriched).Milliseconds(),
		EnrichmentTimeMS: enriched.Sub(start).Milliseconds(),
		TotalTimeMS:      end.Sub(start).Milliseconds(),
	}
	return out, nil
}

// candidate builds the scoring input. The author profile comes from the
// request, or from the store when only an author ID is known.
func (s *Service) candidate(ctx context.Context, req Request) content.SpamCandidate {
	c := req.Content
	item := &content.Item{
		Title:        c.Title,
		Body:         c.Body,
		URL:          c.URL,
		Tags:         c.Tags,
		AuthorID:     c.AuthorID,
		CreatedAt:    s.timeNow(),
		ViewCount:    metaCount(c.Metadata, "view_count"),
		LikeCount:    metaCount(c.Metadata, "like_count"),
		CommentCount: metaCount(c.Metadata, "comment_count"),
		ShareCount:   metaCount(c.Metadata, "share_count"),
	}
	if ts, ok := c.Metadata["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			item.CreatedAt = t
		}
	}
	profile := req.Context.UserHistory
	if profile == nil && c.AuthorID != "" && s.repo != nil {
		p, err := s.repo.GetAuthorProfile(ctx, c.AuthorID)
		switch {
		case err == nil:
			profile = p
		case errors.Is(err, content.ErrNotFound):
		default:
			s.logger.WarnContext(ctx, "failed to load author profile, evaluating without history",
				"author_id", c.AuthorID, "error", err)
		}
	}
	similar := 0
	if req.Options.CheckPlagiarism {
		similar = len(req.Context.SimilarContent)
	}
	return content.SpamCandidate{Item: item, Profile: profile, SimilarCount: similar}
}

// evaluate scores, blends and decides. A failure here yields the
// conservative response instead of propagating.
func (s *Service) evaluate(ctx context.Context, snap *ranking.Snapshot, c content.SpamCandidate, analysis *enrich.Analysis, req Request) (resp *Response) {
	var err error
	_, end := tracing.StartSpan(ctx, "spam.evaluate")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spam evaluation panicked: %v", r)
			s.logger.ErrorContext(ctx, "spam evaluation failed, returning conservative default", "error", err)
			resp = Conservative(unavailableMessage)
		}
		end(err)
	}()

	if err = ctx.Err(); err != nil {
		s.logger.WarnContext(ctx, "spam check abandoned", "error", err)
		return Conservative(unavailableMessage)
	}

	score := scoring.NewEngine(snap).Spam(c, s.timeNow())
	ratio := snap.Weights.Blend.HeuristicRatio

	scores := Scores{
		Spam:     score.Spam.Score,
		Quality:  score.Quality.Score,
		Toxicity: score.Toxicity,
	}
	var ai *float64
	if analysis != nil {
		scores.Spam = scoring.Blend(scores.Spam, analysis.SpamProbability, ratio)
		scores.Quality = scoring.Blend(scores.Quality, analysis.QualityScore, ratio)
		scores.Toxicity = scoring.Blend(scores.Toxicity, analysis.ToxicityScore, ratio)
		if req.Options.CheckAIGenerated && analysis.AIGeneratedProbability != nil {
			ai = analysis.AIGeneratedProbability
			scores.AIGenerated = *ai
		}
	}

	d := decision.NewSpamPolicy(snap.Weights.Thresholds.Spam).Decide(decision.SpamInput{
		Spam:        scores.Spam,
		Quality:     scores.Quality,
		Toxicity:    scores.Toxicity,
		AIGenerated: ai,
		Reputation:  score.Signals[signals.Reputation],
		HasProfile:  c.Profile != nil,
	}, req.Options.StrictMode)

	resp = &Response{
		Success:         true,
		IsSpam:          d.IsSpam,
		IsLowQuality:    d.IsLowQuality,
		ShouldReview:    d.ShouldReview,
		Scores:          scores,
		Signals:         score.Signals,
		Breakdown:       &Breakdown{Spam: score.Spam.Breakdown, Quality: score.Quality.Breakdown},
		Recommendations: assemble.Recommend(d, score),
		Enriched:        analysis != nil,
	}
	if analysis != nil {
		resp.Categories = analysis.Categories
	}
	return resp
}

// metaCount reads a non-negative counter from submission metadata. JSON
// numbers decode as float64.
func metaCount(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case int:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	}
	return 0
}

func (s *Service) record(req Request, resp *Response) {
	s.analytics.Record(analytics.Event{
		Kind:       analytics.KindSpam,
		RequestID:  req.RequestID,
		Decision:   string(resp.Recommendations.Decision),
		Score:      resp.Scores.Spam,
		DurationMS: resp.Performance.TotalTimeMS,
		Payload: map[string]any{
			"author_id":      req.Content.AuthorID,
			"quality":        resp.Scores.Quality,
			"toxicity":       resp.Scores.Toxicity,
			"enriched":       resp.Enriched,
			"strict_mode":    req.Options.StrictMode,
			"ip_address":     analytics.AnonymizeIP(req.Context.IPAddress),
			"user_agent":     req.Context.UserAgent,
			"should_review":  resp.ShouldReview,
			"content_length": len(req.Content.Body),
		},
	})
}
