package spam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/contentrank/internal/analytics"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/enrich"
	"github.com/onnwee/contentrank/internal/ranking"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newTestService(opts ...func(*Config)) *Service {
	cfg := Config{
		Ranking:    ranking.NewDefaultStore(),
		Repository: content.NewInMemoryRepository(),
		Logger:     quietLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	s := NewService(cfg)
	s.timeNow = func() time.Time { return testNow }
	return s
}

func tutorialRequest() Request {
	return Request{Content: Content{
		Title: "Cursor Tutorial for Beginners",
		Body:  "This guide walks through the editor step by step. Each example shows how the editor helps you write code faster and with fewer mistakes today.",
		Tags:  []string{"cursor"},
		Metadata: map[string]any{
			"view_count": float64(50),
			"like_count": float64(10),
			"created_at": testNow.Add(-time.Hour).Format(time.RFC3339),
		},
	}}
}

func spamRequest() Request {
	return Request{Content: Content{Body: "BUY NOW!!! CLICK HERE guaranteed winner act now!!!"}}
}

type stubAnalyzer struct {
	mu       sync.Mutex
	calls    int
	analysis *enrich.Analysis
}

func (a *stubAnalyzer) Analyze(_ context.Context, req enrich.Request) (*enrich.Analysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.analysis == nil {
		return nil, false
	}
	return a.analysis, true
}

func (a *stubAnalyzer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestService_Check_QualityContentIsApproved(t *testing.T) {
	s := newTestService()

	resp, err := s.Check(context.Background(), tutorialRequest())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !resp.Success || resp.IsSpam || resp.IsLowQuality || resp.ShouldReview {
		t.Errorf("unexpected flags: %+v", resp)
	}
	if resp.Recommendations.Decision != decision.ActionApprove {
		t.Errorf("decision = %s, want approve", resp.Recommendations.Decision)
	}
	if !approx(resp.Scores.Quality, 0.805) {
		t.Errorf("quality = %v, want 0.805", resp.Scores.Quality)
	}
	if resp.Scores.AIGenerated != 0 || resp.Enriched {
		t.Errorf("no enrichment was requested: %+v", resp.Scores)
	}
	if resp.Breakdown == nil || len(resp.Breakdown.Quality) != 6 {
		t.Errorf("Breakdown = %+v", resp.Breakdown)
	}
	if len(resp.Recommendations.Suggestions) != 0 || len(resp.Recommendations.Labels) != 0 {
		t.Errorf("approved content carries no advice: %+v", resp.Recommendations)
	}
}

func TestService_Check_ObviousSpamIsRejected(t *testing.T) {
	s := newTestService()

	resp, err := s.Check(context.Background(), spamRequest())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !resp.IsSpam || resp.Scores.Spam < 0.7 {
		t.Errorf("spam = %v is_spam = %v", resp.Scores.Spam, resp.IsSpam)
	}
	if resp.Recommendations.Decision != decision.ActionReject {
		t.Errorf("decision = %s, want reject", resp.Recommendations.Decision)
	}
	if !slices.Contains(resp.Recommendations.Labels, decision.LabelSpam) {
		t.Errorf("labels = %v", resp.Recommendations.Labels)
	}
	if len(resp.Recommendations.Suggestions) == 0 {
		t.Error("rejected content should come with suggestions")
	}
}

func TestService_Check_Validation(t *testing.T) {
	s := newTestService()
	tests := []struct {
		name string
		req  Request
	}{
		{"missing body", Request{Content: Content{Title: "Only a title"}}},
		{"blank body", Request{Content: Content{Body: " \n\t "}}},
		{"negative history", Request{
			Content: Content{Body: "hello"},
			Context: Context{UserHistory: &content.BehavioralProfile{TotalPosts: -1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Check(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
			if resp != nil {
				t.Error("validation failures must not produce a verdict")
			}
		})
	}
}

func TestService_Check_EnrichmentBlend(t *testing.T) {
	an := &stubAnalyzer{analysis: &enrich.Analysis{
		SpamProbability:        ptr(1),
		QualityScore:           ptr(0.9),
		AIGeneratedProbability: ptr(0.9),
		Categories:             []string{"programming"},
	}}
	s := newTestService(func(c *Config) { c.Analyzer = an })

	plain, err := s.Check(context.Background(), tutorialRequest())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if an.count() != 0 {
		t.Fatal("analyzer must not be called without an AI check")
	}

	req := tutorialRequest()
	req.Options.CheckAIGenerated = true
	resp, err := s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if an.count() != 1 || !resp.Enriched {
		t.Fatalf("calls = %d enriched = %v", an.count(), resp.Enriched)
	}
	if want := 0.7*plain.Scores.Spam + 0.3; !approx(resp.Scores.Spam, want) {
		t.Errorf("spam = %v, want %v", resp.Scores.Spam, want)
	}
	if want := 0.7*0.805 + 0.3*0.9; !approx(resp.Scores.Quality, want) {
		t.Errorf("quality = %v, want %v", resp.Scores.Quality, want)
	}
	if resp.Scores.AIGenerated != 0.9 {
		t.Errorf("ai_generated = %v, want 0.9", resp.Scores.AIGenerated)
	}
	if resp.Recommendations.Decision != decision.ActionReview || !resp.ShouldReview {
		t.Errorf("likely AI-generated content should be reviewed: %+v", resp.Recommendations)
	}
	if !slices.Equal(resp.Categories, []string{"programming"}) {
		t.Errorf("Categories = %v", resp.Categories)
	}
}

func TestService_Check_EnrichmentFailureDegrades(t *testing.T) {
	an := &stubAnalyzer{}
	s := newTestService(func(c *Config) { c.Analyzer = an })

	req := tutorialRequest()
	req.Options.CheckToxicity = true
	resp, err := s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if an.count() != 1 {
		t.Errorf("calls = %d, want 1", an.count())
	}
	if !resp.Success || resp.Enriched || resp.Recommendations.Decision != decision.ActionApprove {
		t.Errorf("absent enrichment should fall back to heuristics: %+v", resp)
	}
}

func TestService_Check_RepeatOffenderFromStore(t *testing.T) {
	repo := content.NewInMemoryRepository()
	repo.PutAuthorProfile("spammer", &content.BehavioralProfile{TotalPosts: 100, SpamCount: 80, AccountAgeDays: 0.5})
	s := newTestService(func(c *Config) { c.Repository = repo })

	req := tutorialRequest()
	req.Content.AuthorID = "spammer"
	req.Context.SimilarContent = []string{"a", "b", "c", "d", "e"}
	req.Options.CheckPlagiarism = true

	resp, err := s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Recommendations.Decision != decision.ActionQuarantine {
		t.Fatalf("decision = %s (spam %v), want quarantine", resp.Recommendations.Decision, resp.Scores.Spam)
	}
	if !resp.ShouldReview || !resp.IsSpam {
		t.Errorf("quarantine flags: %+v", resp)
	}
	if !slices.Equal(resp.Recommendations.Labels, []string{decision.LabelHidden, decision.LabelSpam}) {
		t.Errorf("labels = %v", resp.Recommendations.Labels)
	}
	if resp.Signals["similarity"] != 1 || resp.Signals["reputation"] != 0.1 {
		t.Errorf("signals = %v", resp.Signals)
	}

	req.Options.CheckPlagiarism = false
	resp, err = s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Signals["similarity"] != 0 {
		t.Error("similar content is only counted for plagiarism checks")
	}
}

func TestService_Check_RequestHistoryWinsOverStore(t *testing.T) {
	repo := content.NewInMemoryRepository()
	repo.PutAuthorProfile("a1", &content.BehavioralProfile{TotalPosts: 100, SpamCount: 100, AccountAgeDays: 0.5})
	s := newTestService(func(c *Config) { c.Repository = repo })

	req := tutorialRequest()
	req.Content.AuthorID = "a1"
	req.Context.UserHistory = &content.BehavioralProfile{TotalPosts: 40, AccountAgeDays: 400}

	resp, err := s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Signals["previous_spam_ratio"] != 0 || resp.Signals["reputation"] != 1 {
		t.Errorf("request history should be used: %v", resp.Signals)
	}
}

func TestService_Check_StoreFailureIsTolerated(t *testing.T) {
	s := newTestService(func(c *Config) { c.Repository = brokenRepository{} })

	req := tutorialRequest()
	req.Content.AuthorID = "a1"
	resp, err := s.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !resp.Success || resp.Recommendations.Decision != decision.ActionApprove {
		t.Errorf("profile lookup failure should not change the verdict: %+v", resp.Recommendations)
	}
}

func TestService_Check_CanceledContextIsConservative(t *testing.T) {
	s := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := s.Check(ctx, spamRequest())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Success || resp.IsSpam || !resp.ShouldReview {
		t.Errorf("conservative default expected: %+v", resp)
	}
	if resp.Recommendations.Decision != decision.ActionReview || resp.Error == "" {
		t.Errorf("Recommendations = %+v error = %q", resp.Recommendations, resp.Error)
	}
}

func TestConservative(t *testing.T) {
	resp := Conservative("down")
	if resp.IsSpam || !resp.ShouldReview || resp.Success {
		t.Errorf("Conservative() = %+v", resp)
	}
	if len(resp.Recommendations.Suggestions) != 0 {
		t.Error("no suggestions without scores")
	}
	if err := decision.ValidateLabels(resp.Recommendations.Labels); err != nil {
		t.Error(err)
	}
}

func TestService_CheckBatch(t *testing.T) {
	an := &stubAnalyzer{analysis: &enrich.Analysis{SpamProbability: ptr(1)}}
	s := newTestService(func(c *Config) { c.Analyzer = an })

	good, bad := tutorialRequest(), spamRequest()
	good.Options.CheckAIGenerated = true
	bad.Options.CheckAIGenerated = true
	reqs := []Request{good, bad, {Content: Content{Title: "no body"}}}

	resp, err := s.CheckBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("CheckBatch() error = %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
	}
	if an.count() != 2 {
		t.Errorf("analyzer calls = %d, want 2", an.count())
	}
	if resp.Results[0].IsSpam || !resp.Results[1].IsSpam {
		t.Errorf("verdicts out of order: %v, %v", resp.Results[0].IsSpam, resp.Results[1].IsSpam)
	}
	if resp.Results[0].IsLowQuality || !resp.Results[1].IsLowQuality {
		t.Errorf("low quality out of order: %v, %v", resp.Results[0].IsLowQuality, resp.Results[1].IsLowQuality)
	}
	if resp.Results[2].Success || resp.Results[2].Error == "" {
		t.Errorf("invalid item should fail alone: %+v", resp.Results[2].Response)
	}
	want := BatchSummary{Total: 3, Spam: 1, LowQuality: 1, Review: 0, Invalid: 1}
	if resp.Summary != want {
		t.Errorf("Summary = %+v, want %+v", resp.Summary, want)
	}
}

func TestService_CheckBatch_Limits(t *testing.T) {
	s := newTestService()
	if _, err := s.CheckBatch(context.Background(), nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty batch error = %v", err)
	}
	reqs := make([]Request, MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = spamRequest()
	}
	if _, err := s.CheckBatch(context.Background(), reqs); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("oversized batch error = %v", err)
	}
	if _, err := s.CheckBatch(context.Background(), reqs[:MaxBatchSize]); err != nil {
		t.Errorf("full batch error = %v", err)
	}
}

func TestService_Check_RecordsAnalytics(t *testing.T) {
	sink := analytics.NewMemorySink()
	logger := analytics.NewLogger(sink, analytics.LoggerConfig{Logger: quietLogger()})
	logger.Start()
	s := newTestService(func(c *Config) { c.Analytics = logger })

	req := spamRequest()
	req.RequestID = "req-7"
	req.Context.IPAddress = "203.0.113.9"
	if _, err := s.Check(context.Background(), req); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	logger.Close()

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != analytics.KindSpam || ev.Decision != string(decision.ActionReject) || ev.RequestID != "req-7" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Payload["ip_address"] != "203.0.113.0" {
		t.Errorf("payload = %v", ev.Payload)
	}
}

type brokenRepository struct {
	content.Repository
}

func (brokenRepository) GetAuthorProfile(context.Context, string) (*content.BehavioralProfile, error) {
	return nil, fmt.Errorf("%w: connection refused", content.ErrStoreUnavailable)
}
