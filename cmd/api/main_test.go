package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/contentrank/internal/config"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:                   0,
		Env:                    "test",
		CalibrationPath:        filepath.Join(dir, "ranking.calibration.json"),
		LexiconPath:            "",
		TrendingCacheTTL:       time.Minute,
		TrendingWarmInterval:   time.Hour,
		StreamInterval:         time.Second,
		AnalyticsFlushInterval: time.Second,
		EnrichmentTimeout:      time.Second,
	}
}

const seedJSON = `{
  "items": [
    {"id": "a1", "title": "Go generics in practice", "body": "A guide to writing generic code in Go with examples and benchmarks.",
     "tags": ["go", "programming"], "author_id": "u1", "created_at": "%s",
     "view_count": 900, "like_count": 120, "comment_count": 30, "share_count": 15,
     "recent_likes": 60, "recent_comments": 12, "recent_shares": 8},
    {"id": "a2", "title": "Sourdough basics", "body": "How to keep a starter alive through the winter.",
     "tags": ["baking"], "author_id": "u2", "created_at": "%s",
     "view_count": 40, "like_count": 3}
  ],
  "users": [{"user_id": "reader-1", "preferences": ["go"]}],
  "authors": {"u1": {"total_posts": 40, "spam_count": 0, "account_age_days": 400}}
}`

func writeSeed(t *testing.T) string {
	t.Helper()
	created := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	path := filepath.Join(t.TempDir(), "seed.json")
	body := strings.Replace(strings.Replace(seedJSON, "%s", created, 1), "%s", created, 1)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}
	return path
}

func newTestApp(t *testing.T, seed string) *app {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), testConfig(t), logger, options{
		registry: prometheus.NewRegistry(),
		seedPath: seed,
	})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { _ = a.close(context.Background()) })
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "198.51.100.4:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	a := newTestApp(t, writeSeed(t))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", http.StatusOK},
		{"trending", http.MethodPost, "/trending", `{"timeWindow":"daily"}`, http.StatusOK},
		{"trending unknown window", http.MethodPost, "/trending", `{"timeWindow":"fortnight"}`, http.StatusBadRequest},
		{"search", http.MethodPost, "/search", `{"query":"golang generics"}`, http.StatusOK},
		{"search empty query", http.MethodPost, "/search", `{"query":""}`, http.StatusBadRequest},
		{"spam check", http.MethodPost, "/spam-check", `{"content":{"body":"Thoughtful notes on testing Go services."}}`, http.StatusOK},
		{"spam batch", http.MethodPost, "/spam-check/batch", `{"items":[{"content":{"body":"one"}},{"content":{"body":"two"}}]}`, http.StatusOK},
		{"wrong method", http.MethodGet, "/search", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, a.handler, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("missing request ID header")
			}
		})
	}
}

func TestRouter_TrendingUsesSeed(t *testing.T) {
	a := newTestApp(t, writeSeed(t))

	rec := do(t, a.handler, http.MethodPost, "/trending", `{"timeWindow":"daily"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success  bool `json:"success"`
		Trending []struct {
			ID   string `json:"id"`
			Rank int    `json:"rank"`
		} `json:"trending"`
		Metadata struct {
			TotalItems       int    `json:"total_items"`
			AlgorithmVersion string `json:"algorithm_version"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if len(resp.Trending) == 0 || resp.Trending[0].ID != "a1" || resp.Trending[0].Rank != 1 {
		t.Errorf("trending = %+v, want a1 ranked first", resp.Trending)
	}
	if resp.Metadata.TotalItems != len(resp.Trending) {
		t.Errorf("total_items = %d, want %d", resp.Metadata.TotalItems, len(resp.Trending))
	}
	if resp.Metadata.AlgorithmVersion == "" {
		t.Error("algorithm_version is empty")
	}
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestApp(t, "")

	do(t, a.handler, http.MethodGet, "/health", "")
	rec := do(t, a.handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, name := range []string{middleware.MetricHTTPRequestsTotal, middleware.MetricRateLimitRequests} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSAllowedOrigins = []string{"https://app.example.com"}
	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), options{registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { _ = a.close(context.Background()) })

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "not a url"
	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), options{registry: prometheus.NewRegistry()})
	if err == nil {
		t.Fatal("expected an error for an invalid redis URL")
	}
}

func TestApp_CloseWithoutStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), testConfig(t), logger, options{registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.watcher == nil {
		t.Fatal("expected a calibration watcher")
	}

	done := make(chan error, 1)
	go func() { done <- a.close(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close() blocked on an app that was never started")
	}
}

func TestLoadSeed(t *testing.T) {
	repo := content.NewInMemoryRepository()
	n, err := loadSeed(writeSeed(t), repo)
	if err != nil {
		t.Fatalf("loadSeed() error = %v", err)
	}
	if n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
	uc, err := repo.GetUserContext(context.Background(), "reader-1")
	if err != nil || uc == nil || len(uc.Preferences) != 1 {
		t.Errorf("user context = %+v, %v", uc, err)
	}
	p, err := repo.GetAuthorProfile(context.Background(), "u1")
	if err != nil || p == nil || p.TotalPosts != 40 {
		t.Errorf("author profile = %+v, %v", p, err)
	}
}

func TestLoadSeed_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	noID := filepath.Join(dir, "noid.json")
	_ = os.WriteFile(bad, []byte("{"), 0o600)
	_ = os.WriteFile(noID, []byte(`{"items":[{"title":"x"}]}`), 0o600)

	for _, path := range []string{filepath.Join(dir, "missing.json"), bad, noID} {
		if _, err := loadSeed(path, content.NewInMemoryRepository()); err == nil {
			t.Errorf("loadSeed(%s) succeeded", filepath.Base(path))
		}
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Handler: mux, ReadTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, ln, logger) }()

	// An in-flight request must complete during shutdown.
	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			respCh <- 0
			return
		}
		resp.Body.Close()
		respCh <- resp.StatusCode
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case code := <-respCh:
		if code != http.StatusOK {
			t.Errorf("in-flight request status = %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request did not finish")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server failed to stop in time")
	}

	logs := logBuf.String()
	start := strings.Index(logs, "starting server")
	shutdown := strings.Index(logs, "shutting down server")
	if start == -1 || shutdown == -1 || start > shutdown {
		t.Errorf("unexpected log order: %s", logs)
	}
}

func TestServe_ListenerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	ln.Close()

	err = serve(context.Background(), &http.Server{}, ln, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected an error from a closed listener")
	}
}
