package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// Defaults for the HTTP analyzer.
const (
	DefaultTimeout          = 5 * time.Second
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 10
	DefaultOpenDelay        = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// ErrNoEndpoint is returned when the analyzer endpoint is not configured.
var ErrNoEndpoint = errors.New("analyzer endpoint is required")

var (
	errBadStatus = errors.New("unexpected analyzer status")
	errMalformed = errors.New("malformed analyzer response")
)

// HTTPConfig configures an HTTPAnalyzer.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration

	// The circuit opens after FailureThreshold failures within the last
	// FailureWindow calls and stays open for OpenDelay.
	FailureThreshold uint
	FailureWindow    uint
	OpenDelay        time.Duration

	Client  *http.Client
	Logger  *slog.Logger
	Metrics *Metrics
}

// HTTPAnalyzer calls a JSON analysis endpoint behind a circuit breaker.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	breaker  circuitbreaker.CircuitBreaker[*Analysis]
	logger   *slog.Logger
	metrics  *Metrics
}

// NewHTTPAnalyzer creates an analyzer. Zero values take the defaults.
func NewHTTPAnalyzer(cfg HTTPConfig) (*HTTPAnalyzer, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.FailureWindow < cfg.FailureThreshold {
		cfg.FailureWindow = DefaultFailureWindow
		if cfg.FailureWindow < cfg.FailureThreshold {
			cfg.FailureWindow = cfg.FailureThreshold
		}
	}
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = DefaultOpenDelay
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &HTTPAnalyzer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	a.breaker = circuitbreaker.NewBuilder[*Analysis]().
		HandleIf(func(_ *Analysis, err error) bool {
			// A caller abandoning the request says nothing about the analyzer.
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureWindow).
		WithDelay(cfg.OpenDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			a.metrics.setCircuitOpen(event.NewState == circuitbreaker.OpenState)
			a.logger.Warn("analyzer circuit breaker state change",
				"from_state", event.OldState.String(),
				"to_state", event.NewState.String())
		}).
		Build()
	return a, nil
}

type analyzeRequest struct {
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Checks  []string `json:"checks"`
}

// Analyze posts req to the endpoint. Any failure, including an open circuit,
// a non-200 status, an unparseable body or cancellation, reports absent.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, bool) {
	if !req.Checks.Any() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	analysis, err := failsafe.With[*Analysis](a.breaker).WithContext(ctx).Get(func() (*Analysis, error) {
		return a.call(ctx, req)
	})
	outcome := classify(err)
	a.metrics.observe(outcome, time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn("content analyzer unavailable, using heuristics only",
			"outcome", outcome,
			"error", err)
		return nil, false
	}
	return analysis, true
}

func (a *HTTPAnalyzer) call(ctx context.Context, req Request) (*Analysis, error) {
	body, err := json.Marshal(analyzeRequest{Title: req.Title, Content: req.Body, Checks: req.Checks.names()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyzer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}

	var raw Analysis
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	analysis := Validate(&raw)
	if analysis == nil {
		return nil, fmt.Errorf("%w: no usable scores", errMalformed)
	}
	return analysis, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, circuitbreaker.ErrOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, errBadStatus):
		return OutcomeBadStatus
	case errors.Is(err, errMalformed):
		return OutcomeMalformed
	default:
		return OutcomeNetwork
	}
}
