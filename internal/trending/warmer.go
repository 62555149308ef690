package trending

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/contentrank/internal/decision"
	"github.com/onnwee/contentrank/internal/jobs"
)

// Refresher recomputes and caches the list of one window.
type Refresher interface {
	Refresh(ctx context.Context, window string) (*Response, error)
}

// JobMetrics reports to the background job metrics.
type JobMetrics interface {
	Record(jobType string, elapsed time.Duration, err error)
	Fail(jobType, errorType string)
}

// Warmer defaults.
const (
	DefaultWarmInterval = 30 * time.Second
	DefaultWarmTimeout  = 20 * time.Second
)

// WarmerConfig configures the cache warmer.
type WarmerConfig struct {
	// Interval between warm cycles. Keep it below the cache TTL so readers
	// rarely see a miss.
	Interval time.Duration
	// Windows to precompute; all windows when empty.
	Windows    []string
	Logger     *slog.Logger
	JobMetrics JobMetrics
	// Timeout for one cycle over all windows.
	Timeout time.Duration
}

// Warmer periodically precomputes trending lists into the cache.
type Warmer struct {
	config    WarmerConfig
	refresher Refresher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWarmer creates a cache warmer.
func NewWarmer(config WarmerConfig, refresher Refresher) *Warmer {
	if config.Interval == 0 {
		config.Interval = DefaultWarmInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultWarmTimeout
	}
	if len(config.Windows) == 0 {
		config.Windows = decision.WindowNames
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Warmer{config: config, refresher: refresher}
}

// Start warms once immediately and then on every interval.
// Returns immediately; the job runs in a background goroutine.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop signals the warmer to stop and waits for it to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// IsRunning returns whether the warmer is running.
func (w *Warmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Warmer) run(ctx context.Context) {
	defer close(w.doneCh)

	w.WarmNow(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Info("trending warmer stopping due to context cancellation")
			return
		case <-w.stopCh:
			w.config.Logger.Info("trending warmer stopping due to stop signal")
			return
		case <-ticker.C:
			w.WarmNow(ctx)
		}
	}
}

// WarmNow refreshes every configured window once.
func (w *Warmer) WarmNow(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, w.config.Timeout)
	defer cancel()

	start := time.Now()
	var errs []error
	for _, window := range w.config.Windows {
		if err := ctx.Err(); err != nil {
			w.config.Logger.Error("trending warm timeout exceeded", "window", window, "timeout", w.config.Timeout)
			w.fail(jobs.ErrorType(err))
			errs = append(errs, err)
			break
		}
		if _, err := w.refresher.Refresh(ctx, window); err != nil {
			w.config.Logger.Error("failed to warm trending window", "window", window, "error", err)
			w.fail("refresh_error")
			errs = append(errs, err)
		}
	}

	elapsed := time.Since(start)
	if w.config.JobMetrics != nil {
		w.config.JobMetrics.Record(jobs.JobTypeTrendingWarm, elapsed, errors.Join(errs...))
	}
	w.config.Logger.Debug("trending warm completed",
		"duration_seconds", elapsed.Seconds(),
		"windows", len(w.config.Windows),
		"failed", len(errs))
}

func (w *Warmer) fail(errorType string) {
	if w.config.JobMetrics != nil {
		w.config.JobMetrics.Fail(jobs.JobTypeTrendingWarm, errorType)
	}
}
