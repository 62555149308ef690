package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultTTL is how long cached responses stay fresh.
const DefaultTTL = 60 * time.Second

// MetricCacheRequestsTotal counts cache lookups by result.
const MetricCacheRequestsTotal = "response_cache_requests_total"

// Lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: invalid CBOR options: %v", err))
	}
	return em
}()

// Metrics contains Prometheus metrics for cache lookups.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheRequestsTotal,
				Help: "Total number of response cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.requests)
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests}
}

func (m *Metrics) inc(name, result string) {
	if m != nil {
		m.requests.WithLabelValues(name, result).Inc()
	}
}

// Options configures a Cache.
type Options struct {
	Name    string // key prefix and metric label
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Cache stores values of one type. Errors are logged and treated as misses;
// callers never fail because of the cache.
type Cache[T any] struct {
	store   Store
	name    string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a typed cache over store.
func New[T any](store Store, opts Options) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "cache"
	}
	return &Cache[T]{store: store, name: opts.Name, ttl: opts.TTL, logger: opts.Logger, metrics: opts.Metrics}
}

func (c *Cache[T]) key(k string) string {
	return c.name + ":" + k
}

// Get returns the cached value for k.
func (c *Cache[T]) Get(ctx context.Context, k string) (T, bool) {
	var v T
	data, err := c.store.Get(ctx, c.key(k))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.metrics.inc(c.name, ResultMiss)
		} else {
			c.metrics.inc(c.name, ResultError)
			c.logger.Warn("cache read failed", "cache", c.name, "key", k, "error", err)
		}
		return v, false
	}
	if err := cbor.Unmarshal(data, &v); err != nil {
		c.metrics.inc(c.name, ResultError)
		c.logger.Warn("cache entry undecodable", "cache", c.name, "key", k, "error", err)
		var zero T
		return zero, false
	}
	c.metrics.inc(c.name, ResultHit)
	return v, true
}

// Set stores v under k.
func (c *Cache[T]) Set(ctx context.Context, k string, v T) {
	data, err := encMode.Marshal(v)
	if err != nil {
		c.logger.Warn("cache entry unencodable", "cache", c.name, "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, c.key(k), data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "cache", c.name, "key", k, "error", err)
	}
}
