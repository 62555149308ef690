package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/contentrank/internal/jobs"
)

// Defaults for LoggerConfig.
const (
	DefaultBufferSize    = 1024
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
)

// Metrics names.
const (
	MetricEventsRecorded     = "analytics_events_recorded_total"
	MetricEventsDropped      = "analytics_events_dropped_total"
	MetricEventWriteFailures = "analytics_event_write_failures_total"
)

// Metrics counts analytics throughput.
type Metrics struct {
	recorded      prometheus.Counter
	dropped       prometheus.Counter
	writeFailures prometheus.Counter
}

// NewMetrics creates the collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsRecorded,
			Help: "Total number of analytics events written to the sink",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsDropped,
			Help: "Total number of analytics events dropped because the queue was full",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventWriteFailures,
			Help: "Total number of failed analytics batch writes",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.recorded, m.dropped, m.writeFailures}
}

// LoggerConfig configures a Logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	Logger        *slog.Logger
	Metrics       *Metrics
	JobMetrics    JobMetrics // optional; each flush counts as one analytics_flush run
}

// JobMetrics reports flushes to the background job metrics.
type JobMetrics interface {
	Record(jobType string, elapsed time.Duration, err error)
	Fail(jobType, errorType string)
}

// Logger queues events and writes them to a Sink in the background.
// Record never blocks and never fails the caller.
type Logger struct {
	sink    Sink
	config  LoggerConfig
	events  chan Event
	timeNow func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLogger creates a Logger writing to sink. Call Start before recording.
func NewLogger(sink Sink, config LoggerConfig) *Logger {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Logger{
		sink:    sink,
		config:  config,
		events:  make(chan Event, config.BufferSize),
		timeNow: time.Now,
	}
}

// Record enqueues ev. ID and CreatedAt are filled in when zero. A nil Logger
// discards events.
func (l *Logger) Record(ev Event) {
	if l == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.timeNow().UTC()
	}
	select {
	case l.events <- ev:
	default:
		if l.config.Metrics != nil {
			l.config.Metrics.dropped.Inc()
		}
		l.config.Logger.Debug("analytics queue full, dropping event", "kind", ev.Kind)
	}
}

// Start begins the background writer.
func (l *Logger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.run()
}

// Close stops the writer after draining queued events.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Logger) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, l.config.BatchSize)
	for {
		select {
		case ev := <-l.events:
			batch = append(batch, ev)
			if len(batch) >= l.config.BatchSize {
				batch = l.flush(batch)
			}
		case <-ticker.C:
			batch = l.flush(batch)
		case <-l.stopCh:
			for {
				select {
				case ev := <-l.events:
					batch = append(batch, ev)
					if len(batch) >= l.config.BatchSize {
						batch = l.flush(batch)
					}
				default:
					l.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes batch and returns it emptied for reuse.
func (l *Logger) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := l.sink.Write(ctx, batch)
	if err != nil {
		if l.config.Metrics != nil {
			l.config.Metrics.writeFailures.Inc()
		}
		if l.config.JobMetrics != nil {
			l.config.JobMetrics.Fail(jobs.JobTypeAnalyticsFlush, "sink_error")
		}
		l.config.Logger.Warn("failed to write analytics events", "count", len(batch), "error", err)
	} else if l.config.Metrics != nil {
		l.config.Metrics.recorded.Add(float64(len(batch)))
	}
	if l.config.JobMetrics != nil {
		l.config.JobMetrics.Record(jobs.JobTypeAnalyticsFlush, time.Since(start), err)
	}
	return batch[:0]
}
