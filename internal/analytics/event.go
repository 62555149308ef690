// Package analytics records evaluation events without slowing requests down.
// Events are queued in memory and written in batches to a sink; when the
// queue is full, events are dropped and counted.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/onnwee/contentrank/internal/tracing"
)

// Event kinds.
const (
	KindSearch   = "search"
	KindTrending = "trending"
	KindSpam     = "spam_check"
)

// Event is one evaluation outcome.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Kind        string         `json:"kind"`
	RequestID   string         `json:"request_id,omitempty"`
	ContentID   string         `json:"content_id,omitempty"`
	Query       string         `json:"query,omitempty"`
	Decision    string         `json:"decision,omitempty"`
	Score       float64        `json:"score,omitempty"`
	ResultCount int            `json:"result_count,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Sink persists batches of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends events.
func (s *MemorySink) Write(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink writes events to the evaluation_events table.
type PostgresSink struct {
	db Execer
}

// NewPostgresSink creates a sink over db.
func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{db: db}
}

// Write inserts all events in one statement.
func (s *PostgresSink) Write(ctx context.Context, events []Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	ctx, end := tracing.StartDBSpan(ctx, "evaluation_events", tracing.DBOperationInsert)
	defer func() { end(err) }()

	insert := psql.Insert("evaluation_events").Columns(
		"id", "kind", "request_id", "content_id", "query", "decision",
		"score", "result_count", "duration_ms", "payload", "created_at",
	)
	for _, ev := range events {
		payload := []byte("{}")
		if len(ev.Payload) > 0 {
			if payload, err = json.Marshal(ev.Payload); err != nil {
				return fmt.Errorf("failed to encode event payload: %w", err)
			}
		}
		insert = insert.Values(
			ev.ID, ev.Kind, ev.RequestID, ev.ContentID, ev.Query, ev.Decision,
			ev.Score, ev.ResultCount, ev.DurationMS, string(payload), ev.CreatedAt,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build event insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %d evaluation events: %w", len(events), err)
	}
	return nil
}
