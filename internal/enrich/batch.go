package enrich

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds concurrent analyzer calls in a batch.
const DefaultBatchConcurrency = 4

// BatchAnalyzer analyzes many requests with bounded concurrency.
type BatchAnalyzer struct {
	analyzer Analyzer
	limit    int
}

// NewBatchAnalyzer wraps an analyzer. A non-positive limit uses the default.
func NewBatchAnalyzer(a Analyzer, limit int) *BatchAnalyzer {
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}
	return &BatchAnalyzer{analyzer: a, limit: limit}
}

// AnalyzeAll returns one result per request, index-aligned. Absent results
// are nil.
func (b *BatchAnalyzer) AnalyzeAll(ctx context.Context, reqs []Request) []*Analysis {
	results := make([]*Analysis, len(reqs))
	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, req := range reqs {
		if !req.Checks.Any() {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if a, ok := b.analyzer.Analyze(ctx, req); ok {
				results[i] = a
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
