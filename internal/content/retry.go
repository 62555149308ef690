package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// DefaultRetryDelay is the pause before the single retry of a failed fetch.
const DefaultRetryDelay = 100 * time.Millisecond

// RetryingRepository retries a failed candidate fetch exactly once.
// Not-found results and cancelled contexts are returned immediately.
type RetryingRepository struct {
	next   Repository
	logger *slog.Logger
	delay  time.Duration
}

// NewRetryingRepository wraps next with a bounded single retry.
func NewRetryingRepository(next Repository, logger *slog.Logger) *RetryingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingRepository{next: next, logger: logger, delay: DefaultRetryDelay}
}

// ListRecent implements Repository.
func (r *RetryingRepository) ListRecent(ctx context.Context, opts ListOptions) ([]*Item, error) {
	return withRetry(ctx, r, "list_recent", func() ([]*Item, error) {
		return r.next.ListRecent(ctx, opts)
	})
}

// Search implements Repository.
func (r *RetryingRepository) Search(ctx context.Context, opts SearchOptions) ([]*Item, error) {
	return withRetry(ctx, r, "search", func() ([]*Item, error) {
		return r.next.Search(ctx, opts)
	})
}

// GetUserContext implements Repository.
func (r *RetryingRepository) GetUserContext(ctx context.Context, userID string) (*UserContext, error) {
	return withRetry(ctx, r, "get_user_context", func() (*UserContext, error) {
		return r.next.GetUserContext(ctx, userID)
	})
}

// GetAuthorProfile implements Repository.
func (r *RetryingRepository) GetAuthorProfile(ctx context.Context, authorID string) (*BehavioralProfile, error) {
	return withRetry(ctx, r, "get_author_profile", func() (*BehavioralProfile, error) {
		return r.next.GetAuthorProfile(ctx, authorID)
	})
}

func withRetry[T any](ctx context.Context, r *RetryingRepository, op string, fn func() (T, error)) (T, error) {
	policy := retrypolicy.NewBuilder[T]().
		WithMaxRetries(1).
		WithDelay(r.delay).
		HandleIf(func(_ T, err error) bool {
			return retryable(err)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[T]) {
			r.logger.Warn("retrying content store call",
				"operation", op,
				"error", e.LastError())
		}).
		ReturnLastFailure().
		Build()

	return failsafe.With[T](policy).WithContext(ctx).Get(fn)
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
