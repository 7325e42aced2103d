package store

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

// DefaultMaxTransactionRetries bounds the optimistic write loop: a commit
// race aborts the transaction and the whole read-compute-write sequence is
// retried up to this many attempts before the caller sees a failure.
const DefaultMaxTransactionRetries = 3

// runInTransactionWithRetry owns the retry loop and conflict
// classification for optimistic writes. Only ErrConflict is retried; every
// other failure aborts immediately. The closure must be safe to re-run from
// scratch: each attempt re-reads its inputs inside the fresh transaction.
func runInTransactionWithRetry(ctx context.Context, dao AspectDao, maxAttempts int, log *logger.Logger, fn func(tx AspectTx) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxTransactionRetries
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = dao.RunInTransaction(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, pkgerrors.ErrConflict) {
			return lastErr
		}
		if log != nil {
			log.Debug("Aspect transaction hit a write race, retrying", "attempt", attempt, "maxAttempts", maxAttempts)
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", pkgerrors.ErrRetryLimitExceeded, maxAttempts, lastErr)
}
