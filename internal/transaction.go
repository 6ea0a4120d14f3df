package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// withTx runs fn inside a transaction and commits when fn succeeds. A failed
// commit is reported as CommitFailed.
func withTx(ctx context.Context, pool dbPool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isRetryableTxError(err) {
			return err
		}
		return survey.NewCommitFailedError("commit transaction", err)
	}
	return nil
}

// retryPolicy bounds how often a version-allocating transaction is re-run after
// losing a race. Each attempt re-reads the form so the next version number is
// recomputed, never reused.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

func newRetryPolicy(cfg survey.TransactionConfig) retryPolicy {
	p := retryPolicy{attempts: cfg.MaxRetryAttempts, delay: cfg.RetryDelay}
	if p.attempts < 1 {
		p.attempts = 1
	}
	return p
}

// run calls attempt until it succeeds, fails with a non-retryable error, or the
// attempts are used up. Serialization failures surface as Conflict once exhausted.
func (p retryPolicy) run(ctx context.Context, op string, attempt func(n int) error) error {
	var lastErr error
	for n := 1; n <= p.attempts; n++ {
		err := attempt(n)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) && !isVersionRace(err) {
			return err
		}
		lastErr = err
		EmitRetry(ctx, op)
		zap.S().Warnw("transaction lost a race, retrying", "op", op, "attempt", n, "maxAttempts", p.attempts, "error", err)

		if n == p.attempts {
			break
		}
		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		}
	}
	if survey.IsConflict(lastErr) {
		return lastErr
	}
	return survey.NewConflictError(survey.ErrCodeVersionConflict,
		fmt.Sprintf("%s: concurrent modification persisted after %d attempts", op, p.attempts)).WithCause(lastErr)
}

func isVersionRace(err error) bool {
	var se *survey.SurveyError
	return errors.As(err, &se) && se.Code == survey.ErrCodeVersionConflict
}
