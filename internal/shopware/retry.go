package shopware

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SleepFunc приостанавливает выполнение на d или до отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier повторяет временно неуспешные вызовы с экспоненциальной задержкой.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	Logger      *zap.Logger
}

// Delay возвращает паузу после неудачной попытки attempt (нумерация с 1).
func (r *Retrier) Delay(attempt int) time.Duration {
	return r.BaseDelay << (attempt - 1)
}

// Do выполняет fn. Ошибки, для которых IsRetryable == false, возвращаются сразу.
func (r *Retrier) Do(ctx context.Context, action string, fn func() error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}

		wait := r.Delay(attempt)
		logger.Warn("remote call failed, retrying",
			zap.String("action", action),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%w for %s after %d attempts: %w", ErrRetriesExhausted, action, r.MaxAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
