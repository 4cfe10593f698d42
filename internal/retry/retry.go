// Package retry re-runs operations that fail with transient errors, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
)

type Retrier struct {
	config Config
	logger *logging.Logger
	sleep  func(context.Context, time.Duration) error
}

func New(config Config, logger *logging.Logger) *Retrier {
	return &Retrier{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

func (r *Retrier) Config() Config {
	return r.config
}

func (r *Retrier) Run(ctx context.Context, op func() error) error {
	_, err := Do(ctx, r, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func Do[T any](ctx context.Context, r *Retrier, op func() (T, error)) (T, error) {
	attempts := 0
	delay := r.config.InitialDelay

	for {
		result, err := op()
		if err == nil {
			if attempts > 0 {
				r.logger.Debug("operation succeeded after retry", zap.Int("attempts", attempts+1))
			}
			return result, nil
		}

		attempts++
		if !IsTransient(err) || attempts > r.config.MaxAttempts {
			return result, err
		}

		r.logger.Warn("transient failure, retrying",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", r.config.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return result, sleepErr
		}
		delay = r.config.nextDelay(delay)
	}
}

func DoDefault[T any](ctx context.Context, logger *logging.Logger, op func() (T, error)) (T, error) {
	return Do(ctx, New(Default(), logger), op)
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
