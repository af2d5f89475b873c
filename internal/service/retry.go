package service

import (
	"context"
	"errors"
	"time"

	"nni-keeper/internal/artifact"
	"nni-keeper/internal/config"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/metrics"
	"nni-keeper/internal/repository"

	"github.com/sethvargo/go-retry"
)

// permanent 重试也不会成功的错误
func permanent(err error) bool {
	return errors.Is(err, artifact.ErrCorruptArtifact) ||
		errors.Is(err, repository.ErrUnknownMetric) ||
		errors.Is(err, repository.ErrInvalidTopCnt) ||
		errors.Is(err, context.Canceled)
}

// withRetry 以固定间隔重试存储操作，最多 MaxAttempts 次
func withRetry(ctx context.Context, cfg config.RetryConfig, op string, log *logging.Logger, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	tries := 0
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		tries++
		if tries > 1 {
			metrics.StorageRetries.WithLabelValues(op).Inc()
		}

		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		log.WithError(err).Warn("storage operation failed", "op", op, "attempt", tries, "max_attempts", attempts)
		return retry.RetryableError(err)
	})
}
