package storage

import (
	"context"
	"time"

	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/resilience"
)

// Resilient wraps store so transient failures are retried and a backend
// that keeps failing is short-circuited with SERVICE_UNAVAILABLE. A
// disabled breaker config leaves only the retries.
func Resilient(store Storage, name string, retry resilience.RetryConfig, breaker resilience.BreakerConfig, log *logger.Logger) Storage {
	if log == nil {
		log = logger.Nop()
	}
	r := &resilientStorage{next: store, retry: retry}
	r.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("storage call failed, retrying", logger.Fields(
			"provider", name,
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
			logger.FieldError, err.Error(),
		))
	}
	if breaker.Enabled() {
		breaker.Name = "storage " + name
		breaker.OnStateChange = func(_ string, from, to resilience.State) {
			log.Warn("storage circuit changed", logger.Fields(
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			))
		}
		r.breaker = resilience.NewBreaker(breaker)
	}
	return r
}

type resilientStorage struct {
	next    Storage
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

var _ Storage = (*resilientStorage)(nil)

// guard runs one logical call: retries inside, one breaker sample outside.
func guard[T any](ctx context.Context, r *resilientStorage, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	call := func() error {
		var err error
		result, err = resilience.Retry(ctx, r.retry, fn)
		return err
	}
	var err error
	if r.breaker == nil {
		err = call()
	} else {
		err = r.breaker.Execute(call)
	}
	return result, err
}

func (r *resilientStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return guard(ctx, r, func(ctx context.Context) ([]byte, error) {
		return r.next.Read(ctx, path)
	})
}

func (r *resilientStorage) Write(ctx context.Context, path string, data []byte) error {
	_, err := guard(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Write(ctx, path, data)
	})
	return err
}

func (r *resilientStorage) Exists(ctx context.Context, path string) (bool, error) {
	return guard(ctx, r, func(ctx context.Context) (bool, error) {
		return r.next.Exists(ctx, path)
	})
}

func (r *resilientStorage) Delete(ctx context.Context, path string) error {
	_, err := guard(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Delete(ctx, path)
	})
	return err
}
