// Package resilience retries transient failures and trips a circuit breaker
// when a backend keeps failing.
//
// Failures are classified by the errors package: an AppError is transient
// when it is marked Retryable, context errors never are, and any other error
// is assumed transient.
//
//	cb := resilience.NewBreaker(resilience.BreakerConfig{Name: "s3", MaxFailures: 5})
//	err := cb.Execute(func() error {
//	    return resilience.RetryFunc(ctx, cfg.Retry, func(ctx context.Context) error {
//	        return store.Write(ctx, path, data)
//	    })
//	})
package resilience
