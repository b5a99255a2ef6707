package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"watchtower/pkg/logging"
)

// Config configures retry behavior for a call site.
type Config struct {
	// MaxRetries is the number of attempts after the first failure.
	MaxRetries int
	// InitialDelay is the backoff before the first retry; it doubles per
	// attempt up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// JitterFactor randomizes delays; zero disables jitter.
	JitterFactor float64
	// ShouldRetry filters retryable errors; nil retries every error.
	ShouldRetry func(error) bool
}

// DefaultConfig returns sensible defaults for backing-store retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.1,
	}
}

func normalize(cfg Config) Config {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return cfg
}

// NewPolicy builds a failsafe retry policy with exponential backoff. Each
// retry attempt is logged with the operation name.
func NewPolicy[T any](cfg Config, logger logging.Logger, operation string) retrypolicy.RetryPolicy[T] {
	cfg = normalize(cfg)

	builder := retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.InitialDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries)

	if cfg.JitterFactor > 0 {
		builder = builder.WithJitterFactor(cfg.JitterFactor)
	}

	if cfg.ShouldRetry != nil {
		builder = builder.HandleIf(func(_ T, err error) bool {
			return err != nil && cfg.ShouldRetry(err)
		})
	}

	if logger != nil {
		builder = builder.OnRetry(func(event failsafe.ExecutionEvent[T]) {
			logger.WithFields(logging.Fields{
				"operation": operation,
				"attempt":   event.Attempts(),
			}).WithError(event.LastError()).Warn("Retrying after failure")
		})
	}

	return builder.Build()
}

// Do runs fn through a retry policy built from cfg, honoring ctx cancellation
// between attempts.
func Do[T any](ctx context.Context, cfg Config, logger logging.Logger, operation string, fn func() (T, error)) (T, error) {
	policy := NewPolicy[T](cfg, logger, operation)
	return failsafe.NewExecutor[T](policy).WithContext(ctx).Get(func() (T, error) {
		return fn()
	})
}
