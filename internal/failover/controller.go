package failover

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalpilot/signalpilot/internal/provider"
)

// Policy bounds the retries of one model before falling back.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy retries three times with jittered exponential backoff
// between 1s and 20s and gives up after one minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     20 * time.Second,
		MaxElapsed:      60 * time.Second,
	}
}

// CallFunc performs one request against model.
type CallFunc func(ctx context.Context, model provider.ModelRef) (string, error)

type Controller struct {
	policy    Policy
	fallbacks []provider.ModelRef
	logger    *slog.Logger
}

func NewController(policy Policy, fallbacks []provider.ModelRef, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		policy:    policy,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Execute runs fn against model with retries, then against each fallback
// model in order. A non-retryable error stops immediately.
func (c *Controller) Execute(ctx context.Context, model provider.ModelRef, fn CallFunc) (string, error) {
	models := append([]provider.ModelRef{model}, c.fallbacks...)
	attempted := make([]string, 0, len(models))
	var lastErr error

	for _, m := range models {
		if containsRef(attempted, m.String()) {
			continue
		}
		attempted = append(attempted, m.String())

		out, err := c.retry(ctx, m, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return "", err
		}
		c.logger.Warn("model exhausted its retries", "model", m.String(), "error", err)
	}

	return "", &AllExhaustedError{Attempted: attempted, Last: lastErr}
}

func (c *Controller) retry(ctx context.Context, model provider.ModelRef, fn CallFunc) (string, error) {
	b := backoff.NewExponentialBackOff()
	if c.policy.InitialInterval > 0 {
		b.InitialInterval = c.policy.InitialInterval
	}
	if c.policy.MaxInterval > 0 {
		b.MaxInterval = c.policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(c.policy.MaxRetries, 0) + 1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("llm request failed, retrying", "model", model.String(), "error", err, "backoff", wait)
		}),
	}
	if c.policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.policy.MaxElapsed))
	}

	return backoff.Retry(ctx, func() (string, error) {
		out, err := fn(ctx, model)
		if err != nil && !IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}, opts...)
}

func containsRef(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
