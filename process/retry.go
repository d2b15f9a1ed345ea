package process

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kbukum/memexec/config"
	apperrors "github.com/kbukum/memexec/errors"
)

// RetryPolicy configures retries of transient spawn failures.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter float64
	// RetryIf selects retryable errors. Defaults to apperrors.IsRetryable.
	RetryIf func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.2,
		RetryIf:        apperrors.IsRetryable,
	}
}

// RetryPolicyFromConfig converts the retry section of the launcher config.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		BackoffFactor:  cfg.Factor,
	}
	if cfg.Jitter {
		p.Jitter = DefaultRetryPolicy().Jitter
	}
	return p
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = d.BackoffFactor
	}
	if p.RetryIf == nil {
		p.RetryIf = d.RetryIf
	}
	return p
}

// Retry calls fn until it succeeds, returns a non-retryable error or runs out
// of attempts. The result of the last attempt is returned alongside its
// error, so a failed run still yields its output. An attempt number starting
// at 1 is passed to fn.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(attempt int) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var result T
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, apperrors.Timeout("retry").WithCause(ctxErr)
		}

		result, err = fn(attempt)
		if err == nil || !policy.RetryIf(err) || attempt == policy.MaxAttempts {
			return result, err
		}

		backoff := policy.backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, apperrors.Timeout("retry").WithCause(ctx.Err())
		case <-timer.C:
		}
	}
	return result, err
}

// backoff is InitialBackoff * BackoffFactor^(attempt-1), jittered and capped.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if d < 0 {
		d = float64(p.InitialBackoff)
	}
	return time.Duration(d)
}
