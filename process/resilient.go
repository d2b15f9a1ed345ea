//go:build linux

package process

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/memexec/config"
	"github.com/kbukum/memexec/logger"
)

// RunnerConfig configures a Runner. A nil Breaker disables crash tracking.
type RunnerConfig struct {
	Retry   RetryPolicy
	Breaker *BreakerConfig
	// Timeout bounds each Run, retries included. Zero means no limit.
	Timeout time.Duration
	// GracePeriod applies to commands that do not set their own.
	GracePeriod time.Duration
}

// Runner runs commands with retry and a crash breaker whose state persists
// across calls, so a program that keeps crashing stops being relaunched.
type Runner struct {
	config  RunnerConfig
	breaker *CrashBreaker
	log     *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{config: cfg, log: logger.Get("process")}
	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		if bc.OnStateChange == nil {
			bc.OnStateChange = func(name string, from, to BreakerState) {
				r.log.Warn("crash breaker state changed", logger.Fields(
					"breaker", name, "from", from.String(), "to", to.String(),
				))
			}
		}
		r.breaker = NewCrashBreaker(bc)
	}
	if r.config.Retry.OnRetry == nil {
		r.config.Retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			r.log.Warn("spawn failed, retrying", logger.MergeWithError(logger.Fields(
				logger.FieldAttempt, attempt, "backoff", backoff.String(),
			), err))
		}
	}
	return r
}

// NewRunnerFromConfig builds a Runner from the launcher section of the
// service configuration. ApplyDefaults must have run on cfg.
func NewRunnerFromConfig(name string, cfg config.LauncherConfig) *Runner {
	rc := RunnerConfig{
		Retry:       RetryPolicyFromConfig(cfg.Retry),
		Timeout:     cfg.Timeout,
		GracePeriod: cfg.GracePeriod,
	}
	if cfg.Breaker.Enabled {
		rc.Breaker = &BreakerConfig{
			Name:        name,
			MaxFailures: cfg.Breaker.MaxFailures,
			Cooldown:    cfg.Breaker.Cooldown,
		}
	}
	return NewRunner(rc)
}

// Breaker returns the crash breaker, or nil when disabled.
func (r *Runner) Breaker() *CrashBreaker {
	return r.breaker
}

// Run executes cmd through the breaker and the retry policy. Every attempt
// of one call shares the command's RunID.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if r.breaker != nil {
		if err := r.breaker.Allow(); err != nil {
			return nil, err
		}
	}
	if cmd.RunID == "" {
		cmd.RunID = uuid.NewString()
	}
	if cmd.GracePeriod == 0 {
		cmd.GracePeriod = r.config.GracePeriod
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	result, err := Retry(ctx, r.config.Retry, func(int) (*Result, error) {
		return Run(ctx, cmd)
	})
	if r.breaker != nil {
		r.breaker.Record(err)
	}
	return result, err
}
