package config

import (
	"time"

	"github.com/kbukum/memexec/validation"
)

// Launcher defaults.
const (
	DefaultGracePeriod    = 5 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 50 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultMaxFailures    = 5
	DefaultCooldown       = 30 * time.Second
)

// LauncherConfig controls how children are spawned and supervised.
type LauncherConfig struct {
	// DefaultStdin, DefaultStdout and DefaultStderr take inherit, null or piped.
	DefaultStdin  string `yaml:"stdin" mapstructure:"stdin" validate:"oneof=inherit null piped"`
	DefaultStdout string `yaml:"stdout" mapstructure:"stdout" validate:"oneof=inherit null piped"`
	DefaultStderr string `yaml:"stderr" mapstructure:"stderr" validate:"oneof=inherit null piped"`

	// GracePeriod is the delay between SIGTERM and SIGKILL on cancellation.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gte=0"`
	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`

	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// RetryConfig is the spawn retry policy. Only transient spawn failures retry.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	Factor         float64       `yaml:"factor" mapstructure:"factor" validate:"gte=1"`
	Jitter         bool          `yaml:"jitter" mapstructure:"jitter"`
}

// BreakerConfig is the crash breaker policy.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxFailures int           `yaml:"max_failures" mapstructure:"max_failures" validate:"gte=1"`
	Cooldown    time.Duration `yaml:"cooldown" mapstructure:"cooldown" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *LauncherConfig) ApplyDefaults() {
	if c.DefaultStdin == "" {
		c.DefaultStdin = "inherit"
	}
	if c.DefaultStdout == "" {
		c.DefaultStdout = "inherit"
	}
	if c.DefaultStderr == "" {
		c.DefaultStderr = "inherit"
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	c.Retry.ApplyDefaults()
	c.Breaker.ApplyDefaults()
}

// Validate checks the struct tags.
func (c *LauncherConfig) Validate() error {
	return validation.Validate(c)
}

// ApplyDefaults fills unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Factor == 0 {
		c.Factor = DefaultBackoffFactor
	}
}

// ApplyDefaults fills unset fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
}
