//go:build linux

package process

import (
	"context"
	"time"
)

// Executor runs a command to completion.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

var (
	_ Executor = (*Adapter)(nil)
	_ Executor = (*Runner)(nil)
	_ Executor = ExecutorFunc(nil)
)

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cmd Command) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// Config holds the defaults an Adapter applies to every command.
type Config struct {
	Name        string        `yaml:"name,omitempty" mapstructure:"name"`
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// Timeout bounds each command. Zero means no limit.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	// Dir is used by commands without their own.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
	// Env entries are placed before the command's, so the command wins.
	Env []string `yaml:"env,omitempty" mapstructure:"env"`
}

// Adapter is a named Executor that fills in defaults before handing the
// command to the next Executor.
type Adapter struct {
	config Config
	next   Executor
}

// NewAdapter returns an Adapter over Run.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{config: cfg, next: ExecutorFunc(Run)}
}

// Wrap returns an Adapter over next, for example a Runner.
func Wrap(cfg Config, next Executor) *Adapter {
	return &Adapter{config: cfg, next: next}
}

func (a *Adapter) Name() string { return a.config.Name }

// Execute applies the defaults and runs cmd.
func (a *Adapter) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.GracePeriod == 0 {
		cmd.GracePeriod = a.config.GracePeriod
	}
	if cmd.Dir == "" {
		cmd.Dir = a.config.Dir
	}
	if len(a.config.Env) > 0 {
		cmd.Env = append(append(make([]string, 0, len(a.config.Env)+len(cmd.Env)), a.config.Env...), cmd.Env...)
	}
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	return a.next.Execute(ctx, cmd)
}

// Execute implements Executor.
func (r *Runner) Execute(ctx context.Context, cmd Command) (*Result, error) {
	return r.Run(ctx, cmd)
}
