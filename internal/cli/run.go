//go:build linux

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/kbukum/memexec/config"
	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/logger"
	"github.com/kbukum/memexec/memexec"
	"github.com/kbukum/memexec/observability"
	"github.com/kbukum/memexec/process"
	"github.com/kbukum/memexec/stdio"
	"github.com/kbukum/memexec/version"
)

const serviceName = "memrun"

// forwardedSignals are relayed to the child while memrun waits for it.
var forwardedSignals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT, unix.SIGUSR1, unix.SIGUSR2}

func runBinary(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	logger.Init(cfg.Logging, cfg.Name)
	log := logger.Get(serviceName)

	shutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		log.Warn("telemetry disabled", logger.ErrorFields("telemetry", err))
		shutdown = func() {}
	}
	defer shutdown()

	path, childArgs := args[0], args[1:]
	if len(childArgs) > 0 && childArgs[0] == "--" {
		childArgs = childArgs[1:]
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return &ExitError{Code: 127, Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	exe, err := opts.executable(path, image, childArgs, cfg.Launcher)
	if err != nil {
		return err
	}
	exe.SetStreams(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.exec {
		shutdown()
		return spawnExit(exe.Executable.Exec())
	}

	if cfg.Launcher.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Launcher.Timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	defer span.End()
	metrics := observability.DefaultSpawnMetrics()
	program := exe.Executable.Name()

	start := time.Now()
	child, err := process.Retry(ctx, process.RetryPolicyFromConfig(cfg.Launcher.Retry), func(attempt int) (*memexec.Child, error) {
		child, err := exe.Executable.Spawn()
		if err != nil && attempt > 1 {
			log.Debug("spawn attempt failed", logger.MergeWithError(logger.Fields(logger.FieldAttempt, attempt), err))
		}
		return child, err
	})
	metrics.RecordSpawn(ctx, program, err)
	if err != nil {
		observability.SetSpanError(span, err)
		return spawnExit(err)
	}

	relays := exe.relay(child)
	stopSignals := forwardSignals(child)
	stopSupervise := process.Supervise(ctx, child, cfg.Launcher.GracePeriod)

	status, err := child.Wait()
	stopSupervise()
	stopSignals()
	relays.Wait()
	if err != nil {
		observability.SetSpanError(span, err)
		return &ExitError{Code: 1, Err: err}
	}

	code, sig := exitStatus(status)
	metrics.RecordExit(ctx, program, code, sig, time.Since(start))
	log.Debug("child exited", logger.Fields(
		logger.FieldPID, child.ID(),
		logger.FieldProgram, program,
		logger.FieldStatus, status.String(),
	))

	if status.Success() {
		return nil
	}
	if _, ok := status.Signal(); ok {
		return &ExitError{Code: 128 + signalNumber(status)}
	}
	return &ExitError{Code: code}
}

func loadConfig(path string) (config.ServiceConfig, error) {
	var cfg config.ServiceConfig
	var loadOpts []config.LoaderOption
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		loadOpts = append(loadOpts, config.WithConfigFile(path))
	}
	if err := config.LoadConfig(serviceName, &cfg, loadOpts...); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func initTelemetry(ctx context.Context, cfg config.ServiceConfig) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}
	tel, err := observability.Setup(ctx, observability.ConfigFrom(cfg.Telemetry, cfg.Name, version.Get().Short(), cfg.Environment))
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Get("cli").Debug("telemetry shutdown", logger.ErrorFields("telemetry", err))
			}
		})
	}, nil
}

// launch is an Executable plus the streams memrun relays for piped stdio.
type launch struct {
	Executable *memexec.Executable

	in       io.Reader
	out, errOut io.Writer
}

func (o *options) executable(path string, image []byte, args []string, lc config.LauncherConfig) (*launch, error) {
	name := filepath.Base(path)
	if o.argv0 != "" {
		name = o.argv0
	}
	exe := memexec.New(name, image).Args(args...)

	if o.clearEnv {
		exe.EnvClear()
	}
	if o.envFile != "" {
		if err := exe.LoadEnvFile(o.envFile); err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
	}
	for _, kv := range o.env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, apperrors.InvalidInput("env", fmt.Sprintf("--env %q is not KEY=VALUE", kv))
		}
		exe.Env(key, value)
	}
	for _, key := range o.unset {
		exe.EnvRemove(key)
	}
	if o.dir != "" {
		exe.Dir(o.dir)
	}

	kinds := [3]string{pick(o.stdin, lc.DefaultStdin), pick(o.stdout, lc.DefaultStdout), pick(o.stderr, lc.DefaultStderr)}
	setters := [3]func(stdio.Stdio) *memexec.Executable{exe.Stdin, exe.Stdout, exe.Stderr}
	for i, k := range kinds {
		kind, err := stdio.ParseKind(k)
		if err != nil {
			return nil, err
		}
		setters[i](stdio.FromKind(kind))
	}
	return &launch{Executable: exe}, nil
}

func pick(flag, def string) string {
	if flag != "" {
		return flag
	}
	return def
}

// SetStreams sets where piped child streams are relayed.
func (l *launch) SetStreams(in io.Reader, out, errOut io.Writer) {
	l.in, l.out, l.errOut = in, out, errOut
}

// relay copies between memrun's streams and the child's pipes. The stdin
// pipe is taken from child so Wait does not close it under the copy.
func (l *launch) relay(child *memexec.Child) *sync.WaitGroup {
	var wg sync.WaitGroup
	if child.Stdin != nil {
		stdin := child.Stdin
		child.Stdin = nil
		// Not tracked: a read from a terminal may never return.
		go func() {
			_, _ = io.Copy(stdin, l.in)
			_ = stdin.Close()
		}()
	}
	if child.Stdout != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(l.out, child.Stdout)
			_ = child.Stdout.Close()
		}()
	}
	if child.Stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(l.errOut, child.Stderr)
			_ = child.Stderr.Close()
		}()
	}
	return &wg
}

func forwardSignals(child *memexec.Child) (stop func()) {
	ch := make(chan os.Signal, len(forwardedSignals))
	signal.Notify(ch, forwardedSignals...)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case sig := <-ch:
				if s, ok := sig.(syscall.Signal); ok {
					_ = child.Signal(s)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
		<-exited
	}
}

// exitStatus returns the exit code (-1 when signalled) and signal name.
func exitStatus(status memexec.ExitStatus) (int, string) {
	if code, ok := status.Code(); ok {
		return code, ""
	}
	if sig, ok := status.Signal(); ok {
		return -1, unix.SignalName(sig)
	}
	return -1, ""
}

func signalNumber(status memexec.ExitStatus) int {
	sig, _ := status.Signal()
	return int(sig)
}

// spawnExit maps a failure to start the program onto the shell's codes:
// 127 when something was not found, 126 otherwise.
func spawnExit(err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := apperrors.Errno(err); ok && errno == unix.ENOENT {
		return &ExitError{Code: 127, Err: err}
	}
	return &ExitError{Code: 126, Err: err}
}
