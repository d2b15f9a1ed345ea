//go:build linux

package process

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/logger"
	"github.com/kbukum/memexec/memexec"
	"github.com/kbukum/memexec/observability"
	"github.com/kbukum/memexec/stdio"
)

// Run spawns cmd with stdout and stderr piped, feeds it Stdin and waits for
// it to exit. When ctx ends first the child gets SIGTERM, then SIGKILL after
// the grace period.
//
// A child that exits unsuccessfully yields both a Result and a
// NON_ZERO_EXIT error; a child stopped by ctx yields a Result and a TIMEOUT
// error. Spawn failures return a nil Result.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.RunID == "" {
		cmd.RunID = uuid.NewString()
	}
	ctx = logger.ContextWithRunID(ctx, cmd.RunID)

	ctx, span := observability.StartSpan(ctx, observability.SpanRun, trace.WithAttributes(
		attribute.String(observability.AttrProgram, cmd.Name),
		attribute.String(observability.AttrRunID, cmd.RunID),
		attribute.Int(observability.AttrImageBytes, len(cmd.Image)),
		attribute.Int(observability.AttrArgc, len(cmd.Args)+1),
	))
	defer span.End()

	log := logger.Get("process").WithContext(ctx)
	metrics := observability.DefaultSpawnMetrics()

	exe, err := cmd.executable(ctx)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}

	start := time.Now()
	child, err := spawn(ctx, exe)
	metrics.RecordSpawn(ctx, cmd.Name, err)
	if err != nil {
		observability.SetSpanError(span, err)
		log.Debug("spawn failed", logger.MergeWithError(logger.Fields(logger.FieldProgram, cmd.Name), err))
		return nil, err
	}
	span.SetAttributes(attribute.Int(observability.AttrPID, child.ID()))

	copyDone := feedStdin(child, cmd.Stdin)
	stopWatch := Supervise(ctx, child, cmd.gracePeriod())

	waitCtx, waitSpan := observability.StartSpan(ctx, observability.SpanWait)
	out, err := child.WaitWithOutput()
	waitSpan.End()
	stopWatch()
	duration := time.Since(start)

	if err != nil {
		metrics.RecordExit(waitCtx, cmd.Name, -1, "", duration)
		observability.SetSpanError(span, err)
		return nil, err
	}

	if copyErr := stdinResult(copyDone); copyErr != nil {
		log.Warn("stdin copy failed", logger.ErrorFields("stdin", copyErr))
	}

	result := newResult(cmd.RunID, child.ID(), out, duration)
	metrics.RecordExit(ctx, cmd.Name, result.ExitCode, result.Signal, duration)
	span.SetAttributes(attribute.Int(observability.AttrExitCode, result.ExitCode))
	if result.Signal != "" {
		span.SetAttributes(attribute.String(observability.AttrSignal, result.Signal))
	}

	fields := logger.MergeWithDuration(logger.ProcessFields(cmd.Name, result.PID), duration)
	fields[logger.FieldStatus] = out.Status.String()
	log.Debug("run finished", fields)

	switch {
	case result.Success():
		return result, nil
	case ctx.Err() != nil:
		err = apperrors.Timeout(cmd.Name).WithCause(ctx.Err()).WithDetail("status", out.Status.String())
	default:
		err = apperrors.NonZeroExit(cmd.Name, out.Status.String()).WithDetail("exit_code", result.ExitCode)
	}
	observability.SetSpanError(span, err)
	return result, err
}

// executable translates cmd into a builder with all three streams routed.
func (cmd Command) executable(ctx context.Context) (*memexec.Executable, error) {
	exe := memexec.New(cmd.Name, cmd.Image).
		Args(cmd.Args...).
		Stdout(stdio.Piped()).
		Stderr(stdio.Piped()).
		WithLogger(logger.Get("memexec").WithContext(ctx))
	if cmd.ClearEnv {
		exe.EnvClear()
	}
	if cmd.EnvFile != "" {
		if err := exe.LoadEnvFile(cmd.EnvFile); err != nil {
			return nil, apperrors.SpawnSetup("env file", err).WithDetail("path", cmd.EnvFile)
		}
	}
	for _, kv := range cmd.Env {
		key, value, _ := strings.Cut(kv, "=")
		exe.Env(key, value)
	}
	if cmd.Dir != "" {
		exe.Dir(cmd.Dir)
	}
	if cmd.Stdin != nil {
		exe.Stdin(stdio.Piped())
	} else {
		exe.Stdin(stdio.Null())
	}
	return exe, nil
}

func spawn(ctx context.Context, exe *memexec.Executable) (*memexec.Child, error) {
	_, span := observability.StartSpan(ctx, observability.SpanSpawn)
	defer span.End()
	child, err := exe.Spawn()
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(observability.AttrPID, child.ID()))
	return child, nil
}

// feedStdin detaches the stdin pipe from child so WaitWithOutput leaves it to
// the copy goroutine, which closes it once src is exhausted.
func feedStdin(child *memexec.Child, src io.Reader) <-chan error {
	if child.Stdin == nil || src == nil {
		return nil
	}
	stdin := child.Stdin
	child.Stdin = nil
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(stdin, src)
		_ = stdin.Close()
		done <- err
	}()
	return done
}

// stdinResult reports a finished copy's error. A child that exits without
// reading all of its input is not an error.
func stdinResult(done <-chan error) error {
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		if err == nil || stderrors.Is(err, unix.EPIPE) {
			return nil
		}
		return err
	default:
		return nil
	}
}

// Supervise sends SIGTERM to child once ctx ends and SIGKILL if it is still
// running after grace. Call the returned stop function once the child has
// been reaped.
func Supervise(ctx context.Context, child *memexec.Child, grace time.Duration) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
		case <-quit:
			return
		}
		log := logger.Get("process").WithContext(ctx)
		log.Debug("context done, terminating child", logger.Fields(logger.FieldPID, child.ID(), logger.FieldSignal, "SIGTERM"))
		if err := child.Signal(unix.SIGTERM); err != nil {
			return
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			log.Debug("grace period elapsed, killing child", logger.Fields(logger.FieldPID, child.ID(), logger.FieldSignal, "SIGKILL"))
			_ = child.Kill()
		case <-quit:
		}
	}()
	return func() {
		close(quit)
		<-exited
	}
}
