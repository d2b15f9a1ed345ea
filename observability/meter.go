package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"golang.org/x/sys/unix"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/logger"
)

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	), nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// SpawnMetrics holds the launcher instruments.
type SpawnMetrics struct {
	spawnTotal     metric.Int64Counter
	execFailures   metric.Int64Counter
	childrenActive metric.Int64UpDownCounter
	runDuration    metric.Float64Histogram
	exitCode       metric.Int64Counter
}

// NewSpawnMetrics creates the launcher instruments on meter.
func NewSpawnMetrics(meter metric.Meter) (*SpawnMetrics, error) {
	spawnTotal, err := meter.Int64Counter("memexec.spawn.total",
		metric.WithDescription("Spawn attempts by program and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memexec.spawn.total counter: %w", err)
	}

	execFailures, err := meter.Int64Counter("memexec.exec.failures",
		metric.WithDescription("Children that failed before the new image started, by errno"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memexec.exec.failures counter: %w", err)
	}

	childrenActive, err := meter.Int64UpDownCounter("memexec.children.active",
		metric.WithDescription("Spawned children not yet reaped"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memexec.children.active gauge: %w", err)
	}

	runDuration, err := meter.Float64Histogram("memexec.run.duration",
		metric.WithDescription("Wall time from spawn to reap"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memexec.run.duration histogram: %w", err)
	}

	exitCode, err := meter.Int64Counter("memexec.exit.code",
		metric.WithDescription("Reaped children by exit code or terminating signal"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memexec.exit.code counter: %w", err)
	}

	return &SpawnMetrics{
		spawnTotal:     spawnTotal,
		execFailures:   execFailures,
		childrenActive: childrenActive,
		runDuration:    runDuration,
		exitCode:       exitCode,
	}, nil
}

var (
	defaultMetrics     *SpawnMetrics
	defaultMetricsOnce sync.Once
)

// DefaultSpawnMetrics returns instruments on the global meter. If they cannot
// be created, it logs the error and returns no-op instruments.
func DefaultSpawnMetrics() *SpawnMetrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewSpawnMetrics(Meter(instrumentationName))
		if err != nil {
			logger.Get("observability").Warn("spawn metrics disabled", logger.ErrorFields("metrics", err))
			m, _ = NewSpawnMetrics(noop.NewMeterProvider().Meter(instrumentationName))
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordSpawn counts a spawn attempt. A failed attempt is labelled with its
// error code, and exec failures additionally count by errno.
func (m *SpawnMetrics) RecordSpawn(ctx context.Context, program string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.ErrCodeInternal)
		if appErr, ok := apperrors.AsAppError(err); ok {
			outcome = string(appErr.Code)
		}
	}
	m.spawnTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("program", program),
		attribute.String("outcome", outcome),
	))

	if apperrors.IsCode(err, apperrors.ErrCodeExecFailed) {
		errno := "unknown"
		if e, ok := apperrors.Errno(err); ok {
			errno = unix.ErrnoName(e)
		}
		m.execFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("program", program),
			attribute.String("errno", errno),
		))
	}
	if err == nil {
		m.childrenActive.Add(ctx, 1, metric.WithAttributes(attribute.String("program", program)))
	}
}

// RecordExit records a reaped child. code is -1 when a signal terminated it.
func (m *SpawnMetrics) RecordExit(ctx context.Context, program string, code int, signal string, d time.Duration) {
	programAttr := attribute.String("program", program)
	m.childrenActive.Add(ctx, -1, metric.WithAttributes(programAttr))
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(programAttr))

	attrs := []attribute.KeyValue{programAttr, attribute.String("code", strconv.Itoa(code))}
	if signal != "" {
		attrs = append(attrs, attribute.String("signal", signal))
	}
	m.exitCode.Add(ctx, 1, metric.WithAttributes(attrs...))
}
