package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/memexec/config"
	"github.com/kbukum/memexec/logger"
)

const instrumentationName = "github.com/kbukum/memexec"

// Config configures OTLP/HTTP export of spans and metrics.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the collector host:port.
	Endpoint string
	Insecure bool
	// SampleRate is the sampling ratio in [0, 1].
	SampleRate float64
	// MetricInterval is the export period. Zero keeps the SDK default.
	MetricInterval time.Duration
}

// ConfigFrom builds a Config from the telemetry section of a service config.
func ConfigFrom(tc config.TelemetryConfig, serviceName, serviceVersion, environment string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    environment,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		SampleRate:     tc.SampleRate,
		MetricInterval: tc.MetricInterval,
	}
}

// Telemetry owns the installed providers.
type Telemetry struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup creates both providers over one resource and installs them, with
// W3C trace context and baggage propagation, as the otel globals.
// Instruments and tracers obtained earlier start exporting through them.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Get("observability").Info("telemetry initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
		"metric_interval", cfg.MetricInterval.String(),
	))
	return &Telemetry{Tracer: tp, Meter: mp}, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.Meter != nil {
		errs = append(errs, t.Meter.Shutdown(ctx))
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// newResource merges service identity over the SDK defaults. Schemaless keeps
// the merge free of semconv schema URL conflicts.
func newResource(serviceName, serviceVersion, environment string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
			attribute.String("deployment.environment", environment),
		),
	)
}
