// Package observability wires OpenTelemetry tracing and metrics for spawned
// children.
//
//	tel, err := observability.Setup(ctx, observability.ConfigFrom(cfg.Telemetry, "memrun", version, env))
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
//	defer span.End()
//
//	m := observability.DefaultSpawnMetrics()
//	m.RecordSpawn(ctx, "cat", err)
//
// Instruments created before Setup forward to the installed provider
// through the otel global delegate, so DefaultSpawnMetrics is safe to call
// at any time.
package observability
