package logger

import "context"

type contextKey string

// ContextWithRunID stores a run ID picked up by WithContext.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey(FieldRunID), id)
}

// ContextWithTrace stores trace and span IDs picked up by WithContext.
func ContextWithTrace(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, contextKey(FieldTraceID), traceID)
	return context.WithValue(ctx, contextKey(FieldSpanID), spanID)
}

// RunIDFromContext returns the run ID stored by ContextWithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey(FieldRunID)).(string)
	return id
}

// WithContext returns a logger carrying the run and trace IDs found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.zl.With()
	added := false
	for _, key := range [...]string{FieldRunID, FieldTraceID, FieldSpanID} {
		if v, ok := ctx.Value(contextKey(key)).(string); ok && v != "" {
			zc = zc.Str(key, v)
			added = true
		}
	}
	if !added {
		return l
	}
	return l.derive(zc)
}
