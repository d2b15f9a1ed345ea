package logger

import "time"

// Field keys shared by every memexec log line.
const (
	FieldComponent = "component"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"
	FieldRunID     = "run_id"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"

	FieldPID      = "pid"
	FieldProgram  = "program"
	FieldArgc     = "argc"
	FieldImageLen = "image_bytes"
	FieldErrno    = "errno"
	FieldSignal   = "signal"
	FieldExitCode = "exit_code"
	FieldStatus   = "status"
	FieldStream   = "stream"
	FieldAttempt  = "attempt"
)

// Fields builds a field map from alternating keys and values. Pairs whose key
// is not a string, and a trailing key without a value, are dropped.
//
//	log.Debug("spawned", logger.Fields(logger.FieldPID, pid, logger.FieldProgram, name))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields describes a failed operation.
func ErrorFields(op string, err error) map[string]interface{} {
	return MergeWithError(Fields(FieldOperation, op), err)
}

// ProcessFields identifies a child process.
func ProcessFields(program string, pid int) map[string]interface{} {
	return Fields(FieldProgram, program, FieldPID, pid)
}

// DurationFields describes a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return MergeWithDuration(Fields(FieldOperation, op), d)
}

// MergeWithError adds err to fields, allocating the map when it is nil.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	return merge(fields, FieldError, err.Error())
}

// MergeWithDuration adds d in milliseconds to fields.
func MergeWithDuration(fields map[string]interface{}, d time.Duration) map[string]interface{} {
	return merge(fields, FieldDuration, d.Milliseconds())
}

func merge(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields[key] = value
	return fields
}
