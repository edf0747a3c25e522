package services

import "context"

type contextKey string

const (
	sessionIDKey   contextKey = "session_id"
	selectionIDKey contextKey = "selection_id"
	stepKey        contextKey = "step"
	workerIDKey    contextKey = "worker_id"
	requestIDKey   contextKey = "request_id"
)

// WithSessionID annotates context with the import session identifier.
func WithSessionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (int64, bool) {
	return int64FromContext(ctx, sessionIDKey)
}

// WithSelectionID annotates context with the selection identifier.
func WithSelectionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, selectionIDKey, id)
}

// SelectionIDFromContext extracts the selection identifier if present.
func SelectionIDFromContext(ctx context.Context) (int64, bool) {
	return int64FromContext(ctx, selectionIDKey)
}

// WithStep annotates context with the pipeline step name (fetch, hash,
// persist, thumbs).
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the pipeline step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, stepKey)
}

// WithWorkerID annotates context with the claiming worker identity.
func WithWorkerID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFromContext returns the worker identity if present.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, workerIDKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, requestIDKey)
}

func int64FromContext(ctx context.Context, key contextKey) (int64, bool) {
	v := ctx.Value(key)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
