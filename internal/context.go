package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextRequestIDKey ctxKey = "requestID"

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(ContextRequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextRequestIDKey, requestID)
}

// WithTimeout returns a context with timeout, defaulting to 15 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 15 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
