// Package requestcontext provides HTTP-independent context accessors for
// values that are set at an entry point (HTTP middleware, the scheduler) and
// consumed deeper in the sync pipeline.
//
// Usage at an entry point:
//
//	ctx = requestcontext.WithPassID(ctx, uuid.NewString())
//	ctx = requestcontext.WithTime(ctx, time.Now())
//
// Usage in services:
//
//	passID := requestcontext.PassID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	passIDKey      struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyPassID      = passIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestID retrieves the HTTP correlation ID, "" when the context did not
// originate from a request.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// PassID retrieves the identifier of the sync pass the context belongs to.
func PassID(ctx context.Context) string {
	if passID, ok := ctx.Value(ContextKeyPassID).(string); ok {
		return passID
	}
	return ""
}

func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, ContextKeyPassID, passID)
}

// Now retrieves the context-scoped time.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context so every timestamp taken
// during one pass agrees.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
