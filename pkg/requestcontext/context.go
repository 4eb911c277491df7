// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// Values are set by transport middleware (or directly in tests) and consumed
// by flows and stores. Keeping this package free of net/http lets the flow
// engine read session facts without pulling in transport code.
//
// Usage in flows (read values):
//
//	registrar := requestcontext.RegistrarID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithRegistrarID(ctx, "TheRegistrar")
package requestcontext

import (
	"context"
	"time"
)

type (
	registrarIDKey struct{}
	superuserKey   struct{}
	sessionIDKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// RegistrarID retrieves the acting registrar's client id from the context.
// Returns the empty string if no registrar is logged in.
func RegistrarID(ctx context.Context) string {
	if id, ok := ctx.Value(registrarIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRegistrarID injects the acting registrar's client id into the context.
func WithRegistrarID(ctx context.Context, registrarID string) context.Context {
	return context.WithValue(ctx, registrarIDKey{}, registrarID)
}

// Superuser reports whether the request runs with superuser privilege.
// Superuser bypasses ownership and most status checks, never existence or
// syntax checks.
func Superuser(ctx context.Context) bool {
	if b, ok := ctx.Value(superuserKey{}).(bool); ok {
		return b
	}
	return false
}

// WithSuperuser marks the request as running with superuser privilege.
func WithSuperuser(ctx context.Context, superuser bool) context.Context {
	return context.WithValue(ctx, superuserKey{}, superuser)
}

// SessionID retrieves the EPP session id from the context.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithSessionID injects the EPP session id into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// RequestID retrieves the correlation id for the current request.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context. Every timestamp a flow
// writes must come from here so that one command observes a single instant.
// Falls back to time.Now() for non-request contexts (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithTime injects a specific time into a context. Useful for:
//   - Flow unit tests that don't run the transport middleware
//   - Workers that need a consistent time within one batch
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
