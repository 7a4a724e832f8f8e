// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Tests inject them directly:
//
//	ctx = requestcontext.WithActor(ctx, addr)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Actor retrieves the authenticated wallet address from the context.
// Returns the zero address if not set.
func Actor(ctx context.Context) common.Address {
	if addr, ok := ctx.Value(actorKey{}).(common.Address); ok {
		return addr
	}
	return common.Address{}
}

// WithActor injects the authenticated wallet address into the context.
func WithActor(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, actorKey{}, addr)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now retrieves the request-scoped time from the context, falling back to
// time.Now for non-HTTP callers (workers, CLI, tests without injection).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time. Used by middleware and by service
// unit tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
