// Package requestcontext carries request-scoped values (request id, request
// time, authenticated operator, client origin) through context.Context.
package requestcontext

import (
	"context"
	"time"
)

type (
	contextKeyRequestID   struct{}
	contextKeyRequestTime struct{}
	contextKeyOperator    struct{}
	contextKeyClient      struct{}
)

// Client describes where a request came from.
type Client struct {
	IP    string
	Agent string
}

// WithRequestID stores the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, requestID)
}

// RequestID returns the request id or "" when unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins "now" for everything downstream of ctx.
// Ledger dates carry second precision, so the stored value is truncated and
// normalised to UTC.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t.UTC().Truncate(time.Second))
}

// Now retrieves the request-scoped time from context.
// Falls back to the wall clock (truncated to seconds) when unset, which is the
// case for CLI commands and tests that do not pin time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC().Truncate(time.Second)
}

// WithOperator stores the authenticated operator subject.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKeyOperator{}, subject)
}

// Operator returns the authenticated operator subject or "".
func Operator(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyOperator{}).(string); ok {
		return v
	}
	return ""
}

// WithClient stores the request origin.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, contextKeyClient{}, c)
}

// ClientOf returns the request origin, zero when unset.
func ClientOf(ctx context.Context) Client {
	c, _ := ctx.Value(contextKeyClient{}).(Client)
	return c
}
