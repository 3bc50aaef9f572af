// Package requesttime pins a single "now" per HTTP request.
// Issue, renewal and revocation dates stamped while handling one request all
// come from this value, so a response never disagrees with the ledger record
// it describes.
package requesttime

import (
	"context"
	"net/http"
	"time"

	"certledger/pkg/requestcontext"
)

// Middleware stores the request start time (UTC, second precision) in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Now retrieves the request-scoped time from context.
func Now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}

// WithTime injects a specific time into a context. Tests use it to move the
// clock past an expiry date without sleeping.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
