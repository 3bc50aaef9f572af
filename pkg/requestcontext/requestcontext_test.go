package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Equal(t, "req-1", RequestID(WithRequestID(ctx, "req-1")))
}

func TestWithTime_TruncatesToSecondsUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	pinned := time.Date(2025, 3, 1, 10, 30, 15, 987654321, loc)

	got := Now(WithTime(context.Background(), pinned))

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Nanosecond())
	assert.True(t, got.Equal(pinned.Truncate(time.Second)))
}

func TestNow_FallbackToRealTime(t *testing.T) {
	before := time.Now().Truncate(time.Second)
	got := Now(context.Background())
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestOperator(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Operator(ctx))
	assert.Equal(t, "ops@issuer", Operator(WithOperator(ctx, "ops@issuer")))
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	assert.Zero(t, ClientOf(ctx))

	c := Client{IP: "203.0.113.7", Agent: "curl"}
	assert.Equal(t, c, ClientOf(WithClient(ctx, c)))
}
