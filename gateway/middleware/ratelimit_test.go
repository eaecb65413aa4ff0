package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	ctx := context.Background()
	next := &flakyGateway{}
	g := NewRateLimitedGateway(next, 1, 2)

	_, err := g.Send(ctx, "fake://q", "one", nil)
	require.NoError(t, err)
	_, err = g.Send(ctx, "fake://q", "two", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestRateLimitedSendHonorsCancelledContext(t *testing.T) {
	next := &flakyGateway{}
	// Zero sustained rate with an exhausted burst: Wait can never succeed.
	g := NewRateLimitedGateway(next, rate.Limit(0), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Send(ctx, "fake://q", "body", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, next.calls, "backend must not be reached without a token")
}

func TestRateLimitedReceivePassesThrough(t *testing.T) {
	next := &flakyGateway{}
	g := NewRateLimitedGateway(next, rate.Limit(0), 0)

	// Only Send is throttled.
	raw, err := g.Receive(context.Background(), "fake://q", 30, 0)
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Equal(t, 1, next.calls)
}
