package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/WAMF/kiss-amazon-sqs-queue/queue"
)

// RateLimitedGateway throttles Send calls with a token bucket. Receive and
// the lifecycle/teardown operations pass through untouched: slowing down
// acknowledgment or lease resets only widens the redelivery window.
type RateLimitedGateway struct {
	queue.Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway wraps a gateway with a send throttle of r events per
// second and the given burst.
func NewRateLimitedGateway(next queue.Gateway, r rate.Limit, burst int) *RateLimitedGateway {
	return &RateLimitedGateway{
		Gateway: next,
		limiter: rate.NewLimiter(r, burst),
	}
}

var _ queue.Gateway = (*RateLimitedGateway)(nil)

// Send waits for a limiter token before delegating. Context cancellation
// while waiting returns the context error.
func (g *RateLimitedGateway) Send(ctx context.Context, queueRef, body string, attributes map[string]string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.Gateway.Send(ctx, queueRef, body, attributes)
}
