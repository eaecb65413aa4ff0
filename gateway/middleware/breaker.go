// Package middleware provides opt-in gateway decorators. The lifecycle
// controller itself never retries or sheds backend calls; callers that want
// transport resilience wrap the gateway with these.
package middleware

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/WAMF/kiss-amazon-sqs-queue/queue"
)

// BreakerGateway fails fast once the backend has been failing, instead of
// paying a full network round trip per call. While the breaker is open every
// operation returns gobreaker.ErrOpenState.
type BreakerGateway struct {
	next    queue.Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps a gateway with a circuit breaker. A zero Settings
// value gets gobreaker defaults plus a state-change log hook.
func NewBreakerGateway(next queue.Gateway, settings gobreaker.Settings) *BreakerGateway {
	if settings.Name == "" {
		settings.Name = "queue-gateway"
	}
	if settings.IsSuccessful == nil {
		// A missing queue is a business outcome, not a transport failure;
		// registry existence probes must not trip the breaker.
		settings.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, queue.ErrQueueDoesNotExist)
		}
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Gateway circuit breaker state changed")
		}
	}
	return &BreakerGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

var _ queue.Gateway = (*BreakerGateway)(nil)

func (g *BreakerGateway) Send(ctx context.Context, queueRef, body string, attributes map[string]string) (string, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Send(ctx, queueRef, body, attributes)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *BreakerGateway) Receive(ctx context.Context, queueRef string, leaseSeconds, waitSeconds int32) (*queue.RawMessage, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Receive(ctx, queueRef, leaseSeconds, waitSeconds)
	})
	if err != nil {
		return nil, err
	}
	return out.(*queue.RawMessage), nil
}

func (g *BreakerGateway) Delete(ctx context.Context, queueRef, leaseToken string) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.next.Delete(ctx, queueRef, leaseToken)
	})
	return err
}

func (g *BreakerGateway) ResetLease(ctx context.Context, queueRef, leaseToken string, seconds int32) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.next.ResetLease(ctx, queueRef, leaseToken, seconds)
	})
	return err
}

func (g *BreakerGateway) CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.CreateQueue(ctx, name, attributes)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *BreakerGateway) DeleteQueue(ctx context.Context, queueRef string) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.next.DeleteQueue(ctx, queueRef)
	})
	return err
}

func (g *BreakerGateway) QueueRef(ctx context.Context, name string) (string, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.QueueRef(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *BreakerGateway) Attributes(ctx context.Context, queueRef string, names []string) (map[string]string, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Attributes(ctx, queueRef, names)
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]string), nil
}
