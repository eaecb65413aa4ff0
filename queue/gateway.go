// Package queue implements a message lifecycle controller over a remote
// lease-based queue backend: reserve with a visibility lease, acknowledge by
// delete, reject with client-tracked retry counts and dead-letter routing.
package queue

import "context"

// RawMessage is one message as delivered by the backend gateway.
type RawMessage struct {
	// ID is the backend-assigned message id.
	ID string
	// Body is the transport body.
	Body string
	// LeaseToken is the opaque credential for Delete/ResetLease on this
	// reservation. It is invalid after a successful Delete and replaced
	// by a fresh token on every redelivery.
	LeaseToken string
	// Attributes carries backend metadata (sent timestamp, receive
	// count, ...). Advisory only; keys are backend-specific.
	Attributes map[string]string
}

// Well-known attribute keys a gateway may populate on RawMessage and report
// from Attributes. They mirror the SQS attribute names; timestamps are
// milliseconds since epoch, durations are seconds.
const (
	AttrSentTimestamp         = "SentTimestamp"
	AttrFirstReceiveTimestamp = "ApproximateFirstReceiveTimestamp"
	AttrReceiveCount          = "ApproximateReceiveCount"
	AttrVisibilityTimeout     = "VisibilityTimeout"
	AttrRetentionPeriod       = "MessageRetentionPeriod"
)

// Gateway is the backend queue service contract consumed by the controller
// and the registry. Implementations shape these calls onto the concrete
// backend API; they do not add retry or lifecycle semantics of their own.
type Gateway interface {
	// Send enqueues a body and returns the backend-assigned message id.
	Send(ctx context.Context, queueRef, body string, attributes map[string]string) (string, error)

	// Receive returns at most one message, leased for leaseSeconds, long
	// polling up to waitSeconds. A nil message with nil error means the
	// queue had nothing available.
	Receive(ctx context.Context, queueRef string, leaseSeconds, waitSeconds int32) (*RawMessage, error)

	// Delete removes the message held by leaseToken.
	Delete(ctx context.Context, queueRef, leaseToken string) error

	// ResetLease changes the remaining lease to the given duration.
	// Zero makes the message immediately visible again.
	ResetLease(ctx context.Context, queueRef, leaseToken string, seconds int32) error

	// CreateQueue provisions a queue and returns its reference.
	CreateQueue(ctx context.Context, name string, attributes map[string]string) (string, error)

	// DeleteQueue removes the queue. Returns ErrQueueDoesNotExist if the
	// backend has no such queue.
	DeleteQueue(ctx context.Context, queueRef string) error

	// QueueRef resolves a queue name to its reference. Returns
	// ErrQueueDoesNotExist if the backend has no such queue.
	QueueRef(ctx context.Context, name string) (string, error)

	// Attributes reads the named queue attributes.
	Attributes(ctx context.Context, queueRef string, names []string) (map[string]string, error)
}
