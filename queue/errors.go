package queue

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the lifecycle controller and the registry.
// All of them are matchable with errors.Is; transport failures additionally
// carry the underlying gateway error in the same chain.
var (
	// ErrBackendUnavailable wraps transport/network failures from the
	// backend gateway. The controller never retries these itself.
	ErrBackendUnavailable = errors.New("queue backend unavailable")

	// ErrSerialization means a payload could not be rendered to the
	// backend transport form.
	ErrSerialization = errors.New("payload serialization failed")

	// ErrDeserialization means a received body could not be parsed back
	// into a payload (invalid body or missing payload field).
	ErrDeserialization = errors.New("payload deserialization failed")

	// ErrMessageNotFound means the operation referenced a message id with
	// no live lease record: already acknowledged, already rejected,
	// expired, or never reserved by this controller instance.
	ErrMessageNotFound = errors.New("message not found")

	// ErrQueueAlreadyExists is returned by CreateQueue when the name is
	// registered locally or a queue with that name exists on the backend.
	ErrQueueAlreadyExists = errors.New("queue already exists")

	// ErrQueueDoesNotExist is returned when a queue is absent both from
	// the local cache and from the backend.
	ErrQueueDoesNotExist = errors.New("queue does not exist")

	// ErrDeadLetterDelivery means the source delete succeeded but the
	// dead-letter enqueue failed. The message is gone from both queues;
	// callers should alert on this, there is no local copy to recover.
	ErrDeadLetterDelivery = errors.New("dead letter delivery failed")
)

// backendErr tags a gateway failure with ErrBackendUnavailable while keeping
// the original error in the chain.
func backendErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrBackendUnavailable, err))
}
