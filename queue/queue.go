package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IDGenerator produces client-side message ids. When set on a queue the
// generated id rides in the message body and survives redelivery and
// dead-letter forwarding; otherwise ids are backend-assigned.
type IDGenerator func() string

// UUIDGenerator returns random UUID message ids.
func UUIDGenerator() string {
	return uuid.NewString()
}

// Enqueuer is the capability a dead-letter target must provide. Any Queue
// satisfies it; so does anything else that can accept an envelope.
type Enqueuer interface {
	EnqueueEnvelope(ctx context.Context, env *Envelope) error
}

// leaseRecord is the local, ephemeral bookkeeping for one reservation.
type leaseRecord struct {
	token    string
	attempts int
	env      *Envelope
}

// Queue is the message lifecycle controller for one backend queue. It turns
// the backend's raw lease primitives into at-most-one-outstanding-reservation
// semantics with client-tracked attempt counts and requeue-vs-dead-letter
// routing.
//
// All methods are safe for concurrent use. The lease table is in-memory
// only: a process restart loses in-flight attempt counts, and recovery falls
// back on the backend's own (advisory) receive counter.
type Queue struct {
	name string
	ref  string
	gw   Gateway
	cfg  Config
	ser  Serializer
	ids  IDGenerator
	dlq  Enqueuer

	waitSeconds int32

	mu       sync.Mutex
	leases   map[string]*leaseRecord
	attempts map[string]int // persisted increments awaiting re-reservation
}

// QueueOption configures a Queue at construction time.
type QueueOption func(*Queue)

// WithSerializer sets the payload serializer. Without one, payloads must be
// string or []byte.
func WithSerializer(s Serializer) QueueOption {
	return func(q *Queue) { q.ser = s }
}

// WithIDGenerator enables client-side message ids.
func WithIDGenerator(g IDGenerator) QueueOption {
	return func(q *Queue) { q.ids = g }
}

// WithDeadLetter sets the dead-letter target for messages that exhaust
// their retry budget.
func WithDeadLetter(dlq Enqueuer) QueueOption {
	return func(q *Queue) { q.dlq = dlq }
}

// WithWaitTime sets the long-poll duration for Reserve. Zero (the default)
// issues a single non-blocking poll.
func WithWaitTime(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d < 0 {
			d = 0
		}
		if d > 20*time.Second { // SQS long-poll maximum
			d = 20 * time.Second
		}
		q.waitSeconds = int32(d / time.Second)
	}
}

// NewQueue binds a lifecycle controller to an existing backend queue
// reference. Most callers go through a Registry instead.
func NewQueue(name, ref string, gw Gateway, cfg Config, opts ...QueueOption) *Queue {
	q := &Queue{
		name:     name,
		ref:      ref,
		gw:       gw,
		cfg:      cfg,
		ser:      rawSerializer{},
		leases:   make(map[string]*leaseRecord),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Ref returns the backend queue reference.
func (q *Queue) Ref() string { return q.ref }

// Config returns the bound policy.
func (q *Queue) Config() Config { return q.cfg }

// AttemptCount reports the locally tracked delivery attempts for a message,
// whether from a live reservation or persisted by a reject awaiting
// re-reservation. Zero means the controller knows nothing about the id.
func (q *Queue) AttemptCount(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rec, ok := q.leases[id]; ok {
		return rec.attempts
	}
	return q.attempts[id]
}

// Enqueue sends a payload as a fresh message. No local lifecycle state is
// touched; a failure before the backend accepted the send means nothing was
// enqueued.
func (q *Queue) Enqueue(ctx context.Context, payload any) error {
	env := &Envelope{Payload: payload, CreatedAt: time.Now().UTC()}
	if q.ids != nil {
		env.ID = q.ids()
	}
	return q.EnqueueEnvelope(ctx, env)
}

// EnqueueEnvelope sends an envelope preserving its id and creation time.
// This is the path dead-letter forwarding uses.
func (q *Queue) EnqueueEnvelope(ctx context.Context, env *Envelope) error {
	data, err := q.ser.Serialize(env.Payload)
	if err != nil {
		if !errors.Is(err, ErrSerialization) {
			err = fmt.Errorf("%w: %s", ErrSerialization, err)
		}
		return err
	}
	body, err := encodeBody(env.ID, data, env.CreatedAt)
	if err != nil {
		return err
	}

	id, err := q.gw.Send(ctx, q.ref, body, nil)
	if err != nil {
		return backendErr(fmt.Sprintf("send to %s", q.name), err)
	}

	metricEnqueued.WithLabelValues(q.name).Inc()
	log.Debug().
		Str("queue", q.name).
		Str("messageId", firstNonEmpty(env.ID, id)).
		Msg("Message enqueued")
	return nil
}

// Reserve receives at most one message under the configured lease. It
// returns (nil, nil) when the queue has nothing available.
//
// Concurrent callers each get independent reservations of different
// messages; the backend guarantees at most one concurrent holder per lease.
func (q *Queue) Reserve(ctx context.Context) (*Envelope, error) {
	raw, err := q.gw.Receive(ctx, q.ref, q.cfg.LeaseSeconds(), q.waitSeconds)
	if err != nil {
		return nil, backendErr(fmt.Sprintf("receive from %s", q.name), err)
	}
	if raw == nil {
		return nil, nil
	}

	body, err := decodeBody(raw.Body)
	if err != nil {
		return nil, err
	}
	payload, err := q.ser.Deserialize(body.Payload)
	if err != nil {
		if !errors.Is(err, ErrDeserialization) {
			err = fmt.Errorf("%w: %s", ErrDeserialization, err)
		}
		return nil, err
	}

	now := time.Now().UTC()
	env := &Envelope{
		ID:      firstNonEmpty(body.ID, raw.ID),
		Payload: payload,
	}
	if body.CreatedAt != nil {
		env.CreatedAt = *body.CreatedAt
	} else if t := attrTime(raw.Attributes, AttrSentTimestamp); !t.IsZero() {
		env.CreatedAt = t
	} else {
		env.CreatedAt = now
	}
	if t := attrTime(raw.Attributes, AttrFirstReceiveTimestamp); !t.IsZero() {
		env.ProcessedAt = t
	} else {
		env.ProcessedAt = now
	}

	// Backend receive counts are advisory and may lag; a locally persisted
	// count from an earlier reject is the floor.
	attempt := attrInt(raw.Attributes, AttrReceiveCount)
	if attempt < 1 {
		attempt = 1
	}

	q.mu.Lock()
	if pending, ok := q.attempts[env.ID]; ok && pending > attempt {
		attempt = pending
	}
	delete(q.attempts, env.ID)
	q.leases[env.ID] = &leaseRecord{token: raw.LeaseToken, attempts: attempt, env: env}
	q.mu.Unlock()

	metricReserved.WithLabelValues(q.name).Inc()
	log.Debug().
		Str("queue", q.name).
		Str("messageId", env.ID).
		Int("attempt", attempt).
		Msg("Message reserved")
	return env, nil
}

// Acknowledge completes a reserved message by deleting it from the backend.
// The lease record is retired only after the delete succeeds, so a failed
// acknowledgment can be retried with the same id.
func (q *Queue) Acknowledge(ctx context.Context, id string) error {
	q.mu.Lock()
	rec, ok := q.leases[id]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("acknowledge %s: %w", id, ErrMessageNotFound)
	}

	if err := q.gw.Delete(ctx, q.ref, rec.token); err != nil {
		return backendErr(fmt.Sprintf("delete %s from %s", id, q.name), err)
	}

	q.mu.Lock()
	if cur, live := q.leases[id]; live && cur.token == rec.token {
		delete(q.leases, id)
		delete(q.attempts, id)
	}
	rec.env.AcknowledgedAt = time.Now().UTC()
	q.mu.Unlock()

	metricAcknowledged.WithLabelValues(q.name).Inc()
	log.Debug().
		Str("queue", q.name).
		Str("messageId", id).
		Msg("Message acknowledged")
	return nil
}

// Reject fails a reserved message. With requeue true and retry budget left
// the message is made immediately visible again under its original id and
// body; otherwise it is deleted from the source queue and, when the attempt
// count has reached the threshold and a dead-letter target is configured,
// forwarded there.
//
// Explicit requeue=false always terminates the message regardless of the
// counter. A dead-letter forward that fails after the source delete returns
// ErrDeadLetterDelivery: the message is gone from both queues.
func (q *Queue) Reject(ctx context.Context, id string, requeue bool) (*Envelope, error) {
	q.mu.Lock()
	rec, ok := q.leases[id]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("reject %s: %w", id, ErrMessageNotFound)
	}
	delivered := rec.attempts
	newAttempt := delivered + 1
	// Persist the increment before any backend call so a crash between the
	// decision and the call does not lose it for the next reservation.
	q.attempts[id] = newAttempt
	q.mu.Unlock()

	// A message may be delivered up to MaxReceiveCount times; requeueing
	// past that would grant it a delivery beyond the budget.
	if requeue && delivered < q.cfg.MaxReceiveCount {
		if err := q.gw.ResetLease(ctx, q.ref, rec.token, 0); err != nil {
			return nil, backendErr(fmt.Sprintf("requeue %s on %s", id, q.name), err)
		}
		q.mu.Lock()
		if cur, live := q.leases[id]; live && cur.token == rec.token {
			delete(q.leases, id)
		}
		q.mu.Unlock()

		metricRejected.WithLabelValues(q.name, outcomeRequeued).Inc()
		log.Debug().
			Str("queue", q.name).
			Str("messageId", id).
			Int("attempt", newAttempt).
			Msg("Message requeued")
		return rec.env, nil
	}

	// Terminal: remove from the source queue first.
	if err := q.gw.Delete(ctx, q.ref, rec.token); err != nil {
		return nil, backendErr(fmt.Sprintf("delete %s from %s", id, q.name), err)
	}
	q.mu.Lock()
	if cur, live := q.leases[id]; live && cur.token == rec.token {
		delete(q.leases, id)
	}
	delete(q.attempts, id)
	q.mu.Unlock()

	if q.dlq != nil && delivered >= q.cfg.MaxReceiveCount {
		if err := q.dlq.EnqueueEnvelope(ctx, rec.env); err != nil {
			metricDeadLetterFailures.WithLabelValues(q.name).Inc()
			log.Error().
				Err(err).
				Str("queue", q.name).
				Str("messageId", id).
				Msg("Dead letter enqueue failed after source delete - message lost")
			return rec.env, fmt.Errorf("dead letter %s from %s: %w", id, q.name, errors.Join(ErrDeadLetterDelivery, err))
		}
		metricRejected.WithLabelValues(q.name, outcomeDeadlettered).Inc()
		log.Info().
			Str("queue", q.name).
			Str("messageId", id).
			Int("attempt", newAttempt).
			Msg("Message dead-lettered")
		return rec.env, nil
	}

	metricRejected.WithLabelValues(q.name, outcomeDropped).Inc()
	log.Debug().
		Str("queue", q.name).
		Str("messageId", id).
		Int("attempt", newAttempt).
		Msg("Message dropped")
	return rec.env, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
