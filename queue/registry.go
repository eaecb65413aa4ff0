package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry creates, caches, and resolves named queues against one backend
// gateway. It is the sole writer of the name-to-queue mapping; the queues it
// hands out are shared by reference.
type Registry struct {
	gw       Gateway
	defaults Config

	mu     sync.Mutex
	queues map[string]*Queue
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaults sets the policy applied when CreateQueue gets no explicit
// configuration and the MaxReceiveCount assumed when a queue is resolved
// from the backend alone.
func WithDefaults(cfg Config) RegistryOption {
	return func(r *Registry) { r.defaults = cfg }
}

// NewRegistry returns a registry bound to a gateway. The gateway is shared:
// Dispose never closes it, other registries may use the same connection.
func NewRegistry(gw Gateway, opts ...RegistryOption) *Registry {
	r := &Registry{
		gw:       gw,
		defaults: DefaultConfig(),
		queues:   make(map[string]*Queue),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateQueue provisions a backend queue and binds a lifecycle controller to
// it. It fails with ErrQueueAlreadyExists when the name is already registered
// locally or already present on the backend; nothing is provisioned in that
// case.
func (r *Registry) CreateQueue(ctx context.Context, name string, cfg Config, opts ...QueueOption) (*Queue, error) {
	if cfg == (Config{}) {
		cfg = r.defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create queue %s: %w", name, err)
	}

	r.mu.Lock()
	_, cached := r.queues[name]
	r.mu.Unlock()
	if cached {
		return nil, fmt.Errorf("create queue %s: %w", name, ErrQueueAlreadyExists)
	}

	// The backend may hold a queue created by another process.
	if _, err := r.gw.QueueRef(ctx, name); err == nil {
		return nil, fmt.Errorf("create queue %s: %w", name, ErrQueueAlreadyExists)
	} else if !errors.Is(err, ErrQueueDoesNotExist) {
		return nil, backendErr(fmt.Sprintf("probe queue %s", name), err)
	}

	attrs := map[string]string{
		AttrVisibilityTimeout: strconv.Itoa(int(cfg.LeaseSeconds())),
	}
	if retention, ok := cfg.RetentionSeconds(); ok {
		attrs[AttrRetentionPeriod] = strconv.Itoa(int(retention))
	}

	ref, err := r.gw.CreateQueue(ctx, name, attrs)
	if err != nil {
		return nil, backendErr(fmt.Sprintf("create queue %s", name), err)
	}

	q := NewQueue(name, ref, r.gw, cfg, opts...)
	r.mu.Lock()
	r.queues[name] = q
	r.mu.Unlock()

	log.Info().
		Str("queue", name).
		Str("queueRef", ref).
		Int("maxReceiveCount", cfg.MaxReceiveCount).
		Dur("leaseDuration", cfg.LeaseDuration).
		Msg("Queue created")
	return q, nil
}

// GetQueue resolves a queue from the local cache, falling back to the
// backend. On a cache miss the configuration is reconstructed best-effort
// from backend attributes; the retry threshold comes from the registry
// defaults since the backend does not persist that concept.
func (r *Registry) GetQueue(ctx context.Context, name string, opts ...QueueOption) (*Queue, error) {
	r.mu.Lock()
	q, ok := r.queues[name]
	r.mu.Unlock()
	if ok {
		return q, nil
	}

	ref, err := r.gw.QueueRef(ctx, name)
	if err != nil {
		if errors.Is(err, ErrQueueDoesNotExist) {
			return nil, fmt.Errorf("get queue %s: %w", name, ErrQueueDoesNotExist)
		}
		return nil, backendErr(fmt.Sprintf("resolve queue %s", name), err)
	}

	cfg := r.configFromBackend(ctx, ref)
	q = NewQueue(name, ref, r.gw, cfg, opts...)

	r.mu.Lock()
	// Another caller may have resolved the same name concurrently; the
	// first cached binding wins.
	if cur, cached := r.queues[name]; cached {
		q = cur
	} else {
		r.queues[name] = q
	}
	r.mu.Unlock()
	return q, nil
}

// configFromBackend rebuilds a Config from whatever attributes the backend
// reports. Attribute reads are best-effort: on failure the registry defaults
// stand.
func (r *Registry) configFromBackend(ctx context.Context, ref string) Config {
	cfg := r.defaults
	attrs, err := r.gw.Attributes(ctx, ref, []string{AttrVisibilityTimeout, AttrRetentionPeriod})
	if err != nil {
		log.Warn().
			Err(err).
			Str("queueRef", ref).
			Msg("Could not read queue attributes, using defaults")
		return cfg
	}
	if secs := attrInt(attrs, AttrVisibilityTimeout); secs > 0 {
		cfg.LeaseDuration = time.Duration(secs) * time.Second
	}
	if secs := attrInt(attrs, AttrRetentionPeriod); secs > 0 {
		cfg.RetentionPeriod = time.Duration(secs) * time.Second
	}
	return cfg
}

// DeleteQueue removes the backend queue and drops the cache entry. It fails
// with ErrQueueDoesNotExist when the backend has no matching queue.
func (r *Registry) DeleteQueue(ctx context.Context, name string) error {
	r.mu.Lock()
	q, cached := r.queues[name]
	r.mu.Unlock()

	ref := ""
	if cached {
		ref = q.Ref()
	} else {
		resolved, err := r.gw.QueueRef(ctx, name)
		if err != nil {
			if errors.Is(err, ErrQueueDoesNotExist) {
				return fmt.Errorf("delete queue %s: %w", name, ErrQueueDoesNotExist)
			}
			return backendErr(fmt.Sprintf("resolve queue %s", name), err)
		}
		ref = resolved
	}

	if err := r.gw.DeleteQueue(ctx, ref); err != nil {
		if errors.Is(err, ErrQueueDoesNotExist) {
			// Cache entry is stale either way.
			r.mu.Lock()
			delete(r.queues, name)
			r.mu.Unlock()
			return fmt.Errorf("delete queue %s: %w", name, ErrQueueDoesNotExist)
		}
		return backendErr(fmt.Sprintf("delete queue %s", name), err)
	}

	r.mu.Lock()
	delete(r.queues, name)
	r.mu.Unlock()

	log.Info().Str("queue", name).Msg("Queue deleted")
	return nil
}

// Dispose clears the local cache. The shared gateway handle is left open.
func (r *Registry) Dispose() {
	r.mu.Lock()
	r.queues = make(map[string]*Queue)
	r.mu.Unlock()
}
