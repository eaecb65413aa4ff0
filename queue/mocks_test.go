package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// fakeGateway is an in-memory backend with SQS-like lease semantics:
// receive hides a message and hands out a one-shot token, reset-to-zero
// makes it visible again under a fresh token on the next receive.
type fakeGateway struct {
	mu      sync.Mutex
	queues  map[string][]*fakeMessage // ref -> messages in arrival order
	refs    map[string]string         // name -> ref
	attrs   map[string]map[string]string
	nextID  int
	nextTok int

	createCalls int

	// Error injection. SendErrFor keys by queue ref.
	SendErr    error
	SendErrFor map[string]error
	ReceiveErr error
	DeleteErr  error
	ResetErr   error
}

type fakeMessage struct {
	id           string
	body         string
	sentAt       time.Time
	firstReceive time.Time
	receiveCount int
	token        string // empty while visible
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		queues: make(map[string][]*fakeMessage),
		refs:   make(map[string]string),
		attrs:  make(map[string]map[string]string),
	}
}

func (g *fakeGateway) Send(_ context.Context, queueRef, body string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SendErr != nil {
		return "", g.SendErr
	}
	if err, ok := g.SendErrFor[queueRef]; ok && err != nil {
		return "", err
	}
	if _, ok := g.queues[queueRef]; !ok {
		return "", fmt.Errorf("no such queue: %s", queueRef)
	}
	g.nextID++
	msg := &fakeMessage{
		id:     fmt.Sprintf("m-%d", g.nextID),
		body:   body,
		sentAt: time.Now().UTC(),
	}
	g.queues[queueRef] = append(g.queues[queueRef], msg)
	return msg.id, nil
}

func (g *fakeGateway) Receive(_ context.Context, queueRef string, _, _ int32) (*RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ReceiveErr != nil {
		return nil, g.ReceiveErr
	}
	for _, msg := range g.queues[queueRef] {
		if msg.token != "" {
			continue
		}
		g.nextTok++
		msg.token = fmt.Sprintf("t-%d", g.nextTok)
		msg.receiveCount++
		if msg.firstReceive.IsZero() {
			msg.firstReceive = time.Now().UTC()
		}
		return &RawMessage{
			ID:         msg.id,
			Body:       msg.body,
			LeaseToken: msg.token,
			Attributes: map[string]string{
				AttrSentTimestamp:         strconv.FormatInt(msg.sentAt.UnixMilli(), 10),
				AttrFirstReceiveTimestamp: strconv.FormatInt(msg.firstReceive.UnixMilli(), 10),
				AttrReceiveCount:          strconv.Itoa(msg.receiveCount),
			},
		}, nil
	}
	return nil, nil
}

func (g *fakeGateway) Delete(_ context.Context, queueRef, leaseToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.DeleteErr != nil {
		return g.DeleteErr
	}
	msgs := g.queues[queueRef]
	for i, msg := range msgs {
		if msg.token == leaseToken {
			g.queues[queueRef] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("ReceiptHandleIsInvalid: %s", leaseToken)
}

func (g *fakeGateway) ResetLease(_ context.Context, queueRef, leaseToken string, _ int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ResetErr != nil {
		return g.ResetErr
	}
	for _, msg := range g.queues[queueRef] {
		if msg.token == leaseToken {
			msg.token = ""
			return nil
		}
	}
	return fmt.Errorf("ReceiptHandleIsInvalid: %s", leaseToken)
}

func (g *fakeGateway) CreateQueue(_ context.Context, name string, attributes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	ref := "fake://" + name
	g.refs[name] = ref
	g.queues[ref] = nil
	copied := make(map[string]string, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}
	g.attrs[ref] = copied
	return ref, nil
}

func (g *fakeGateway) DeleteQueue(_ context.Context, queueRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.queues[queueRef]; !ok {
		return ErrQueueDoesNotExist
	}
	delete(g.queues, queueRef)
	delete(g.attrs, queueRef)
	for name, ref := range g.refs {
		if ref == queueRef {
			delete(g.refs, name)
		}
	}
	return nil
}

func (g *fakeGateway) QueueRef(_ context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.refs[name]
	if !ok {
		return "", ErrQueueDoesNotExist
	}
	return ref, nil
}

func (g *fakeGateway) Attributes(_ context.Context, queueRef string, names []string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.attrs[queueRef]
	if !ok {
		return nil, ErrQueueDoesNotExist
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		if v, found := stored[n]; found {
			out[n] = v
		}
	}
	return out, nil
}

// visibleCount reports how many messages are currently receivable.
func (g *fakeGateway) visibleCount(queueRef string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, msg := range g.queues[queueRef] {
		if msg.token == "" {
			n++
		}
	}
	return n
}

// totalCount reports all messages in the queue, leased or not.
func (g *fakeGateway) totalCount(queueRef string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queues[queueRef])
}
