package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Envelope is the unit of work moving through a queue.
//
// Timestamps obey createdAt <= processedAt <= acknowledgedAt whenever each is
// set. ProcessedAt is the first reservation and is never overwritten by
// redeliveries; a zero AcknowledgedAt means the message is still live.
type Envelope struct {
	// ID is assigned by the backend on send, or by the queue's id
	// generator when one is configured.
	ID string

	// Payload is the deserialized payload value.
	Payload any

	// CreatedAt is when the message was originally produced.
	CreatedAt time.Time

	// ProcessedAt is when the message was first reserved.
	ProcessedAt time.Time

	// AcknowledgedAt is set only on successful acknowledgment.
	AcknowledgedAt time.Time
}

// transportBody is the JSON wire form of an envelope. CreatedAt and ID ride
// in the body so they survive requeues and dead-letter forwarding; backend
// attributes are only a fallback.
type transportBody struct {
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
}

// encodeBody renders an envelope body. The payload must already be in
// serialized (transport) form.
func encodeBody(id string, payload []byte, createdAt time.Time) (string, error) {
	body := transportBody{ID: id, Payload: payload}
	if !createdAt.IsZero() {
		t := createdAt.UTC()
		body.CreatedAt = &t
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSerialization, err)
	}
	return string(data), nil
}

// decodeBody parses a received body. The payload field is required; its
// absence or a malformed body is a deserialization failure.
func decodeBody(raw string) (transportBody, error) {
	var body transportBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return transportBody{}, fmt.Errorf("%w: %s", ErrDeserialization, err)
	}
	if len(body.Payload) == 0 {
		return transportBody{}, fmt.Errorf("%w: body has no payload field", ErrDeserialization)
	}
	return body, nil
}

// attrTime reads a millisecond-epoch attribute, returning zero when absent
// or unparseable.
func attrTime(attrs map[string]string, key string) time.Time {
	v, ok := attrs[key]
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// attrInt reads an integer attribute, returning 0 when absent or invalid.
func attrInt(attrs map[string]string, key string) int {
	v, ok := attrs[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
