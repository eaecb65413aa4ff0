package queue

import (
	"encoding/json"
	"fmt"
)

// Serializer converts payload values to and from the backend transport form.
// The transport form must be valid JSON (it is embedded in the message body
// as-is).
type Serializer interface {
	Serialize(payload any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// JSONSerializer marshals payloads with encoding/json. Deserialization
// yields the generic JSON value shapes (string, float64, map[string]any, ...).
type JSONSerializer struct{}

func (JSONSerializer) Serialize(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSerialization, err)
	}
	return data, nil
}

func (JSONSerializer) Deserialize(data []byte) (any, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeserialization, err)
	}
	return payload, nil
}

// rawSerializer is used when no serializer is configured: the payload must
// already be directly transport-encodable (string or []byte holding JSON-safe
// text), anything else is a serialization failure. Deserialization hands the
// raw text back.
type rawSerializer struct{}

func (rawSerializer) Serialize(payload any) ([]byte, error) {
	var text string
	switch v := payload.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return nil, fmt.Errorf("%w: no serializer configured and payload type %T is not transport-encodable", ErrSerialization, payload)
	}
	data, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSerialization, err)
	}
	return data, nil
}

func (rawSerializer) Deserialize(data []byte) (any, error) {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeserialization, err)
	}
	return text, nil
}
