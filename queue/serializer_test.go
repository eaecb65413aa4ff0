package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := JSONSerializer{}

	for _, payload := range []any{
		"Hello",
		float64(42),
		map[string]any{"order": "a-1", "qty": float64(3)},
		[]any{"a", "b"},
		true,
		nil,
	} {
		data, err := s.Serialize(payload)
		require.NoError(t, err)
		back, err := s.Deserialize(data)
		require.NoError(t, err)
		assert.Equal(t, payload, back)
	}
}

func TestJSONSerializerRejectsUnmarshalable(t *testing.T) {
	_, err := JSONSerializer{}.Serialize(make(chan int))
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestRawSerializerPassthrough(t *testing.T) {
	s := rawSerializer{}

	data, err := s.Serialize("plain")
	require.NoError(t, err)
	back, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "plain", back)

	data, err = s.Serialize([]byte("bytes"))
	require.NoError(t, err)
	back, err = s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "bytes", back)

	_, err = s.Serialize(struct{}{})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestDecodeBodyRequiresPayloadField(t *testing.T) {
	_, err := decodeBody(`{"createdAt":"2026-01-02T03:04:05Z"}`)
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = decodeBody(`not json at all`)
	assert.ErrorIs(t, err, ErrDeserialization)

	body, err := decodeBody(`{"id":"m-1","payload":"\"x\""}`)
	require.NoError(t, err)
	assert.Equal(t, "m-1", body.ID)
}
