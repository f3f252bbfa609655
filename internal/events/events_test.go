package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	convID := uuid.New()
	env, err := NewEnvelope(EventTypeKeyRotation, AggregateConversation, convID.String(), map[string]string{"keyId": "k1"})
	require.NoError(t, err)

	assert.Equal(t, EventTypeKeyRotation, env.EventType)
	assert.Equal(t, convID.String(), env.AggregateID)
	assert.False(t, env.OccurredAt.IsZero())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "k1", payload["keyId"])
}

func TestNewEnvelope_Unmarshalable(t *testing.T) {
	_, err := NewEnvelope(EventTypeKeyExchange, AggregateConversation, "x", make(chan int))
	assert.Error(t, err)
}

func TestUserChannel(t *testing.T) {
	id := uuid.MustParse("7f1a2b3c-0000-4000-8000-000000000001")
	assert.Equal(t, "channel:user:7f1a2b3c-0000-4000-8000-000000000001", UserChannel(id))
}

func TestParseEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventTypeEncryptionEnabled, AggregateConversation, "c1", map[string]bool{"enabled": true})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	parsed, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, EventTypeEncryptionEnabled, parsed.EventType)

	var payload map[string]bool
	require.NoError(t, parsed.Decode(&payload))
	assert.True(t, payload["enabled"])

	_, err = ParseEnvelope([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
	_, err = ParseEnvelope([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}
