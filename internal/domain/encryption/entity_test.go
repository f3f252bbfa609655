package encryption

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStatus_Empty(t *testing.T) {
	status := BuildStatus(nil)
	assert.False(t, status.IsEncrypted)
	assert.Zero(t, status.KeyCount)
	assert.Nil(t, status.LastKeyRotation)
	assert.Empty(t, status.Participants)
}

func TestBuildStatus_Aggregates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	status := BuildStatus([]ConversationKey{
		{KeyID: "k1", ParticipantID: a, CreatedAt: t0, IsActive: true},
		{KeyID: "k2", ParticipantID: b, CreatedAt: t0.Add(time.Hour), IsActive: true},
		{KeyID: "k3", ParticipantID: a, CreatedAt: t0.Add(time.Minute), IsActive: true},
		{KeyID: "old", ParticipantID: uuid.New(), CreatedAt: t0.Add(48 * time.Hour), IsActive: false},
	})

	assert.True(t, status.IsEncrypted)
	assert.Equal(t, 3, status.KeyCount)
	require.NotNil(t, status.LastKeyRotation)
	assert.Equal(t, t0.Add(time.Hour), *status.LastKeyRotation)
	assert.Equal(t, []uuid.UUID{a, b}, status.Participants)
}

func TestNotificationType_Valid(t *testing.T) {
	assert.True(t, NotificationKeyRotation.Valid())
	assert.False(t, NotificationType("key_dump").Valid())
}
