package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents conversation_participants, the roster used to
// decide who receives key events.
type Participant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	JoinedAt       time.Time `gorm:"default:now()"`
}

func (Participant) TableName() string {
	return "conversation_participants"
}
