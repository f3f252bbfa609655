package proxy

import (
	"context"
	"errors"
	"testing"

	"cloudvault/internal/domain/conversation"
	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubRoster struct {
	member bool
	err    error
}

func (s stubRoster) AddParticipant(ctx context.Context, p *conversation.Participant) error { return nil }

func (s stubRoster) GetParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s stubRoster) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return s.member, s.err
}

func TestAccessControl(t *testing.T) {
	ctx := context.Background()
	user, conv := uuid.New(), uuid.New()

	assert.NoError(t, NewAccessControl(stubRoster{member: true}).CanManageEncryption(ctx, user, conv))
	assert.ErrorIs(t, NewAccessControl(stubRoster{}).CanViewEncryption(ctx, user, conv), cv_errors.ErrForbidden)
	assert.ErrorIs(t, NewAccessControl(nil).CanViewEncryption(ctx, user, conv), cv_errors.ErrForbidden)

	boom := errors.New("db down")
	assert.ErrorIs(t, NewAccessControl(stubRoster{err: boom}).CanManageEncryption(ctx, user, conv), boom)
}
