package services

import (
	"context"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/repository"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParticipantCache is satisfied by redis.CacheStore.
type ParticipantCache interface {
	GetConversationParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	SetConversationParticipants(ctx context.Context, conversationID uuid.UUID, participantIDs []uuid.UUID) error
	InvalidateConversationParticipants(ctx context.Context, conversationID uuid.UUID) error
}

// ParticipantService answers roster lookups, read-through cached. Cache
// failures degrade to the database.
type ParticipantService struct {
	repo  repository.ConversationRepository
	cache ParticipantCache
	log   *logger.Logger
}

func NewParticipantService(repo repository.ConversationRepository, cache ParticipantCache, log *logger.Logger) *ParticipantService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ParticipantService{repo: repo, cache: cache, log: log.Named("participants")}
}

func (s *ParticipantService) GetParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	if s.cache != nil {
		cached, err := s.cache.GetConversationParticipants(ctx, conversationID)
		if err != nil {
			s.log.WithContext(ctx).Warn("participant cache read failed",
				zap.String("conversation_id", conversationID.String()), zap.Error(err))
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	ids, err := s.repo.GetParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(ids) > 0 {
		if err := s.cache.SetConversationParticipants(ctx, conversationID, ids); err != nil {
			s.log.WithContext(ctx).Warn("participant cache write failed",
				zap.String("conversation_id", conversationID.String()), zap.Error(err))
		}
	}
	return ids, nil
}

func (s *ParticipantService) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.repo.AddParticipant(ctx, &conversation.Participant{ConversationID: conversationID, UserID: userID}); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateConversationParticipants(ctx, conversationID); err != nil {
			s.log.WithContext(ctx).Warn("participant cache invalidate failed",
				zap.String("conversation_id", conversationID.String()), zap.Error(err))
		}
	}
	return nil
}
