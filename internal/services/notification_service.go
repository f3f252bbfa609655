package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/events"
	"cloudvault/internal/repository"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher pushes realtime events to one user. redis.Publisher
// satisfies it.
type EventPublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, env events.Envelope) error
}

// FanoutResult collects per-recipient outcomes of one notification batch.
type FanoutResult struct {
	Delivered []uuid.UUID `json:"delivered"`
	Failed    []uuid.UUID `json:"failed"`

	errs []error
}

func (r *FanoutResult) record(userID uuid.UUID, err error) {
	if err != nil {
		r.Failed = append(r.Failed, userID)
		r.errs = append(r.errs, fmt.Errorf("recipient %s: %w", userID, err))
		return
	}
	r.Delivered = append(r.Delivered, userID)
}

func (r FanoutResult) OK() bool {
	return len(r.Failed) == 0
}

// Err is nil when every recipient was notified, otherwise an
// ErrNotification carrying the individual causes when known.
func (r FanoutResult) Err() error {
	if r.OK() {
		return nil
	}
	if len(r.errs) == 0 {
		return fmt.Errorf("%w: %d of %d recipients failed", cv_errors.ErrNotification, len(r.Failed), len(r.Failed)+len(r.Delivered))
	}
	return cv_errors.Wrap(cv_errors.ErrNotification, errors.Join(r.errs...))
}

var eventTypes = map[encryption.NotificationType]string{
	encryption.NotificationKeyExchange:        events.EventTypeKeyExchange,
	encryption.NotificationKeyRotation:        events.EventTypeKeyRotation,
	encryption.NotificationEncryptionEnabled:  events.EventTypeEncryptionEnabled,
	encryption.NotificationEncryptionDisabled: events.EventTypeEncryptionDisabled,
}

// NotificationService writes one durable notification row per recipient and
// mirrors it on the recipient's realtime channel.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher EventPublisher
	log       *logger.Logger
}

func NewNotificationService(repo repository.NotificationRepository, publisher EventPublisher, log *logger.Logger) *NotificationService {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationService{repo: repo, publisher: publisher, log: log.Named("notifications")}
}

// Notify attempts every recipient independently. A recipient counts as
// delivered once its row is stored; realtime publish failures are only
// logged.
func (s *NotificationService) Notify(ctx context.Context, conversationID uuid.UUID, recipients []uuid.UUID, typ encryption.NotificationType, payload any) FanoutResult {
	var result FanoutResult

	data, err := json.Marshal(payload)
	if err == nil && !typ.Valid() {
		err = fmt.Errorf("%w: notification type %q", cv_errors.ErrInvalidInput, typ)
	}
	if err != nil {
		for _, id := range recipients {
			result.record(id, err)
		}
		return result
	}

	for _, userID := range recipients {
		n := &encryption.Notification{
			ConversationID: conversationID,
			UserID:         userID,
			Type:           typ,
			Data:           string(data),
		}
		if err := s.repo.Create(ctx, n); err != nil {
			s.log.WithContext(ctx).Warn("notification insert failed",
				zap.String("conversation_id", conversationID.String()),
				zap.String("recipient_id", userID.String()),
				zap.String("type", string(typ)),
				zap.Error(err))
			result.record(userID, err)
			continue
		}
		result.record(userID, nil)
		s.publish(ctx, conversationID, userID, typ, data)
	}
	return result
}

func (s *NotificationService) publish(ctx context.Context, conversationID, userID uuid.UUID, typ encryption.NotificationType, data []byte) {
	if s.publisher == nil {
		return
	}
	env, err := events.NewEnvelope(eventTypes[typ], events.AggregateConversation, conversationID.String(), json.RawMessage(data))
	if err == nil {
		err = s.publisher.PublishToUser(ctx, userID, env)
	}
	if err != nil {
		s.log.WithContext(ctx).Warn("realtime publish failed",
			zap.String("recipient_id", userID.String()),
			zap.String("event_type", env.EventType),
			zap.Error(err))
	}
}

// Pending returns the unread notifications of userID for a conversation and
// marks them read.
func (s *NotificationService) Pending(ctx context.Context, conversationID, userID uuid.UUID) ([]encryption.Notification, error) {
	items, err := s.repo.GetUnread(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ID)
	}
	if err := s.repo.MarkRead(ctx, ids); err != nil {
		return nil, err
	}
	return items, nil
}
