package handler

import (
	"context"
	"net/http"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/services"
	"cloudvault/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EncryptionAPI is the server-side encryption surface the handler exposes.
// *services.EncryptionService implements it.
type EncryptionAPI interface {
	Enable(ctx context.Context, userID, conversationID uuid.UUID) error
	Disable(ctx context.Context, userID, conversationID uuid.UUID) error
	Status(ctx context.Context, userID, conversationID uuid.UUID) (services.ConversationStatus, error)
	Participants(ctx context.Context, userID, conversationID uuid.UUID) ([]uuid.UUID, error)
	Keys(ctx context.Context, userID, conversationID uuid.UUID) ([]encryption.ConversationKey, error)
	Notifications(ctx context.Context, userID, conversationID uuid.UUID) ([]encryption.Notification, error)
	KeyExchange(ctx context.Context, userID, conversationID uuid.UUID, action services.KeyExchangeAction) (services.FanoutResult, error)
	RotateKeys(ctx context.Context, userID, conversationID uuid.UUID, action services.RotationAction) (services.FanoutResult, error)
}

type EncryptionHandler struct {
	service EncryptionAPI
}

func NewEncryptionHandler(service EncryptionAPI) *EncryptionHandler {
	return &EncryptionHandler{service: service}
}

func (h *EncryptionHandler) Enable(c *gin.Context) {
	h.toggle(c, true)
}

func (h *EncryptionHandler) Disable(c *gin.Context) {
	h.toggle(c, false)
}

func (h *EncryptionHandler) toggle(c *gin.Context, enabled bool) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	action := h.service.Disable
	if enabled {
		action = h.service.Enable
	}
	if err := action(c.Request.Context(), userID, conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ToggleResponse{
		ConversationID: conversationID,
		Enabled:        enabled,
	}))
}

func (h *EncryptionHandler) Status(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	status, err := h.service.Status(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
}

func (h *EncryptionHandler) Participants(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	ids, err := h.service.Participants(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ParticipantsResponse{Participants: ids}))
}

func (h *EncryptionHandler) Keys(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	keys, err := h.service.Keys(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationKeys(keys)))
}

// Notifications returns the caller's unread notifications and marks them read.
func (h *EncryptionHandler) Notifications(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	items, err := h.service.Notifications(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromNotifications(items)))
}

func (h *EncryptionHandler) KeyExchange(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	var req services.KeyExchangeAction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", httpdto.CodeInvalidRequest))
		return
	}
	result, err := h.service.KeyExchange(c.Request.Context(), userID, conversationID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(result))
}

func (h *EncryptionHandler) RotateKeys(c *gin.Context) {
	userID, conversationID, ok := requestScope(c)
	if !ok {
		return
	}
	var req services.RotationAction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", httpdto.CodeInvalidRequest))
		return
	}
	result, err := h.service.RotateKeys(c.Request.Context(), userID, conversationID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(result))
}

func requestScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", httpdto.CodeUnauthorized))
		return uuid.Nil, uuid.Nil, false
	}
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", httpdto.CodeInvalidRequest))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, conversationID, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(services.HTTPStatus(err), httpdto.NewErrorResponseFrom(err))
}
