package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cloudvault/internal/services"
	"cloudvault/internal/transport/httpdto"
	"cloudvault/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades authenticated requests into a push stream of the
// caller's encryption notifications.
type Handler struct {
	auth *services.AuthService
	hub  *Hub
	log  *logger.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{auth: auth, hub: hub, log: log.Named("websocket")}
}

func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(extractToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", httpdto.CodeUnauthorized))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", httpdto.CodeUnauthorized))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Logger.Warn("upgrade failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	client := NewClient(conn, userID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	h.log.Logger.Info("client connected", zap.String("user_id", userID.String()), zap.String("client_id", client.ID))
	go client.WriteLoop(ctx)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}

	h.hub.Unregister(client)
	h.log.Logger.Info("client disconnected", zap.String("user_id", userID.String()), zap.String("client_id", client.ID))
}

// extractToken accepts ?token= for browsers, which cannot set headers on
// the upgrade request, and a bearer header otherwise.
func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
