package handler

import "github.com/gin-gonic/gin"

// RegisterEncryptionRoutes mounts the conversation encryption actions on rg.
// exchangeLimit and rotationLimit may be nil.
func RegisterEncryptionRoutes(rg *gin.RouterGroup, h *EncryptionHandler, exchangeLimit, rotationLimit gin.HandlerFunc) {
	conv := rg.Group("/conversations/:id")
	conv.GET("/participants", h.Participants)

	enc := conv.Group("/encryption")
	{
		enc.POST("/enable", h.Enable)
		enc.POST("/disable", h.Disable)
		enc.GET("/status", h.Status)
		enc.GET("/keys", h.Keys)
		enc.GET("/notifications", h.Notifications)
		enc.POST("/key_exchange", chain(exchangeLimit, h.KeyExchange)...)
		enc.POST("/rotate_keys", chain(rotationLimit, h.RotateKeys)...)
	}
}

func chain(limit gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{limit, h}
}
