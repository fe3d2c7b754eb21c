package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler 提供存活探针。
type HealthHandler struct {
	sessionBackend string
}

// NewHealthHandler 创建 HealthHandler，sessionBackend 是当前会话存储的名称。
func NewHealthHandler(sessionBackend string) *HealthHandler {
	return &HealthHandler{sessionBackend: sessionBackend}
}

// Health 返回 {status:"ok"}。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session_backend": h.sessionBackend})
}
