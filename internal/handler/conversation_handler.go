package handler

import (
	"net/http"

	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话记录相关的管理 API 请求。
type ConversationHandler struct {
	service service.ConversationService
	metrics *observability.Metrics
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService, metrics *observability.Metrics) *ConversationHandler {
	return &ConversationHandler{service: service, metrics: metrics}
}

// GetConversation 返回指定会话的消息历史。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	session, err := h.service.GetConversationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
