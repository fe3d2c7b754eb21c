package handler

import (
	"net/http"
	"strings"

	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 客户端自带 session_id 的长度上限。
const maxSessionIDLength = 128

// StartSessionRequest 是 /session/start 的请求体，session_id 可省略。
type StartSessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionHandler 负责创建会话并签发会话令牌。
type SessionHandler struct {
	chatService service.ChatService
	security    service.SecurityService
	metrics     *observability.Metrics
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(chatService service.ChatService, security service.SecurityService, metrics *observability.Metrics) *SessionHandler {
	return &SessionHandler{chatService: chatService, security: security, metrics: metrics}
}

// Start 创建（或复用）会话并返回令牌、clientKey 和过期时间（毫秒时间戳）。
func (h *SessionHandler) Start(c *gin.Context) {
	var req StartSessionRequest
	// 请求体可以为空
	_ = c.ShouldBindJSON(&req)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		sessionID = uuid.NewString()
	}

	session, err := h.chatService.StartSession(c.Request.Context(), sessionID)
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	issued, err := h.security.IssueSessionToken(session.ID, session.CreatedAt)
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}

	log.Infof("会话令牌已签发, session: %s", session.ID)
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"session_id":    session.ID,
		"session_token": issued.Token,
		"client_key":    issued.ClientKey,
		"expires_at":    issued.ExpiresAt.UnixMilli(),
	})
}
