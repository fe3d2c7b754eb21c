// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strings"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 凭据请求头。
const (
	headerSessionToken   = "X-Session-Token"
	headerRecaptchaToken = "X-Recaptcha-Token"
	headerClientKey      = "X-Client-Key"
)

// WebSocket 单帧读取上限与写超时。
const (
	wsReadLimit    = 16 << 10
	wsWriteTimeout = 10 * time.Second
)

// ChatRequest 是 /chat 的请求体。凭据也可以放在请求头里，请求头优先。
type ChatRequest struct {
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	Page           string `json:"page"`
	Lang           string `json:"lang"`
	SessionToken   string `json:"session_token"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// chatFrame 是 WebSocket 上客户端发送的一帧。
type chatFrame struct {
	Message string `json:"message"`
	Page    string `json:"page"`
	Lang    string `json:"lang"`
}

// ChatHandler 负责处理聊天请求，包括 JSON 接口和 WebSocket 接口。
type ChatHandler struct {
	chatService service.ChatService
	security    service.SecurityService
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, security service.SecurityService, metrics *observability.Metrics) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		security:    security,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return security.ValidateOrigin(r.Header.Get("Origin"))
			},
		},
	}
}

// Chat 处理一次聊天请求。来源与限流由路由上的中间件先行校验，
// 这里依次执行自动化检测、凭据检查、reCAPTCHA、令牌校验和字段校验。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 请求体解析失败时仍需先走完防护流程，缺字段留给后面的校验
		log.Debugf("Chat: 请求体解析失败: %v", err)
		req = ChatRequest{}
	}

	shape := service.RequestShape{
		IP:             c.ClientIP(),
		UserAgent:      c.GetHeader("User-Agent"),
		Accept:         c.GetHeader("Accept"),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		ContentType:    c.GetHeader("Content-Type"),
		Message:        req.Message,
	}
	if err := h.security.DetectAutomation(shape); err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}

	sessionToken := firstNonEmpty(c.GetHeader(headerSessionToken), req.SessionToken)
	recaptchaToken := firstNonEmpty(c.GetHeader(headerRecaptchaToken), req.RecaptchaToken)
	if sessionToken == "" || recaptchaToken == "" {
		middleware.Reject(c, h.metrics, apperr.New(apperr.MissingCredentials))
		return
	}
	if err := h.security.VerifyRecaptcha(c.Request.Context(), recaptchaToken, c.ClientIP()); err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	claims, err := h.security.VerifyToken(sessionToken, c.GetHeader(headerClientKey))
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	// 令牌只对签发时的会话有效；缺少 session_id 的请求留给字段校验
	if id := strings.TrimSpace(req.SessionID); id != "" && id != claims.SessionID {
		middleware.Reject(c, h.metrics, apperr.New(apperr.InvalidToken))
		return
	}

	reply, err := h.chatService.Handle(c.Request.Context(), service.ChatInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		Page:      req.Page,
		Lang:      req.Lang,
	})
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Stream 把连接升级为 WebSocket，之后每一帧消息都按一次聊天请求处理。
// 凭据通过查询参数 token、recaptcha、session_id、client_key 传入，在升级前校验。
func (h *ChatHandler) Stream(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	sessionToken := c.Query("token")
	recaptchaToken := c.Query("recaptcha")
	if sessionToken == "" || recaptchaToken == "" {
		middleware.Reject(c, h.metrics, apperr.New(apperr.MissingCredentials))
		return
	}
	if sessionID == "" {
		middleware.Reject(c, h.metrics, apperr.Newf(apperr.ValidationError, "Missing session_id"))
		return
	}
	if err := h.security.VerifyRecaptcha(c.Request.Context(), recaptchaToken, c.ClientIP()); err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	claims, err := h.security.VerifyToken(sessionToken, c.Query("client_key"))
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}
	if sessionID != claims.SessionID {
		middleware.Reject(c, h.metrics, apperr.New(apperr.InvalidToken))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	log.Infof("WebSocket 连接已建立, session: %s", sessionID)

	baseShape := service.RequestShape{
		IP:             c.ClientIP(),
		UserAgent:      c.GetHeader("User-Agent"),
		Accept:         "application/json",
		AcceptLanguage: c.GetHeader("Accept-Language"),
		ContentType:    "application/json",
	}
	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		reply, err := h.handleFrame(c, sessionID, baseShape, frame)
		var out interface{} = reply
		if err != nil {
			status, body := middleware.ErrorBody(err)
			switch {
			case middleware.IsSecurityRejection(err):
				h.metrics.RecordRejection(string(apperr.KindOf(err)))
				log.Warnw("请求被拒绝", "kind", apperr.KindOf(err), "path", c.Request.URL.Path, "clientIP", c.ClientIP())
			case status >= http.StatusInternalServerError:
				log.Errorf("WebSocket 消息处理失败, session: %s, error: %v", sessionID, err)
			}
			out = body
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			return
		}
	}
}

// handleFrame 对单帧执行限流与自动化检测后交给 ChatService。
func (h *ChatHandler) handleFrame(c *gin.Context, sessionID string, shape service.RequestShape, frame chatFrame) (*model.ChatReply, error) {
	ctx := c.Request.Context()
	if err := h.security.RateLimit(ctx, shape.IP); err != nil {
		return nil, err
	}
	shape.Message = frame.Message
	if err := h.security.DetectAutomation(shape); err != nil {
		return nil, err
	}
	return h.chatService.Handle(ctx, service.ChatInput{
		SessionID: sessionID,
		Message:   frame.Message,
		Page:      frame.Page,
		Lang:      frame.Lang,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
