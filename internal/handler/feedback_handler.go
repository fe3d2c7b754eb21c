package handler

import (
	"net/http"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FeedbackRequest 是 /feedback 的请求体，所有字段都可省略。
type FeedbackRequest struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Message   string `json:"message"`
	Page      string `json:"page"`
}

// FeedbackHandler 接收用户反馈。
type FeedbackHandler struct {
	feedbackService service.FeedbackService
	metrics         *observability.Metrics
}

// NewFeedbackHandler 创建一个新的 FeedbackHandler 实例。
func NewFeedbackHandler(feedbackService service.FeedbackService, metrics *observability.Metrics) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService, metrics: metrics}
}

// Submit 只做尽力而为的确认：请求体是合法 JSON 就返回 {ok:true}。
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Submit: 无效的反馈请求体, error: %v", err)
		middleware.Reject(c, h.metrics, apperr.Newf(apperr.ValidationError, "Invalid feedback payload"))
		return
	}

	id := h.feedbackService.Submit(c.Request.Context(), service.FeedbackInput{
		SessionID: req.SessionID,
		Rating:    req.Rating,
		Message:   req.Message,
		Page:      req.Page,
		ClientIP:  c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}
