package handler

import (
	"crypto/subtle"
	"net/http"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

const headerAdminKey = "X-Admin-Key"

// IndexDocumentRequest 定义了知识文档索引 API 的请求体结构。
type IndexDocumentRequest struct {
	DocID      string `json:"doc_id" binding:"required"`
	ObjectName string `json:"object_name" binding:"required"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// AdminHandler 负责处理知识库管理相关的 API 请求。
type AdminHandler struct {
	indexService service.IndexService
	adminKey     string
	metrics      *observability.Metrics
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(indexService service.IndexService, adminKey string, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{indexService: indexService, adminKey: adminKey, metrics: metrics}
}

// RequireAdminKey 检查 X-Admin-Key。未配置 admin_key 时管理接口一律拒绝。
func (h *AdminHandler) RequireAdminKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(headerAdminKey)
		if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminKey)) != 1 {
			middleware.Reject(c, h.metrics, apperr.New(apperr.InvalidToken))
			return
		}
		c.Next()
	}
}

// IndexDocument 处理知识文档索引请求。
func (h *AdminHandler) IndexDocument(c *gin.Context) {
	var req IndexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("IndexDocument: Invalid request payload, error: %v", err)
		middleware.Reject(c, h.metrics, apperr.Newf(apperr.ValidationError, "doc_id and object_name are required"))
		return
	}

	queued, err := h.indexService.Enqueue(c.Request.Context(), tasks.DocumentIndexTask{
		DocID:      req.DocID,
		ObjectName: req.ObjectName,
		Title:      req.Title,
		URL:        req.URL,
	})
	if err != nil {
		middleware.Reject(c, h.metrics, err)
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"ok": true, "doc_id": req.DocID, "queued": queued})
}
