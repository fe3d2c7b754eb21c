package handler

import (
	"net/http"
	"strconv"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 调试检索一次最多返回的条数。
const maxDebugTopK = 20

// SearchHandler 结构体定义了检索调试相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	metrics       *observability.Metrics
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, metrics *observability.Metrics) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		metrics:       metrics,
	}
}

// Search 直接调用检索服务，便于管理员核对知识库的召回效果。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		middleware.Reject(c, h.metrics, apperr.Newf(apperr.ValidationError, "Missing query"))
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "5"))
	if err != nil || topK <= 0 || topK > maxDebugTopK {
		topK = 5
	}

	results := h.searchService.Search(c.Request.Context(), query, topK)
	log.Infof("[SearchHandler] 检索完成, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"results": results})
}
