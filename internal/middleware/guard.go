package middleware

import (
	"net/http"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 属于请求防护的错误分类，拒绝时计入 security_rejections_total。
var securityKinds = map[apperr.Kind]bool{
	apperr.OriginDenied:       true,
	apperr.MissingCredentials: true,
	apperr.RecaptchaFailed:    true,
	apperr.InvalidToken:       true,
	apperr.RateLimited:        true,
	apperr.AutomationDetected: true,
}

// IsSecurityRejection 判断错误是否来自请求防护。
func IsSecurityRejection(err error) bool {
	return err != nil && securityKinds[apperr.KindOf(err)]
}

// ErrorBody 返回错误对应的状态码和 {"error","code"} 响应体。
func ErrorBody(err error) (int, gin.H) {
	kind := apperr.KindOf(err)
	return apperr.Status(kind), gin.H{"error": apperr.PublicMessage(err), "code": apperr.Code(kind)}
}

// Reject 中止请求并写出错误响应。防护类错误记录分类并计数，5xx 错误记录原因。
func Reject(c *gin.Context, metrics *observability.Metrics, err error) {
	kind := apperr.KindOf(err)
	status, body := ErrorBody(err)
	switch {
	case securityKinds[kind]:
		log.Warnw("请求被拒绝", "kind", kind, "path", c.Request.URL.Path, "clientIP", c.ClientIP(), "error", err)
		metrics.RecordRejection(string(kind))
	case status >= http.StatusInternalServerError:
		log.Errorf("请求处理失败, path: %s, error: %v", c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, body)
}

// OriginGuard 要求请求携带白名单内的 Origin。
func OriginGuard(security service.SecurityService, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !security.ValidateOrigin(c.GetHeader("Origin")) {
			Reject(c, metrics, apperr.New(apperr.OriginDenied))
			return
		}
		c.Next()
	}
}

// RateLimitGuard 按客户端 IP 做固定窗口限流。
func RateLimitGuard(security service.SecurityService, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := security.RateLimit(c.Request.Context(), c.ClientIP()); err != nil {
			Reject(c, metrics, err)
			return
		}
		c.Next()
	}
}
