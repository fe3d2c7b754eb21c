package middleware

import (
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware 按白名单放行跨域请求，并暴露前端需要携带的凭据头。
// 白名单之外的 Origin 直接以 JSON 错误拒绝；没有 Origin 的请求交给后续的 OriginGuard。
func CORSMiddleware(security service.SecurityService, metrics *observability.Metrics) gin.HandlerFunc {
	config := cors.Config{
		AllowOriginFunc: security.ValidateOrigin,
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Accept-Language",
			"X-Session-Token", "X-Recaptcha-Token", "X-Client-Key", "X-Admin-Key",
		},
		ExposeHeaders: []string{
			"Content-Type",
		},
		MaxAge: 12 * time.Hour,
	}
	handler := cors.New(config)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !security.ValidateOrigin(origin) {
			Reject(c, metrics, apperr.New(apperr.OriginDenied))
			return
		}
		handler(c)
	}
}
