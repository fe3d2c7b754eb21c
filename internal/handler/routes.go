package handler

import (
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Routes 汇总注册路由所需的处理器与防护依赖。
type Routes struct {
	Security     service.SecurityService
	Metrics      *observability.Metrics
	Session      *SessionHandler
	Chat         *ChatHandler
	Feedback     *FeedbackHandler
	Health       *HealthHandler
	Admin        *AdminHandler
	Conversation *ConversationHandler // 挂在管理路由下，为 nil 时不注册
	Search       *SearchHandler       // 同上
}

// Register 在引擎上注册全部业务路由。
func (rt Routes) Register(r *gin.Engine) {
	r.Use(middleware.CORSMiddleware(rt.Security, rt.Metrics))

	r.GET("/health", rt.Health.Health)

	originGuard := middleware.OriginGuard(rt.Security, rt.Metrics)
	rateLimit := middleware.RateLimitGuard(rt.Security, rt.Metrics)

	// 会话与聊天：先校验来源，再限流
	guarded := r.Group("/", originGuard, rateLimit)
	{
		guarded.POST("/session/start", rt.Session.Start)
		guarded.POST("/chat", rt.Chat.Chat)
		guarded.GET("/chat/ws", rt.Chat.Stream)
	}
	r.POST("/feedback", originGuard, rt.Feedback.Submit)

	if rt.Admin != nil {
		admin := r.Group("/api/v1/admin", rt.Admin.RequireAdminKey())
		{
			admin.POST("/documents/index", rt.Admin.IndexDocument)
			if rt.Conversation != nil {
				admin.GET("/sessions/:id", rt.Conversation.GetConversation)
			}
			if rt.Search != nil {
				admin.GET("/search", rt.Search.Search)
			}
		}
	}
}
