package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/config"
	"invest-assist-go/internal/repository"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/token"
)

// RecaptchaVerifier 校验前端提交的 reCAPTCHA token。
type RecaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// SecurityService 汇总请求防护：来源校验、会话令牌、reCAPTCHA、限流和自动化检测。
// 所有失败都以 *apperr.Error 返回，对请求而言是终止性的。
type SecurityService interface {
	ValidateOrigin(origin string) bool
	IssueSessionToken(sessionID string, createdAt time.Time) (token.Issued, error)
	VerifyToken(tokenString, presentedClientKey string) (*token.Claims, error)
	VerifyRecaptcha(ctx context.Context, recaptchaToken, remoteIP string) error
	RateLimit(ctx context.Context, ip string) error
	DetectAutomation(shape RequestShape) error
}

type securityService struct {
	allowedOrigins []string
	rateLimit      config.RateLimitConfig
	tokens         *token.Manager
	recaptcha      RecaptchaVerifier
	counters       repository.CounterStore
	policy         AutomationPolicy
	now            func() time.Time
}

// NewSecurityService 创建一个新的 SecurityService 实例。policy 为 nil 时不做自动化检测。
func NewSecurityService(cfg config.SecurityConfig, tokens *token.Manager, recaptcha RecaptchaVerifier, counters repository.CounterStore, policy AutomationPolicy) SecurityService {
	return newSecurityService(cfg, tokens, recaptcha, counters, policy, time.Now)
}

func newSecurityService(cfg config.SecurityConfig, tokens *token.Manager, recaptcha RecaptchaVerifier, counters repository.CounterStore, policy AutomationPolicy, now func() time.Time) *securityService {
	return &securityService{
		allowedOrigins: cfg.AllowedOrigins,
		rateLimit:      cfg.RateLimit,
		tokens:         tokens,
		recaptcha:      recaptcha,
		counters:       counters,
		policy:         policy,
		now:            now,
	}
}

// ValidateOrigin 要求 Origin 非空且以某个白名单条目为前缀。没有白名单时一律拒绝。
func (s *securityService) ValidateOrigin(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	for _, allowed := range s.allowedOrigins {
		if allowed != "" && strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// IssueSessionToken 为会话签发令牌和 clientKey。
func (s *securityService) IssueSessionToken(sessionID string, createdAt time.Time) (token.Issued, error) {
	issued, err := s.tokens.Issue(sessionID, createdAt)
	if err != nil {
		return token.Issued{}, apperr.Wrap(apperr.InternalError, err)
	}
	return issued, nil
}

// VerifyToken 校验签名与过期时间；客户端同时出示 clientKey 时还要求与令牌内的一致。
// 签名错误、过期、clientKey 不符都返回同一个 InvalidToken。
func (s *securityService) VerifyToken(tokenString, presentedClientKey string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err)
	}
	if presentedClientKey != "" && !token.KeysEqual(presentedClientKey, claims.ClientKey) {
		return nil, apperr.Wrap(apperr.InvalidToken, token.ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRecaptcha 委托外部服务校验。未配置 secret 时由 verifier 直接放行。
func (s *securityService) VerifyRecaptcha(ctx context.Context, recaptchaToken, remoteIP string) error {
	if s.recaptcha == nil {
		return nil
	}
	if err := s.recaptcha.Verify(ctx, recaptchaToken, remoteIP); err != nil {
		return apperr.Wrap(apperr.RecaptchaFailed, err)
	}
	return nil
}

// RateLimit 以 window_seconds 对齐的固定窗口计数，窗口内超过 max_requests 即拒绝。
// 被拒绝的请求同样计数。计数存储故障时放行并记录日志。
func (s *securityService) RateLimit(ctx context.Context, ip string) error {
	if s.rateLimit.MaxRequests <= 0 || s.rateLimit.WindowSeconds <= 0 || s.counters == nil {
		return nil
	}
	window := time.Duration(s.rateLimit.WindowSeconds) * time.Second
	windowStart := s.now().Truncate(window)

	count, err := s.counters.Incr(ctx, ip, windowStart, window)
	if err != nil {
		log.Warnw("限流计数失败，放行请求", "ip", ip, "error", err)
		return nil
	}
	if count > int64(s.rateLimit.MaxRequests) {
		return apperr.New(apperr.RateLimited)
	}
	return nil
}

// DetectAutomation 运行自动化检测策略，命中时返回 AutomationDetected。
func (s *securityService) DetectAutomation(shape RequestShape) error {
	if s.policy == nil {
		return nil
	}
	if shape.At.IsZero() {
		shape.At = s.now()
	}
	automated, reasons := s.policy.Assess(shape)
	if automated {
		return apperr.Wrap(apperr.AutomationDetected, errors.New(strings.Join(reasons, ",")))
	}
	return nil
}
