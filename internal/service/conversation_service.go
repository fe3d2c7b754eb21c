package service

import (
	"context"
	"strings"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/repository"
)

// ConversationService 定义了对话记录查询的接口，供管理接口排查问题使用。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, sessionID string) (*model.Session, error)
}

type conversationService struct {
	store repository.SessionStore
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(store repository.SessionStore) ConversationService {
	return &conversationService{store: store}
}

// GetConversationHistory 返回会话的完整消息历史。会话不存在或已过期时返回 NotFound。
func (s *conversationService) GetConversationHistory(ctx context.Context, sessionID string) (*model.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Newf(apperr.ValidationError, "Missing session id")
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, err)
	}
	if session == nil {
		return nil, apperr.Newf(apperr.NotFound, "Session not found")
	}
	return session, nil
}
