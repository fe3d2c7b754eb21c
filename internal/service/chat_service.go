package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/repository"
	"invest-assist-go/pkg/log"
)

// ChatInput 是一次聊天请求经过校验后的业务输入。
type ChatInput struct {
	SessionID string
	Message   string
	Page      string
	Lang      string
}

// Router 为消息选出回复，并把本轮对话追加到会话。
type Router interface {
	Route(ctx context.Context, session *model.Session, message, page, lang string) (*model.ChatReply, error)
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// StartSession 确保会话存在，不存在时创建空会话，返回会话创建时间。
	StartSession(ctx context.Context, sessionID string) (*model.Session, error)
	// Handle 读取会话、路由消息并写回会话。
	Handle(ctx context.Context, in ChatInput) (*model.ChatReply, error)
}

type chatService struct {
	store  repository.SessionStore
	router Router
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock 是单个会话的互斥锁，refs 为持有或等待它的请求数。
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(store repository.SessionStore, router Router, ttl time.Duration) ChatService {
	return &chatService{
		store:  store,
		router: router,
		ttl:    ttl,
		now:    time.Now,
		locks:  make(map[string]*sessionLock),
	}
}

// lockSession 获取会话 ID 独占的锁并返回释放函数，不同会话之间互不等待。
// 同一进程内同一会话的请求因此串行执行；多实例部署时仍可能丢失并发更新。
func (s *chatService) lockSession(sessionID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

func (s *chatService) StartSession(ctx context.Context, sessionID string) (*model.Session, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, err)
	}
	if session != nil {
		return session, nil
	}
	session = model.NewSession(sessionID, s.now())
	if err := s.store.Set(ctx, sessionID, session, s.ttl); err != nil {
		return nil, apperr.Wrap(apperr.InternalError, err)
	}
	log.Infof("[ChatService] 新会话已创建, session: %s", sessionID)
	return session, nil
}

func (s *chatService) Handle(ctx context.Context, in ChatInput) (*model.ChatReply, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.Message = strings.TrimSpace(in.Message)
	if in.SessionID == "" || in.Message == "" {
		return nil, apperr.New(apperr.ValidationError)
	}

	unlock := s.lockSession(in.SessionID)
	defer unlock()

	// 1. 读取会话，不存在或已过期则新建
	session, err := s.store.Get(ctx, in.SessionID)
	if err != nil {
		log.Errorf("[ChatService] 读取会话失败, session: %s, error: %v", in.SessionID, err)
		return nil, apperr.Wrap(apperr.InternalError, err)
	}
	if session == nil {
		session = model.NewSession(in.SessionID, s.now())
	}

	// 2. 路由消息，成功时会话已追加本轮
	reply, err := s.router.Route(ctx, session, in.Message, in.Page, in.Lang)
	if err != nil {
		return nil, err
	}

	// 3. 写回会话。使用独立上下文，请求取消时仍保存已生成的回复
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Set(saveCtx, in.SessionID, session, s.ttl); err != nil {
		// 只记录错误，回复已经生成
		log.Errorf("[ChatService] 保存会话失败, session: %s, error: %v", in.SessionID, err)
	}
	return reply, nil
}
