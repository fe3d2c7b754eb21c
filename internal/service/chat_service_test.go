package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRouter 回显消息，用于验证加载、路由、保存的流程。
type echoRouter struct {
	err error
}

func (r echoRouter) Route(_ context.Context, session *model.Session, message, page, _ string) (*model.ChatReply, error) {
	if r.err != nil {
		return nil, r.err
	}
	text := fmt.Sprintf("echo #%d: %s", len(session.Turns)/2+1, message)
	session.AppendExchange(message, text, page, time.Now())
	return &model.ChatReply{Reply: text, Suggested: []string{}}, nil
}

// blockingRouter 对指定会话阻塞到 release 关闭，其余会话直接回显。
type blockingRouter struct {
	slowSession string
	entered     chan struct{}
	release     chan struct{}
}

func (r blockingRouter) Route(ctx context.Context, session *model.Session, message, page, lang string) (*model.ChatReply, error) {
	if session.ID == r.slowSession {
		close(r.entered)
		<-r.release
	}
	return echoRouter{}.Route(ctx, session, message, page, lang)
}

type brokenStore struct {
	getErr error
	setErr error
	inner  repository.SessionStore
}

func (b brokenStore) Get(ctx context.Context, id string) (*model.Session, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.inner.Get(ctx, id)
}

func (b brokenStore) Set(ctx context.Context, id string, s *model.Session, ttl time.Duration) error {
	if b.setErr != nil {
		return b.setErr
	}
	return b.inner.Set(ctx, id, s, ttl)
}

func newMemoryStore(t *testing.T) repository.SessionStore {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return repository.NewMemorySessionStore(ctx, time.Minute)
}

func TestChatService_LoadRouteSave(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewChatService(store, echoRouter{}, time.Minute)
	ctx := context.Background()

	reply, err := svc.Handle(ctx, ChatInput{SessionID: "abc", Message: " hello ", Page: "/home"})
	require.NoError(t, err)
	assert.Equal(t, "echo #1: hello", reply.Reply)

	reply, err = svc.Handle(ctx, ChatInput{SessionID: "abc", Message: "again"})
	require.NoError(t, err)
	assert.Equal(t, "echo #2: again", reply.Reply)

	session, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Len(t, session.Turns, 4)
	assert.Equal(t, "hello", session.Turns[0].Text)
	assert.Equal(t, "/home", session.Turns[0].Page)
	assert.Equal(t, model.RoleBot, session.Turns[3].Role)
}

func TestChatService_Validation(t *testing.T) {
	svc := NewChatService(newMemoryStore(t), echoRouter{}, time.Minute)
	for _, in := range []ChatInput{{SessionID: "", Message: "hi"}, {SessionID: "abc", Message: "   "}} {
		_, err := svc.Handle(context.Background(), in)
		assert.True(t, apperr.Is(err, apperr.ValidationError))
	}
}

func TestChatService_StoreFailures(t *testing.T) {
	inner := newMemoryStore(t)

	svc := NewChatService(brokenStore{getErr: errors.New("redis down"), inner: inner}, echoRouter{}, time.Minute)
	_, err := svc.Handle(context.Background(), ChatInput{SessionID: "abc", Message: "hi"})
	assert.True(t, apperr.Is(err, apperr.InternalError))

	// 保存失败只记录日志，回复照常返回
	svc = NewChatService(brokenStore{setErr: errors.New("redis down"), inner: inner}, echoRouter{}, time.Minute)
	reply, err := svc.Handle(context.Background(), ChatInput{SessionID: "abc", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo #1: hi", reply.Reply)
}

func TestChatService_RouterErrorSkipsSave(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewChatService(store, echoRouter{err: apperr.New(apperr.UpstreamModelFailure)}, time.Minute)

	_, err := svc.Handle(context.Background(), ChatInput{SessionID: "abc", Message: "hi"})
	assert.True(t, apperr.Is(err, apperr.UpstreamModelFailure))

	session, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestChatService_ConcurrentRequestsDoNotLoseTurns(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewChatService(store, echoRouter{}, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Handle(context.Background(), ChatInput{SessionID: "shared", Message: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	session, err := store.Get(context.Background(), "shared")
	require.NoError(t, err)
	require.Len(t, session.Turns, 2*n)
	for i := 0; i < len(session.Turns); i += 2 {
		assert.Equal(t, model.RoleUser, session.Turns[i].Role)
		assert.Equal(t, model.RoleBot, session.Turns[i+1].Role)
	}
}

func TestChatService_StartSession(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewChatService(store, echoRouter{}, time.Minute)

	first, err := svc.StartSession(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", first.ID)
	assert.Empty(t, first.Turns)

	_, err = svc.Handle(context.Background(), ChatInput{SessionID: "abc", Message: "hi"})
	require.NoError(t, err)

	// 已存在的会话不会被重置
	again, err := svc.StartSession(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, again.Turns, 2)
	assert.Equal(t, first.CreatedAt.UnixNano(), again.CreatedAt.UnixNano())
}

func (s *chatService) heldLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func TestChatService_SlowSessionDoesNotBlockOthers(t *testing.T) {
	router := blockingRouter{slowSession: "session-a", entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewChatService(newMemoryStore(t), router, time.Minute).(*chatService)

	slowDone := make(chan error, 1)
	go func() {
		_, err := svc.Handle(context.Background(), ChatInput{SessionID: "session-a", Message: "slow"})
		slowDone <- err
	}()
	<-router.entered

	// session-a 的模型调用未返回时，其他会话照常完成
	for i := 0; i < 100; i++ {
		done := make(chan error, 1)
		id := fmt.Sprintf("other-%d", i)
		go func() {
			_, err := svc.Handle(context.Background(), ChatInput{SessionID: id, Message: "hi"})
			done <- err
		}()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatalf("session %s waited behind session-a", id)
		}
	}

	close(router.release)
	require.NoError(t, <-slowDone)
	assert.Zero(t, svc.heldLocks())
}
