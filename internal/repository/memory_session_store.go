package repository

import (
	"context"
	"invest-assist-go/internal/model"
	"sync"
	"time"
)

type memoryEntry struct {
	session   model.Session
	expiresAt time.Time
}

// memorySessionStore 是进程内的 SessionStore，重启即丢失。
type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// 后台清理的最短间隔。
const minJanitorInterval = time.Second

// NewMemorySessionStore 创建进程内 SessionStore，并启动后台清理协程，
// 每 ttl/2 清理一次过期会话，ctx 取消时退出。
func NewMemorySessionStore(ctx context.Context, ttl time.Duration) SessionStore {
	s := newMemorySessionStore(time.Now)
	go s.janitor(ctx, janitorInterval(ttl))
	return s
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl/2 < minJanitorInterval {
		return minJanitorInterval
	}
	return ttl / 2
}

func newMemorySessionStore(now func() time.Time) *memorySessionStore {
	return &memorySessionStore{
		sessions: make(map[string]memoryEntry),
		now:      now,
	}
}

// Get 返回会话的副本；已过期的条目视为不存在。
func (s *memorySessionStore) Get(_ context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		// 重新检查，避免删掉并发写入的新值
		if cur, exists := s.sessions[sessionID]; exists && !s.now().Before(cur.expiresAt) {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return cloneSession(&entry.session), nil
}

// Set 保存会话副本，过期时间从本次写入起重新计算。
func (s *memorySessionStore) Set(_ context.Context, sessionID string, session *model.Session, ttl time.Duration) error {
	entry := memoryEntry{
		session:   *cloneSession(session),
		expiresAt: s.now().Add(ttl),
	}
	s.mu.Lock()
	s.sessions[sessionID] = entry
	s.mu.Unlock()
	return nil
}

// evictExpired 删除所有已过期的会话，返回删除数量。
func (s *memorySessionStore) evictExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *memorySessionStore) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func cloneSession(in *model.Session) *model.Session {
	out := *in
	out.Turns = make([]model.Turn, len(in.Turns))
	copy(out.Turns, in.Turns)
	return &out
}
