// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"invest-assist-go/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

// 会话存储后端名称。
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// SessionStore 定义了会话状态的存取接口。
//
// 每次 Set 都会把过期时间重置为 ttl（滑动过期），超过 ttl 未写入的会话不可再读到。
// Get 与 Set 之间没有事务保护：同一会话的并发请求可能互相覆盖，调用方需自行串行化。
type SessionStore interface {
	// Get 返回会话；不存在或已过期时返回 (nil, nil)。
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Set(ctx context.Context, sessionID string, session *model.Session, ttl time.Duration) error
}

// NewSessionStore 根据配置的后端名称创建 SessionStore。
// redis 后端需要传入已连接的客户端；ttl 决定内存后端的清理间隔。
func NewSessionStore(ctx context.Context, backend string, redisClient *redis.Client, ttl time.Duration) (SessionStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemorySessionStore(ctx, ttl), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis session backend requires a redis client")
		}
		return NewRedisSessionStore(redisClient), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %q", backend)
	}
}

type redisSessionStore struct {
	redisClient *redis.Client
}

// NewRedisSessionStore 创建一个基于 Redis 原生过期的 SessionStore。
func NewRedisSessionStore(redisClient *redis.Client) SessionStore {
	return &redisSessionStore{redisClient: redisClient}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Get 从 Redis 获取会话。
func (r *redisSessionStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Set 写入会话并重置过期时间。
func (r *redisSessionStore) Set(ctx context.Context, sessionID string, session *model.Session, ttl time.Duration) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(sessionID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}
