package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// attemptTTL 是失败计数的保留时间。
const attemptTTL = 24 * time.Hour

// AttemptCounter 记录异步任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttemptCounter struct {
	redisClient *redis.Client
}

// NewRedisAttemptCounter 创建基于 Redis 的失败计数器，多个消费者实例共享计数。
func NewRedisAttemptCounter(redisClient *redis.Client) AttemptCounter {
	return &redisAttemptCounter{redisClient: redisClient}
}

func (r *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	_ = r.redisClient.Expire(ctx, key, attemptTTL).Err()
	return n, nil
}

func (r *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, key).Err()
}

type memoryAttemptCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryAttemptCounter 创建进程内失败计数器，用于没有 Redis 的单实例部署。
func NewMemoryAttemptCounter() AttemptCounter {
	return &memoryAttemptCounter{counts: make(map[string]int64)}
}

func (m *memoryAttemptCounter) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryAttemptCounter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.counts, key)
	m.mu.Unlock()
	return nil
}
