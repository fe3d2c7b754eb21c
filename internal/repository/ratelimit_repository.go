package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CounterStore 为固定窗口限流提供按键的原子计数。
type CounterStore interface {
	// Incr 将 key 在 windowStart 开始的窗口内的计数加一并返回新值。
	// 进入新窗口时计数从 1 重新开始。
	Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// rateBucket 是单个 IP 的计数窗口。
type rateBucket struct {
	windowStart time.Time
	count       int64
}

type memoryCounterStore struct {
	mu            sync.Mutex
	buckets       map[string]*rateBucket
	currentWindow time.Time
}

// NewMemoryCounterStore 创建进程内计数器，读改写在同一把锁内完成。
func NewMemoryCounterStore() CounterStore {
	return &memoryCounterStore{buckets: make(map[string]*rateBucket)}
}

func (m *memoryCounterStore) Incr(_ context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if windowStart.After(m.currentWindow) {
		m.pruneLocked(windowStart)
		m.currentWindow = windowStart
	}

	b, ok := m.buckets[key]
	if !ok || !b.windowStart.Equal(windowStart) {
		b = &rateBucket{windowStart: windowStart}
		m.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// pruneLocked 在进入新窗口时清掉旧窗口的桶，防止 map 无限增长。
func (m *memoryCounterStore) pruneLocked(current time.Time) {
	for k, b := range m.buckets {
		if b.windowStart.Before(current) {
			delete(m.buckets, k)
		}
	}
}

type redisCounterStore struct {
	redisClient *redis.Client
}

// NewRedisCounterStore 创建基于 Redis INCR 的计数器，多实例共享同一窗口。
func NewRedisCounterStore(redisClient *redis.Client) CounterStore {
	return &redisCounterStore{redisClient: redisClient}
}

func (r *redisCounterStore) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	// 键里带上窗口序号，窗口切换即换键，旧键靠过期回收
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart.UnixNano()/int64(window))
	var incr *redis.IntCmd
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireAt(ctx, redisKey, windowStart.Add(window+time.Second))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return incr.Val(), nil
}
