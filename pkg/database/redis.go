// Package database 负责初始化 Redis 与 MySQL 连接。
package database

import (
	"context"
	"fmt"
	"time"

	"invest-assist-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// InitRedis 初始化 Redis 客户端连接
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
