package database

import (
	"context"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis redis 未启用时返回 nil 客户端，调用方回退到进程内实现
func InitRedis(cfg *config.RedisConfig, engine *config.EngineConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(RedisOptions(cfg, engine))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Log.Info("Redis connection established",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("poolSize", rdb.Options().PoolSize))
	return rdb, nil
}

// RedisOptions 事件流消费者每个 worker 会长期占用一个阻塞连接，对账认领再占一个，连接池要在此之上留出余量
func RedisOptions(cfg *config.RedisConfig, engine *config.EngineConfig) *redis.Options {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 50
	}
	if engine != nil && engine.EventBackend == util.BackendRedis {
		poolSize += engine.EventWorkers + 1
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
	}
}
