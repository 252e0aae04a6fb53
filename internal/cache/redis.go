package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = fmt.Errorf("cache miss")

// RedisCache Redis 缓存客户端
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建 Redis 缓存客户端
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Set 设置缓存（带过期时间）
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return fmt.Errorf("get cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal cache data: %w", err)
	}

	return nil
}

// Delete 删除缓存
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// CacheKey 生成缓存 key
func CacheKey(prefix string, parts ...string) string {
	key := "novelhub:" + prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// TaskStatusEntry 任务状态缓存条目（GET /tasks/:id 的快速路径）
type TaskStatusEntry struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// TaskStatusKey 任务状态缓存 key
func TaskStatusKey(taskID string) string {
	return CacheKey("task", "status", taskID)
}

// SetTaskStatus 写入任务状态缓存（5 分钟过期）
func (c *RedisCache) SetTaskStatus(ctx context.Context, taskID, status string, progress int) error {
	return c.Set(ctx, TaskStatusKey(taskID), TaskStatusEntry{Status: status, Progress: progress}, 5*time.Minute)
}

// GetTaskStatus 读取任务状态缓存
func (c *RedisCache) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusEntry, error) {
	var entry TaskStatusEntry
	if err := c.Get(ctx, TaskStatusKey(taskID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteTaskStatus 删除任务状态缓存（任务删除时）
func (c *RedisCache) DeleteTaskStatus(ctx context.Context, taskID string) error {
	return c.Delete(ctx, TaskStatusKey(taskID))
}
