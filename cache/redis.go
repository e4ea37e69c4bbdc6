// Package cache 提供合约元数据的 Redis 缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizchain/client-sdk-go/services/reward"
)

const (
	metadataKeyPrefix = "quizchain:nft:metadata:v1:"
	defaultTTL        = 24 * time.Hour
	pingTimeout       = 2 * time.Second
)

// Config Redis 缓存配置
type Config struct {
	// Addr Redis 地址（为空时缓存禁用，所有操作为空操作）
	Addr string
	// TTL 过期时间（默认 24 小时）
	TTL time.Duration
}

// MetadataCache 基于 Redis 的 NFT 元数据缓存（实现 reward.MetadataCache）
//
// **说明**：
// - 只缓存合约的不可变元数据，账户和序列号永远不缓存
// - Redis 不可用时读取视为未命中，不影响业务流程
type MetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ reward.MetadataCache = (*MetadataCache)(nil)

// NewMetadataCache 创建元数据缓存并检查连通性
func NewMetadataCache(cfg Config) (*MetadataCache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return &MetadataCache{}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &MetadataCache{client: client, ttl: cfg.TTL}, nil
}

// Enabled 缓存是否可用
func (c *MetadataCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get 读取缓存的元数据
func (c *MetadataCache) Get(ctx context.Context, contractID string) (*reward.Metadata, bool) {
	if !c.Enabled() {
		return nil, false
	}
	cached, err := c.client.Get(ctx, metadataKey(contractID)).Result()
	if err != nil {
		return nil, false
	}
	var md reward.Metadata
	if err := json.Unmarshal([]byte(cached), &md); err != nil {
		return nil, false
	}
	return &md, true
}

// Set 写入元数据（默认值不写入）
func (c *MetadataCache) Set(ctx context.Context, contractID string, metadata *reward.Metadata) error {
	if !c.Enabled() || metadata == nil || metadata.Fallback {
		return nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, metadataKey(contractID), payload, c.ttl).Err()
}

// Invalidate 删除某个合约的缓存（合约升级后使用）
func (c *MetadataCache) Invalidate(ctx context.Context, contractID string) error {
	if !c.Enabled() {
		return nil
	}
	err := c.client.Del(ctx, metadataKey(contractID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Close 关闭连接
func (c *MetadataCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func metadataKey(contractID string) string {
	return metadataKeyPrefix + contractID
}
