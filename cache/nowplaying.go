// Package cache 将电台当前播放状态同步到 Redis，供其他进程读取
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"SyncFM/model"
)

const (
	NowPlayingKey = "radio:now_playing" // String: 最新状态 JSON
	SyncChannel   = "radio:sync"        // Pub/Sub: 每次状态同步
	nowPlayingTTL = 30 * time.Second
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NowPlaying 保存最新状态并发布每次同步
type NowPlaying struct {
	client redisClient
	ttl    time.Duration
}

// NewNowPlaying 创建状态缓存，电台停止写入后 key 自动过期
func NewNowPlaying(client redisClient) *NowPlaying {
	return &NowPlaying{client: client, ttl: nowPlayingTTL}
}

// PublishSnapshot 实现 broadcast.SnapshotSink
func (n *NowPlaying) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := n.client.Set(ctx, NowPlayingKey, data, n.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store now playing: %w", err)
	}
	if err := n.client.Publish(ctx, SyncChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Latest 获取最新状态，不存在时 ok 为 false
func (n *NowPlaying) Latest(ctx context.Context) (snap model.Snapshot, ok bool, err error) {
	data, err := n.client.Get(ctx, NowPlayingKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return snap, false, nil
		}
		return snap, false, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}
