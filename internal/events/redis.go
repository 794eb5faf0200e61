package events

import (
	"context"
	"errors"
	"fmt"

	xerrors "OrchKeeper/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件通道。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Channel 用于 PUBLISH，订阅者实时接收。
	Channel string
	// HistoryKey 保存最近 HistoryLen 条事件，便于事后查看。
	HistoryKey string
	HistoryLen int64
}

// RedisPublisher 通过 PUBLISH 广播事件，并把事件写入一个定长列表。
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	historyKey string
	historyLen int64
}

// NewRedisPublisher 连接 Redis 并校验可用性。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "orchkeeper:events"
	}
	historyKey := cfg.HistoryKey
	if historyKey == "" {
		historyKey = channel + ":history"
	}
	historyLen := cfg.HistoryLen
	if historyLen <= 0 {
		historyLen = 1000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisPublisher{client: client, channel: channel, historyKey: historyKey, historyLen: historyLen}, nil
}

// Publish 在一个 pipeline 中完成 PUBLISH、LPUSH 与 LTRIM。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := encode(&event)
	if err != nil {
		return err
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.LPush(ctx, p.historyKey, payload)
		pipe.LTrim(ctx, p.historyKey, 0, p.historyLen-1)
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "Redis 发布事件失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
