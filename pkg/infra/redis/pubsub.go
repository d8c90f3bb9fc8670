package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"etcapply/internal/model"
)

// PubSub Redis 发布/订阅客户端
type PubSub struct {
	client  *redis.Client
	channel string
}

// NewPubSub 创建 PubSub 实例
func NewPubSub(addr, password string, db int, channel string) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewPubSubWithClient(client, channel), nil
}

// NewPubSubWithClient 使用已有的客户端
func NewPubSubWithClient(client *redis.Client, channel string) *PubSub {
	return &PubSub{
		client:  client,
		channel: channel,
	}
}

// Notify 发布申请结果通知
func (p *PubSub) Notify(ctx context.Context, notification *model.ApplyNotification) error {
	msgJSON, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Listen 订阅通知频道，逐条解码后交给 fn，ctx 结束时返回
// 解码失败的消息通过 onBad 报告后跳过
func (p *PubSub) Listen(ctx context.Context, fn func(*model.ApplyNotification), onBad func(payload string, err error)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	// 等订阅确认，连接错误在这里暴露
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := DecodeNotification(msg.Payload)
			if err != nil {
				if onBad != nil {
					onBad(msg.Payload, err)
				}
				continue
			}
			fn(n)
		}
	}
}

// DecodeNotification 解码频道消息
func DecodeNotification(payload string) (*model.ApplyNotification, error) {
	var n model.ApplyNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if n.ApplyID == "" || n.Status == "" {
		return nil, fmt.Errorf("notification missing apply_id or status")
	}
	return &n, nil
}

// Close 关闭 Redis 连接
func (p *PubSub) Close() error {
	return p.client.Close()
}
