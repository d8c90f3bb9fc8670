package lmstfy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"etcapply/internal/model"
)

// 回调任务参数
const (
	callbackTTL   uint32 = 24 * 3600 // 一天内没人消费就丢弃
	callbackTries uint16 = 3
)

// Client Lmstfy 客户端封装
type Client struct {
	cli       *client.LmstfyClient
	namespace string
	queue     string
}

// Job 拉取到的回调任务
type Job struct {
	ID           string
	Notification model.ApplyNotification
}

// NewClient 创建 Lmstfy 客户端，queue 为申请回调队列
func NewClient(host string, port int, namespace, token, queue string) *Client {
	return &Client{
		cli:       client.NewLmstfyClient(host, port, namespace, token),
		namespace: namespace,
		queue:     queue,
	}
}

// Notify 把申请结果作为回调任务投递到队列
func (c *Client) Notify(_ context.Context, notification *model.ApplyNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := c.cli.Publish(c.queue, data, callbackTTL, callbackTries, 0); err != nil {
		return fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return nil
}

// Consume 拉取一条回调任务，超时没有任务时返回 nil
func (c *Client) Consume(timeout, ttr time.Duration) (*Job, error) {
	job, err := c.cli.Consume(c.queue, uint32(ttr.Seconds()), uint32(timeout.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume failed: %w", err)
	}
	if job == nil {
		return nil, nil
	}

	out := &Job{ID: job.ID}
	if err := json.Unmarshal(job.Data, &out.Notification); err != nil {
		// 解析失败直接 ACK，避免反复投递
		_ = c.Ack(job.ID)
		return nil, fmt.Errorf("unmarshal callback failed: %w", err)
	}
	return out, nil
}

// Ack 确认回调任务
func (c *Client) Ack(jobID string) error {
	if err := c.cli.Ack(c.queue, jobID); err != nil {
		return fmt.Errorf("lmstfy ack failed: %w", err)
	}
	return nil
}
