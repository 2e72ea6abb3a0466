package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vitalsync-data/internal/domain"
)

// AlertHandler 处理一条消费到的告警
type AlertHandler func(ctx context.Context, alert *domain.Alert) error

// AlertConsumer 告警流的消费者组消费者。下游通知侧的最小实现：
// 默认 handler 只结构化记录；处理成功后 XACK，失败留给重投。
type AlertConsumer struct {
	client  *redis.Client
	group   string
	name    string
	handler AlertHandler
	logger  *zap.Logger
}

// NewAlertConsumer 创建告警消费者。handler 为 nil 时只记日志。
func NewAlertConsumer(client *redis.Client, group, name string, handler AlertHandler, logger *zap.Logger) *AlertConsumer {
	c := &AlertConsumer{
		client:  client,
		group:   group,
		name:    name,
		handler: handler,
		logger:  logger,
	}
	if c.handler == nil {
		c.handler = c.logAlert
	}
	return c
}

func (c *AlertConsumer) logAlert(_ context.Context, alert *domain.Alert) error {
	c.logger.Info("Alert received",
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_type", alert.AlertType),
		zap.String("priority", alert.Priority),
	)
	return nil
}

// Run 创建消费者组并循环消费，ctx 取消后返回
func (c *AlertConsumer) Run(ctx context.Context) error {
	if err := CreateConsumerGroup(ctx, c.client, AlertStream, c.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := ReadFromStream(ctx, c.client, AlertStream, c.group, c.name, 16)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to read alert stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			alert, err := DecodeAlert(msg.Values)
			if err != nil {
				// 坏消息直接 ack 丢弃，避免反复重投
				c.logger.Warn("Skipping malformed alert message",
					zap.String("id", msg.ID), zap.Error(err))
			} else if err := c.handler(ctx, alert); err != nil {
				c.logger.Warn("Alert handler failed",
					zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			c.client.XAck(ctx, AlertStream, c.group, msg.ID)
		}
	}
}

// DecodeAlert 解出 PublishAlert 写入的 JSON 负载
func DecodeAlert(values map[string]interface{}) (*domain.Alert, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("alert message has no data field")
	}
	var alert domain.Alert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	return &alert, nil
}
