//go:build integration
// +build integration

package notify

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"vitalsync-data/internal/domain"
)

func getTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis 不可用 (%s): %v", addr, err)
	}
	return client
}

// ============ 告警流发布/消费 ============

func TestAlertStreamPublishAndConsume(t *testing.T) {
	client := getTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	// 每次测试用独立消费者组，避免吃到历史投递位置
	group := fmt.Sprintf("it-group-%d", time.Now().UnixNano())

	publisher := NewAlertPublisher(client)
	alert := &domain.Alert{
		AlertID:         fmt.Sprintf("it-alert-%d", time.Now().UnixNano()),
		DeviceID:        "dev-it",
		AlertType:       "heart_rate_anomaly",
		Priority:        domain.PriorityHigh,
		TriggeringValue: 92,
		ThresholdValue:  "50-110",
		CreatedAt:       time.Now(),
	}
	msgID, err := publisher.PublishAlert(ctx, alert)
	if err != nil {
		t.Fatalf("PublishAlert 失败: %v", err)
	}
	if msgID == "" {
		t.Fatal("Expected non-empty stream message id")
	}
	t.Logf("✅ 告警已发布: %s", msgID)

	// 重复创建消费者组应当幂等
	if err := CreateConsumerGroup(ctx, client, AlertStream, group); err != nil {
		t.Fatalf("CreateConsumerGroup 失败: %v", err)
	}
	if err := CreateConsumerGroup(ctx, client, AlertStream, group); err != nil {
		t.Fatalf("重复 CreateConsumerGroup 失败: %v", err)
	}
	t.Log("✅ 消费者组创建幂等")

	messages, err := ReadFromStream(ctx, client, AlertStream, group, "it-consumer", 64)
	if err != nil {
		t.Fatalf("ReadFromStream 失败: %v", err)
	}

	var found *domain.Alert
	for _, msg := range messages {
		decoded, err := DecodeAlert(msg.Values)
		if err != nil {
			continue
		}
		if decoded.AlertID == alert.AlertID {
			found = decoded
		}
		if err := client.XAck(ctx, AlertStream, group, msg.ID).Err(); err != nil {
			t.Fatalf("XAck 失败: %v", err)
		}
	}
	if found == nil {
		t.Fatalf("Expected published alert in stream, read %d messages", len(messages))
	}
	if found.DeviceID != alert.DeviceID || found.Priority != domain.PriorityHigh {
		t.Errorf("Expected device %s priority high, got %s/%s",
			alert.DeviceID, found.DeviceID, found.Priority)
	}
	t.Logf("✅ 告警消费成功: %s", found.AlertID)

	// ack 后 ">" 不再返回该消息
	again, err := ReadFromStream(ctx, client, AlertStream, group, "it-consumer", 64)
	if err != nil {
		t.Fatalf("ReadFromStream 失败: %v", err)
	}
	for _, msg := range again {
		decoded, err := DecodeAlert(msg.Values)
		if err != nil {
			continue
		}
		if decoded.AlertID == alert.AlertID {
			t.Error("Expected acked alert to not be redelivered")
		}
	}
	t.Log("✅ ack 后不再重投")
}
