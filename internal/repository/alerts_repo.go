package repository

import (
	"context"
	"time"

	"vitalsync-data/internal/domain"
)

// AlertFilters 告警查询过滤条件
type AlertFilters struct {
	StartTime    *time.Time // 创建时间 >= StartTime
	EndTime      *time.Time // 创建时间 <= EndTime
	Acknowledged *bool      // 按确认状态精确过滤；nil 表示不过滤
	Priority     *string    // 按优先级过滤；nil 表示不过滤
}

// AlertsRepository 阈值告警Repository接口
// 本层不做去重：是否重复拉响同类告警由检测方负责（有意保持简单）
type AlertsRepository interface {
	// Create 新建告警（acknowledged=false），返回告警ID
	// alert.CreatedAt 为零值时取当前时间
	Create(ctx context.Context, alert *domain.Alert) (string, error)

	// GetAlerts 按创建时间范围/确认状态过滤，按 created_at 降序（最新在前）
	GetAlerts(ctx context.Context, deviceID string, filters AlertFilters) ([]*domain.Alert, error)

	// GetByPriority 按优先级过滤的便捷方法，等价于带 Priority 的 GetAlerts
	GetByPriority(ctx context.Context, deviceID, priority string) ([]*domain.Alert, error)

	// Acknowledge 确认告警（单向 false → true）
	// 告警不存在返回 ErrNotFound；重复确认静默成功（幂等）
	Acknowledge(ctx context.Context, alertID string) error
}
