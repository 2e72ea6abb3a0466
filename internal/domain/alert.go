package domain

import "time"

// Priority values for Alert.Priority.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Alert 阈值告警领域模型（对应 alerts 表）
// acknowledged 只能单向翻转 false → true，不会回退
type Alert struct {
	// 主键
	AlertID string `db:"alert_id"` // UUID, PRIMARY KEY

	// 设备关联
	DeviceID string `db:"device_id"` // UUID, NOT NULL

	// 告警分类
	AlertType string `db:"alert_type"` // VARCHAR(50), NOT NULL
	Priority  string `db:"priority"`   // VARCHAR(20), CHECK IN ('low', 'medium', 'high')

	// 触发数据
	TriggeringValue float64 `db:"triggering_value"` // NUMERIC, NOT NULL
	ThresholdValue  string  `db:"threshold_value"`  // TEXT, NOT NULL
	Details         *string `db:"details"`          // TEXT, nullable

	// 状态
	Acknowledged bool `db:"acknowledged"` // BOOLEAN, DEFAULT false

	// 时间戳
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
}
