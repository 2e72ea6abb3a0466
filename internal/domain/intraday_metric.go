package domain

import "time"

// Metric type values for IntradayMetric.MetricType.
const (
	MetricHeartRate = "heart_rate"
	MetricSteps     = "steps"
	MetricCalories  = "calories"
	MetricDistance  = "distance"
)

// IntradayMetric 日内时序数据领域模型（对应 intraday_metrics 表）
// 自然键：device_id + time + metric_type，重复写入按值覆盖（last write wins）
type IntradayMetric struct {
	// 主键
	ID int64 `db:"id"` // BIGSERIAL

	// 自然键
	DeviceID   string    `db:"device_id"`   // UUID, NOT NULL
	Time       time.Time `db:"time"`        // TIMESTAMPTZ, NOT NULL
	MetricType string    `db:"metric_type"` // VARCHAR(30), NOT NULL

	// 指标值
	Value float64 `db:"value"` // NUMERIC, NOT NULL
}
