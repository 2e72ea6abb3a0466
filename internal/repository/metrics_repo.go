package repository

import (
	"context"
	"time"

	"vitalsync-data/internal/domain"
)

// MetricsRepository 健康指标数据Repository接口
// 覆盖每日汇总（daily_summaries）和日内时序（intraday_metrics）两类数据，
// 以及采集客户端断点续传所需的 checkpoint 查询。
// 注意：checkpoint 永远从已存储行派生（MAX 查询），不单独维护计数器，
// 保证 checkpoint 不会与底层数据漂移。
type MetricsRepository interface {
	// InsertDailySummary 写入或合并每日汇总（自然键：device_id + date）
	// 已存在时只覆盖本次提供（非 nil）的字段，其余保持不变；
	// 设备不存在时返回 ErrNotFound（内存实现不做该检查，见 MemoryMetricsRepo）
	InsertDailySummary(ctx context.Context, deviceID string, date time.Time, fields domain.DailySummaryFields) error

	// GetDailySummaries 日期范围查询（闭区间，nil 表示无界），按 date 升序
	// 无匹配时返回空切片而不是 nil
	GetDailySummaries(ctx context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.DailySummary, error)

	// GetDailySummaryCheckpoint 该设备已存储的最大 date；无数据返回 nil
	GetDailySummaryCheckpoint(ctx context.Context, deviceID string) (*time.Time, error)

	// InsertIntradayMetric 写入日内指标（自然键：device_id + time + metric_type）
	// 键已存在时覆盖值（last write wins），不产生重复行
	InsertIntradayMetric(ctx context.Context, deviceID string, timestamp time.Time, metricType string, value float64) error

	// GetIntradayMetrics 时间范围查询（闭区间，nil 表示无界），按 time 升序
	GetIntradayMetrics(ctx context.Context, deviceID, metricType string, startTime, endTime *time.Time) ([]*domain.IntradayMetric, error)

	// CheckIntradayTimestamp 该设备在该精确时间点是否已有任意类型的指标
	// 供采集客户端在 checkpoint 之下做更细粒度的去重
	CheckIntradayTimestamp(ctx context.Context, deviceID string, timestamp time.Time) (bool, error)

	// GetIntradayCheckpoint 该设备全部指标类型中已存储的最大 time；无数据返回 nil
	GetIntradayCheckpoint(ctx context.Context, deviceID string) (*time.Time, error)
}
