package repository

import (
	"context"
	"time"

	"vitalsync-data/internal/domain"
)

// SleepRepository 睡眠数据Repository接口
// 会话（sleep_logs）与其阶段/短醒子区间作为一个逻辑单元读写
type SleepRepository interface {
	// InsertCompleteSleepData 一次性写入会话及全部子区间，返回会话ID
	// 全部成功或全部失败：读者不会看到缺子区间的半成品会话。
	// 同一 (device_id, start_time) 重复写入时整体替换旧会话（replace，
	// 不同于每日汇总的字段合并——睡眠会话是单个整体对象）
	InsertCompleteSleepData(ctx context.Context, deviceID string, log *domain.SleepLog) (string, error)

	// GetSleepLogs 按 start_time 范围查询（闭区间，nil 表示无界），升序，
	// 每个会话总是带完整子区间
	GetSleepLogs(ctx context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.SleepLog, error)
}
