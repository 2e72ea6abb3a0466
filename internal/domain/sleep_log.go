package domain

import "time"

// Sleep stage level values for SleepStage.Level.
const (
	SleepLevelDeep  = "deep"
	SleepLevelLight = "light"
	SleepLevelREM   = "rem"
	SleepLevelWake  = "wake"
)

// SleepLog 睡眠会话领域模型（对应 sleep_logs 表 + 子区间表）
// 会话及其子区间作为一个整体写入：替换覆盖（replace），不做字段合并
type SleepLog struct {
	// 主键
	SleepLogID string `db:"sleep_log_id"` // UUID, PRIMARY KEY

	// 设备关联
	DeviceID string `db:"device_id"` // UUID, NOT NULL

	// 会话信息
	StartTime   time.Time `db:"start_time"`    // TIMESTAMPTZ, NOT NULL
	EndTime     time.Time `db:"end_time"`      // TIMESTAMPTZ, NOT NULL
	IsMainSleep bool      `db:"is_main_sleep"` // BOOLEAN, NOT NULL
	Duration    int64     `db:"duration"`      // BIGINT, milliseconds

	// 统计
	MinutesAsleep int `db:"minutes_asleep"` // INTEGER
	MinutesAwake  int `db:"minutes_awake"`  // INTEGER
	TimeInBed     int `db:"time_in_bed"`    // INTEGER, minutes

	// 分类
	LogType string `db:"log_type"` // VARCHAR(30), e.g. 'auto_detected'
	Type    string `db:"type"`     // VARCHAR(30), e.g. 'stages'/'classic'

	// 子区间（读取时总是填充，顺序按时间升序）
	Stages     []SleepStage `db:"-"`
	ShortWakes []SleepWake  `db:"-"`
}

// SleepStage 睡眠阶段子区间（对应 sleep_stages 表）
type SleepStage struct {
	Time    time.Time `db:"time"`    // TIMESTAMPTZ, NOT NULL
	Level   string    `db:"level"`   // VARCHAR(20), deep/light/rem/wake
	Seconds int       `db:"seconds"` // INTEGER, NOT NULL
}

// SleepWake 短醒子区间（对应 sleep_wakes 表）
type SleepWake struct {
	Time    time.Time `db:"time"`    // TIMESTAMPTZ, NOT NULL
	Seconds int       `db:"seconds"` // INTEGER, NOT NULL
}
