package domain

import "time"

// DailySummary 每日汇总领域模型（对应 daily_summaries 表）
// 唯一性约束：device_id + date，重复写入按字段合并（见 MetricsRepository）
type DailySummary struct {
	// 主键
	SummaryID string `db:"summary_id"` // UUID, PRIMARY KEY

	// 自然键
	DeviceID string    `db:"device_id"` // UUID, NOT NULL
	Date     time.Time `db:"date"`      // DATE, NOT NULL

	// 指标字段（全部可空，缺失表示上游未提供）
	DailySummaryFields
}

// DailySummaryFields holds the optional metric columns of a daily summary.
// A nil pointer means "not supplied": inserts leave the stored value
// untouched for nil fields and overwrite it for non-nil ones.
type DailySummaryFields struct {
	Steps             *int     `db:"steps"`              // INTEGER
	HeartRate         *float64 `db:"heart_rate"`         // DOUBLE PRECISION
	SleepMinutes      *float64 `db:"sleep_minutes"`      // DOUBLE PRECISION
	Calories          *float64 `db:"calories"`           // DOUBLE PRECISION
	Distance          *float64 `db:"distance"`           // DOUBLE PRECISION
	Floors            *float64 `db:"floors"`             // DOUBLE PRECISION
	Elevation         *float64 `db:"elevation"`          // DOUBLE PRECISION
	ActiveMinutes     *float64 `db:"active_minutes"`     // DOUBLE PRECISION
	SedentaryMinutes  *float64 `db:"sedentary_minutes"`  // DOUBLE PRECISION
	NutritionCalories *float64 `db:"nutrition_calories"` // DOUBLE PRECISION
	Water             *float64 `db:"water"`              // DOUBLE PRECISION
	Weight            *float64 `db:"weight"`             // DOUBLE PRECISION
	BMI               *float64 `db:"bmi"`                // DOUBLE PRECISION
	Fat               *float64 `db:"fat"`                // DOUBLE PRECISION
	OxygenSaturation  *float64 `db:"oxygen_saturation"`  // DOUBLE PRECISION
	RespiratoryRate   *float64 `db:"respiratory_rate"`   // DOUBLE PRECISION
	Temperature       *float64 `db:"temperature"`        // DOUBLE PRECISION
}
