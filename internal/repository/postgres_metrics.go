package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vitalsync-data/internal/domain"
)

// PostgresMetricsRepo 健康指标Repository实现（强类型版本）
type PostgresMetricsRepo struct {
	db *sql.DB
}

// NewPostgresMetricsRepo 创建健康指标Repository
func NewPostgresMetricsRepo(db *sql.DB) *PostgresMetricsRepo {
	return &PostgresMetricsRepo{db: db}
}

// 确保实现了接口
var _ MetricsRepository = (*PostgresMetricsRepo)(nil)

const dailySummaryColumns = `
	summary_id::text,
	device_id::text,
	date,
	steps,
	heart_rate,
	sleep_minutes,
	calories,
	distance,
	floors,
	elevation,
	active_minutes,
	sedentary_minutes,
	nutrition_calories,
	water,
	weight,
	bmi,
	fat,
	oxygen_saturation,
	respiratory_rate,
	temperature
`

// InsertDailySummary 写入或合并每日汇总
// ON CONFLICT 时用 COALESCE 只覆盖本次非 nil 的字段，未提供的列保持原值
func (r *PostgresMetricsRepo) InsertDailySummary(ctx context.Context, deviceID string, date time.Time, fields domain.DailySummaryFields) error {
	query := `
		INSERT INTO daily_summaries (
			device_id, date, steps, heart_rate, sleep_minutes,
			calories, distance, floors, elevation, active_minutes,
			sedentary_minutes, nutrition_calories, water, weight,
			bmi, fat, oxygen_saturation, respiratory_rate, temperature
		) VALUES (
			$1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (device_id, date) DO UPDATE SET
			steps = COALESCE(EXCLUDED.steps, daily_summaries.steps),
			heart_rate = COALESCE(EXCLUDED.heart_rate, daily_summaries.heart_rate),
			sleep_minutes = COALESCE(EXCLUDED.sleep_minutes, daily_summaries.sleep_minutes),
			calories = COALESCE(EXCLUDED.calories, daily_summaries.calories),
			distance = COALESCE(EXCLUDED.distance, daily_summaries.distance),
			floors = COALESCE(EXCLUDED.floors, daily_summaries.floors),
			elevation = COALESCE(EXCLUDED.elevation, daily_summaries.elevation),
			active_minutes = COALESCE(EXCLUDED.active_minutes, daily_summaries.active_minutes),
			sedentary_minutes = COALESCE(EXCLUDED.sedentary_minutes, daily_summaries.sedentary_minutes),
			nutrition_calories = COALESCE(EXCLUDED.nutrition_calories, daily_summaries.nutrition_calories),
			water = COALESCE(EXCLUDED.water, daily_summaries.water),
			weight = COALESCE(EXCLUDED.weight, daily_summaries.weight),
			bmi = COALESCE(EXCLUDED.bmi, daily_summaries.bmi),
			fat = COALESCE(EXCLUDED.fat, daily_summaries.fat),
			oxygen_saturation = COALESCE(EXCLUDED.oxygen_saturation, daily_summaries.oxygen_saturation),
			respiratory_rate = COALESCE(EXCLUDED.respiratory_rate, daily_summaries.respiratory_rate),
			temperature = COALESCE(EXCLUDED.temperature, daily_summaries.temperature)
	`

	_, err := r.db.ExecContext(ctx, query,
		deviceID,
		date,
		fields.Steps,
		fields.HeartRate,
		fields.SleepMinutes,
		fields.Calories,
		fields.Distance,
		fields.Floors,
		fields.Elevation,
		fields.ActiveMinutes,
		fields.SedentaryMinutes,
		fields.NutritionCalories,
		fields.Water,
		fields.Weight,
		fields.BMI,
		fields.Fat,
		fields.OxygenSaturation,
		fields.RespiratoryRate,
		fields.Temperature,
	)
	if err != nil {
		return translateError(err, "failed to insert daily summary")
	}
	return nil
}

// GetDailySummaries 日期范围查询，按 date 升序
func (r *PostgresMetricsRepo) GetDailySummaries(ctx context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.DailySummary, error) {
	query := `SELECT ` + dailySummaryColumns + ` FROM daily_summaries WHERE device_id = $1::uuid`
	args := []interface{}{deviceID}
	argN := 2

	var where []string
	if startDate != nil {
		where = append(where, fmt.Sprintf("date >= $%d", argN))
		args = append(args, *startDate)
		argN++
	}
	if endDate != nil {
		where = append(where, fmt.Sprintf("date <= $%d", argN))
		args = append(args, *endDate)
		argN++
	}
	if len(where) > 0 {
		query += " AND " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "failed to query daily summaries")
	}
	defer rows.Close()

	summaries := make([]*domain.DailySummary, 0)
	for rows.Next() {
		var s domain.DailySummary
		if err := rows.Scan(
			&s.SummaryID,
			&s.DeviceID,
			&s.Date,
			&s.Steps,
			&s.HeartRate,
			&s.SleepMinutes,
			&s.Calories,
			&s.Distance,
			&s.Floors,
			&s.Elevation,
			&s.ActiveMinutes,
			&s.SedentaryMinutes,
			&s.NutritionCalories,
			&s.Water,
			&s.Weight,
			&s.BMI,
			&s.Fat,
			&s.OxygenSaturation,
			&s.RespiratoryRate,
			&s.Temperature,
		); err != nil {
			return nil, translateError(err, "failed to scan daily summary")
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to iterate daily summaries")
	}

	return summaries, nil
}

// GetDailySummaryCheckpoint 从已存储行派生：MAX(date)；无数据返回 nil
func (r *PostgresMetricsRepo) GetDailySummaryCheckpoint(ctx context.Context, deviceID string) (*time.Time, error) {
	query := `SELECT MAX(date) FROM daily_summaries WHERE device_id = $1::uuid`

	var checkpoint sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&checkpoint); err != nil {
		return nil, translateError(err, "failed to get daily summary checkpoint")
	}
	if !checkpoint.Valid {
		return nil, nil
	}
	return &checkpoint.Time, nil
}

// InsertIntradayMetric 写入日内指标，自然键冲突时覆盖值
func (r *PostgresMetricsRepo) InsertIntradayMetric(ctx context.Context, deviceID string, timestamp time.Time, metricType string, value float64) error {
	query := `
		INSERT INTO intraday_metrics (device_id, time, metric_type, value)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (device_id, time, metric_type) DO UPDATE SET
			value = EXCLUDED.value
	`

	if _, err := r.db.ExecContext(ctx, query, deviceID, timestamp, metricType, value); err != nil {
		return translateError(err, "failed to insert intraday metric")
	}
	return nil
}

// GetIntradayMetrics 时间范围查询，按 time 升序
func (r *PostgresMetricsRepo) GetIntradayMetrics(ctx context.Context, deviceID, metricType string, startTime, endTime *time.Time) ([]*domain.IntradayMetric, error) {
	query := `
		SELECT id, device_id::text, time, metric_type, value
		FROM intraday_metrics
		WHERE device_id = $1::uuid AND metric_type = $2
	`
	args := []interface{}{deviceID, metricType}
	argN := 3

	if startTime != nil {
		query += fmt.Sprintf(" AND time >= $%d", argN)
		args = append(args, *startTime)
		argN++
	}
	if endTime != nil {
		query += fmt.Sprintf(" AND time <= $%d", argN)
		args = append(args, *endTime)
		argN++
	}
	query += " ORDER BY time ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "failed to query intraday metrics")
	}
	defer rows.Close()

	metrics := make([]*domain.IntradayMetric, 0)
	for rows.Next() {
		var m domain.IntradayMetric
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.Time, &m.MetricType, &m.Value); err != nil {
			return nil, translateError(err, "failed to scan intraday metric")
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to iterate intraday metrics")
	}

	return metrics, nil
}

// CheckIntradayTimestamp 精确时间点去重检查（任意指标类型命中即为 true）
func (r *PostgresMetricsRepo) CheckIntradayTimestamp(ctx context.Context, deviceID string, timestamp time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM intraday_metrics
			WHERE device_id = $1::uuid AND time = $2
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, deviceID, timestamp).Scan(&exists); err != nil {
		return false, translateError(err, "failed to check intraday timestamp")
	}
	return exists, nil
}

// GetIntradayCheckpoint 从已存储行派生：全部指标类型中的 MAX(time)；无数据返回 nil
func (r *PostgresMetricsRepo) GetIntradayCheckpoint(ctx context.Context, deviceID string) (*time.Time, error) {
	query := `SELECT MAX(time) FROM intraday_metrics WHERE device_id = $1::uuid`

	var checkpoint sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&checkpoint); err != nil {
		return nil, translateError(err, "failed to get intraday checkpoint")
	}
	if !checkpoint.Valid {
		return nil, nil
	}
	return &checkpoint.Time, nil
}
