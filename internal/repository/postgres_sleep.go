package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vitalsync-data/internal/domain"
)

// PostgresSleepRepo 睡眠数据Repository实现
type PostgresSleepRepo struct {
	db *sql.DB
}

// NewPostgresSleepRepo 创建睡眠数据Repository
func NewPostgresSleepRepo(db *sql.DB) *PostgresSleepRepo {
	return &PostgresSleepRepo{db: db}
}

// 确保实现了接口
var _ SleepRepository = (*PostgresSleepRepo)(nil)

// InsertCompleteSleepData 单事务写入会话 + 全部子区间
// 同一 (device_id, start_time) 的旧会话先整体删除（级联删除子区间），
// 任意一步失败则回滚，库里不会留下半成品会话
func (r *PostgresSleepRepo) InsertCompleteSleepData(ctx context.Context, deviceID string, log *domain.SleepLog) (string, error) {
	if log == nil {
		return "", fmt.Errorf("sleep log is required")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return "", translateError(err, "failed to begin sleep transaction")
	}
	defer tx.Rollback()

	// 替换语义：删除旧会话，sleep_stages/sleep_wakes 由 ON DELETE CASCADE 带走
	_, err = tx.ExecContext(ctx,
		`DELETE FROM sleep_logs WHERE device_id = $1::uuid AND start_time = $2`,
		deviceID, log.StartTime,
	)
	if err != nil {
		return "", translateError(err, "failed to replace sleep log")
	}

	var sleepLogID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sleep_logs (
			device_id, start_time, end_time, is_main_sleep, duration,
			minutes_asleep, minutes_awake, time_in_bed, log_type, type
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sleep_log_id::text`,
		deviceID,
		log.StartTime,
		log.EndTime,
		log.IsMainSleep,
		log.Duration,
		log.MinutesAsleep,
		log.MinutesAwake,
		log.TimeInBed,
		log.LogType,
		log.Type,
	).Scan(&sleepLogID)
	if err != nil {
		return "", translateError(err, "failed to insert sleep log")
	}

	for _, stage := range log.Stages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sleep_stages (sleep_log_id, time, level, seconds)
			 VALUES ($1::uuid, $2, $3, $4)`,
			sleepLogID, stage.Time, stage.Level, stage.Seconds,
		)
		if err != nil {
			return "", translateError(err, "failed to insert sleep stage")
		}
	}

	for _, wake := range log.ShortWakes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sleep_wakes (sleep_log_id, time, seconds)
			 VALUES ($1::uuid, $2, $3)`,
			sleepLogID, wake.Time, wake.Seconds,
		)
		if err != nil {
			return "", translateError(err, "failed to insert sleep wake")
		}
	}

	if err := tx.Commit(); err != nil {
		return "", translateError(err, "failed to commit sleep transaction")
	}

	return sleepLogID, nil
}

// GetSleepLogs 按 start_time 范围查询，升序，带完整子区间
func (r *PostgresSleepRepo) GetSleepLogs(ctx context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.SleepLog, error) {
	query := `
		SELECT sleep_log_id::text, device_id::text, start_time, end_time,
		       is_main_sleep, duration, minutes_asleep, minutes_awake,
		       time_in_bed, log_type, type
		FROM sleep_logs
		WHERE device_id = $1::uuid
	`
	args := []interface{}{deviceID}
	argN := 2

	if startDate != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argN)
		args = append(args, *startDate)
		argN++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND start_time <= $%d", argN)
		args = append(args, *endDate)
		argN++
	}
	query += " ORDER BY start_time ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "failed to query sleep logs")
	}
	defer rows.Close()

	logs := make([]*domain.SleepLog, 0)
	byID := make(map[string]*domain.SleepLog)
	for rows.Next() {
		var l domain.SleepLog
		if err := rows.Scan(
			&l.SleepLogID,
			&l.DeviceID,
			&l.StartTime,
			&l.EndTime,
			&l.IsMainSleep,
			&l.Duration,
			&l.MinutesAsleep,
			&l.MinutesAwake,
			&l.TimeInBed,
			&l.LogType,
			&l.Type,
		); err != nil {
			return nil, translateError(err, "failed to scan sleep log")
		}
		l.Stages = make([]domain.SleepStage, 0)
		l.ShortWakes = make([]domain.SleepWake, 0)
		logs = append(logs, &l)
		byID[l.SleepLogID] = &l
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to iterate sleep logs")
	}
	if len(logs) == 0 {
		return logs, nil
	}

	if err := r.loadStages(ctx, deviceID, byID); err != nil {
		return nil, err
	}
	if err := r.loadWakes(ctx, deviceID, byID); err != nil {
		return nil, err
	}

	return logs, nil
}

// loadStages 批量装载阶段子区间（按会话分组，时间升序）
func (r *PostgresSleepRepo) loadStages(ctx context.Context, deviceID string, byID map[string]*domain.SleepLog) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ss.sleep_log_id::text, ss.time, ss.level, ss.seconds
		 FROM sleep_stages ss
		 JOIN sleep_logs sl ON ss.sleep_log_id = sl.sleep_log_id
		 WHERE sl.device_id = $1::uuid
		 ORDER BY ss.time ASC`,
		deviceID,
	)
	if err != nil {
		return translateError(err, "failed to query sleep stages")
	}
	defer rows.Close()

	for rows.Next() {
		var logID string
		var stage domain.SleepStage
		if err := rows.Scan(&logID, &stage.Time, &stage.Level, &stage.Seconds); err != nil {
			return translateError(err, "failed to scan sleep stage")
		}
		if l, ok := byID[logID]; ok {
			l.Stages = append(l.Stages, stage)
		}
	}
	return translateError(rows.Err(), "failed to iterate sleep stages")
}

// loadWakes 批量装载短醒子区间
func (r *PostgresSleepRepo) loadWakes(ctx context.Context, deviceID string, byID map[string]*domain.SleepLog) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sw.sleep_log_id::text, sw.time, sw.seconds
		 FROM sleep_wakes sw
		 JOIN sleep_logs sl ON sw.sleep_log_id = sl.sleep_log_id
		 WHERE sl.device_id = $1::uuid
		 ORDER BY sw.time ASC`,
		deviceID,
	)
	if err != nil {
		return translateError(err, "failed to query sleep wakes")
	}
	defer rows.Close()

	for rows.Next() {
		var logID string
		var wake domain.SleepWake
		if err := rows.Scan(&logID, &wake.Time, &wake.Seconds); err != nil {
			return translateError(err, "failed to scan sleep wake")
		}
		if l, ok := byID[logID]; ok {
			l.ShortWakes = append(l.ShortWakes, wake)
		}
	}
	return translateError(rows.Err(), "failed to iterate sleep wakes")
}
