package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vitalsync-data/internal/domain"
)

// PostgresAlertsRepo 阈值告警Repository实现
type PostgresAlertsRepo struct {
	db *sql.DB
}

// NewPostgresAlertsRepo 创建告警Repository
func NewPostgresAlertsRepo(db *sql.DB) *PostgresAlertsRepo {
	return &PostgresAlertsRepo{db: db}
}

// 确保实现了接口
var _ AlertsRepository = (*PostgresAlertsRepo)(nil)

// Create 新建告警（acknowledged=false），返回告警ID
func (r *PostgresAlertsRepo) Create(ctx context.Context, alert *domain.Alert) (string, error) {
	if alert == nil {
		return "", fmt.Errorf("alert is required")
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var alertID string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO alerts (
			device_id, alert_type, priority, triggering_value,
			threshold_value, details, acknowledged, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, false, $7)
		RETURNING alert_id::text`,
		alert.DeviceID,
		alert.AlertType,
		alert.Priority,
		alert.TriggeringValue,
		alert.ThresholdValue,
		alert.Details,
		createdAt,
	).Scan(&alertID)
	if err != nil {
		return "", translateError(err, "failed to create alert")
	}

	alert.AlertID = alertID
	alert.Acknowledged = false
	alert.CreatedAt = createdAt
	return alertID, nil
}

// buildWhereClause 构建 WHERE 子句（GetAlerts / GetByPriority 共用）
func (r *PostgresAlertsRepo) buildWhereClause(deviceID string, filters AlertFilters, args *[]interface{}, argN *int) string {
	where := []string{fmt.Sprintf("device_id = $%d::uuid", *argN)}
	*args = append(*args, deviceID)
	*argN++

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}
	if filters.Acknowledged != nil {
		where = append(where, fmt.Sprintf("acknowledged = $%d", *argN))
		*args = append(*args, *filters.Acknowledged)
		*argN++
	}
	if filters.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", *argN))
		*args = append(*args, *filters.Priority)
		*argN++
	}

	return strings.Join(where, " AND ")
}

// GetAlerts 过滤查询，按 created_at 降序（告警消费方关心最近发生的）
func (r *PostgresAlertsRepo) GetAlerts(ctx context.Context, deviceID string, filters AlertFilters) ([]*domain.Alert, error) {
	args := []interface{}{}
	argN := 1
	whereClause := r.buildWhereClause(deviceID, filters, &args, &argN)

	query := `
		SELECT alert_id::text, device_id::text, alert_type, priority,
		       triggering_value, threshold_value, details, acknowledged, created_at
		FROM alerts
		WHERE ` + whereClause + `
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "failed to query alerts")
	}
	defer rows.Close()

	alerts := make([]*domain.Alert, 0)
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(
			&a.AlertID,
			&a.DeviceID,
			&a.AlertType,
			&a.Priority,
			&a.TriggeringValue,
			&a.ThresholdValue,
			&a.Details,
			&a.Acknowledged,
			&a.CreatedAt,
		); err != nil {
			return nil, translateError(err, "failed to scan alert")
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to iterate alerts")
	}

	return alerts, nil
}

// GetByPriority 按优先级过滤（复用 GetAlerts）
func (r *PostgresAlertsRepo) GetByPriority(ctx context.Context, deviceID, priority string) ([]*domain.Alert, error) {
	return r.GetAlerts(ctx, deviceID, AlertFilters{Priority: &priority})
}

// Acknowledge 确认告警：单向 false → true，幂等
func (r *PostgresAlertsRepo) Acknowledge(ctx context.Context, alertID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = true WHERE alert_id = $1::uuid`,
		alertID,
	)
	if err != nil {
		return translateError(err, "failed to acknowledge alert")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "failed to acknowledge alert")
	}
	if affected == 0 {
		return fmt.Errorf("failed to acknowledge alert: alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}
