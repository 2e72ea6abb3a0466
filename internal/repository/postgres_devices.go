package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vitalsync-data/internal/domain"
)

// PostgresDevicesRepo 设备记录Repository实现
type PostgresDevicesRepo struct {
	db *sql.DB
}

// NewPostgresDevicesRepo 创建设备Repository
func NewPostgresDevicesRepo(db *sql.DB) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db}
}

// 确保实现了接口
var _ DevicesRepository = (*PostgresDevicesRepo)(nil)

const deviceColumns = `
	device_id::text,
	admin_user_id::text,
	email_address,
	authorization_status,
	device_type,
	created_at,
	last_sync
`

// Create 创建设备记录
func (r *PostgresDevicesRepo) Create(ctx context.Context, device *domain.Device) (string, error) {
	if device == nil || device.EmailAddress == "" {
		return "", fmt.Errorf("email_address is required")
	}

	status := device.AuthorizationStatus
	if status == "" {
		status = domain.AuthStatusPending
	}

	var deviceID string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO devices (admin_user_id, email_address, authorization_status, device_type)
		 VALUES ($1::uuid, $2, $3, $4)
		 RETURNING device_id::text`,
		device.AdminUserID,
		device.EmailAddress,
		status,
		device.DeviceType,
	).Scan(&deviceID)
	if err != nil {
		return "", translateError(err, "failed to create device")
	}

	device.DeviceID = deviceID
	device.AuthorizationStatus = status
	return deviceID, nil
}

func (r *PostgresDevicesRepo) scanDevice(row *sql.Row, op string) (*domain.Device, error) {
	var d domain.Device
	err := row.Scan(
		&d.DeviceID,
		&d.AdminUserID,
		&d.EmailAddress,
		&d.AuthorizationStatus,
		&d.DeviceType,
		&d.CreatedAt,
		&d.LastSync,
	)
	if err != nil {
		return nil, translateError(err, op)
	}
	return &d, nil
}

// GetByID 按ID获取
func (r *PostgresDevicesRepo) GetByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = $1::uuid`,
		deviceID,
	)
	return r.scanDevice(row, "failed to get device")
}

// GetByEmail 按邮箱地址获取
func (r *PostgresDevicesRepo) GetByEmail(ctx context.Context, emailAddress string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE email_address = $1`,
		emailAddress,
	)
	return r.scanDevice(row, "failed to get device by email")
}

// ListAuthorized 全部已授权设备，按 created_at 升序
func (r *PostgresDevicesRepo) ListAuthorized(ctx context.Context) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE authorization_status = $1
		 ORDER BY created_at ASC`,
		domain.AuthStatusAuthorized,
	)
	if err != nil {
		return nil, translateError(err, "failed to list authorized devices")
	}
	defer rows.Close()

	devices := make([]*domain.Device, 0)
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(
			&d.DeviceID,
			&d.AdminUserID,
			&d.EmailAddress,
			&d.AuthorizationStatus,
			&d.DeviceType,
			&d.CreatedAt,
			&d.LastSync,
		); err != nil {
			return nil, translateError(err, "failed to scan device")
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to iterate devices")
	}

	return devices, nil
}

// UpdateStatus 授权状态流转
func (r *PostgresDevicesRepo) UpdateStatus(ctx context.Context, deviceID, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET authorization_status = $1 WHERE device_id = $2::uuid`,
		status, deviceID,
	)
	if err != nil {
		return translateError(err, "failed to update device status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "failed to update device status")
	}
	if affected == 0 {
		return fmt.Errorf("failed to update device status: device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// UpdateLastSync 记录最近一次成功采集时间
func (r *PostgresDevicesRepo) UpdateLastSync(ctx context.Context, deviceID string, timestamp time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_sync = $1 WHERE device_id = $2::uuid`,
		timestamp, deviceID,
	)
	if err != nil {
		return translateError(err, "failed to update last sync")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "failed to update last sync")
	}
	if affected == 0 {
		return fmt.Errorf("failed to update last sync: device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}
