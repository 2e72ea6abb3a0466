package domain

import "time"

// Authorization status values for Device.AuthorizationStatus.
const (
	AuthStatusPending    = "pending"
	AuthStatusAuthorized = "authorized"
	AuthStatusRevoked    = "revoked"
)

// Device 设备领域模型（对应 devices 表）
// 一台设备对应一个被监测账号（邮箱地址），所有时序数据通过 device_id 关联
type Device struct {
	// 主键
	DeviceID string `db:"device_id"` // UUID, PRIMARY KEY

	// 归属
	AdminUserID  string `db:"admin_user_id"` // UUID, NOT NULL
	EmailAddress string `db:"email_address"` // VARCHAR(255), NOT NULL, UNIQUE

	// 授权状态
	AuthorizationStatus string `db:"authorization_status"` // VARCHAR(20), CHECK IN ('pending', 'authorized', 'revoked')

	// 设备信息
	DeviceType *string `db:"device_type"` // VARCHAR(50), nullable

	// 时间戳
	CreatedAt time.Time  `db:"created_at"` // TIMESTAMPTZ, NOT NULL
	LastSync  *time.Time `db:"last_sync"`  // TIMESTAMPTZ, nullable
}
