package repository

import (
	"context"
	"time"

	"vitalsync-data/internal/domain"
)

// DevicesRepository 设备记录Repository接口
// 注册/OAuth 流程在上层服务，本层只负责设备记录本身的读写
type DevicesRepository interface {
	// Create 创建设备记录，返回设备ID；邮箱重复返回 ErrConstraint
	Create(ctx context.Context, device *domain.Device) (string, error)

	// GetByID 按ID获取；不存在返回 ErrNotFound
	GetByID(ctx context.Context, deviceID string) (*domain.Device, error)

	// GetByEmail 按邮箱地址获取；不存在返回 ErrNotFound
	GetByEmail(ctx context.Context, emailAddress string) (*domain.Device, error)

	// ListAuthorized 全部已授权设备（采集端遍历用），按 created_at 升序
	ListAuthorized(ctx context.Context) ([]*domain.Device, error)

	// UpdateStatus 授权状态流转（pending/authorized/revoked）
	UpdateStatus(ctx context.Context, deviceID, status string) error

	// UpdateLastSync 记录最近一次成功采集时间
	UpdateLastSync(ctx context.Context, deviceID string, timestamp time.Time) error
}
