package repository

import "database/sql"

// Repositories 仓储集合：把四个能力接口做成一个薄组合，方便装配。
// 只做绑定，不承载业务逻辑；调用方按需取单个接口。
type Repositories struct {
	Devices DevicesRepository
	Metrics MetricsRepository
	Sleep   SleepRepository
	Alerts  AlertsRepository
}

// NewPostgres 基于同一个 *sql.DB 构建全部 Postgres 仓储
func NewPostgres(db *sql.DB) *Repositories {
	return &Repositories{
		Devices: NewPostgresDevicesRepo(db),
		Metrics: NewPostgresMetricsRepo(db),
		Sleep:   NewPostgresSleepRepo(db),
		Alerts:  NewPostgresAlertsRepo(db),
	}
}

// NewMemory 构建全部内存仓储（测试/无DB联调用）
func NewMemory() *Repositories {
	return &Repositories{
		Devices: NewMemoryDevicesRepo(),
		Metrics: NewMemoryMetricsRepo(),
		Sleep:   NewMemorySleepRepo(),
		Alerts:  NewMemoryAlertsRepo(),
	}
}
