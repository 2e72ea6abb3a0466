package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config vitalsync-data（数据采集与访问层）配置
type Config struct {
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Fitbit    FitbitConfig
	Collector CollectorConfig
}

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 生成 lib/pq 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// FitbitConfig Fitbit Web API 配置
type FitbitConfig struct {
	BaseURL      string // API 基地址
	ClientID     string // OAuth2 Client ID
	ClientSecret string // OAuth2 Client Secret
	Timeout      time.Duration
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	Interval     time.Duration // 轮询间隔
	BackfillDays int           // 设备无 checkpoint 时回填的天数
	LockTTL      time.Duration // Redis 采集锁 TTL
}

func Load() *Config {
	cfg := &Config{}

	// Default to true for local dev: if DB is unavailable, vitalsync-data will
	// fall back to the in-memory repositories instead of refusing to start.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitalsync")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// Fitbit 配置
	cfg.Fitbit.BaseURL = getEnv("FITBIT_BASE_URL", "https://api.fitbit.com")
	cfg.Fitbit.ClientID = getEnv("FITBIT_CLIENT_ID", "")
	cfg.Fitbit.ClientSecret = getEnv("FITBIT_CLIENT_SECRET", "")
	cfg.Fitbit.Timeout = time.Duration(parseInt(getEnv("FITBIT_TIMEOUT_SECONDS", "30"), 30)) * time.Second

	// 采集器配置
	cfg.Collector.Interval = time.Duration(parseInt(getEnv("COLLECT_INTERVAL_SECONDS", "900"), 900)) * time.Second
	cfg.Collector.BackfillDays = parseInt(getEnv("COLLECT_BACKFILL_DAYS", "30"), 30)
	cfg.Collector.LockTTL = time.Duration(parseInt(getEnv("COLLECT_LOCK_TTL_SECONDS", "600"), 600)) * time.Second

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
