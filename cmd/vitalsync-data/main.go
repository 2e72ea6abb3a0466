package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vitalsync-data/internal/config"
	"vitalsync-data/internal/database"
	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/logger"
	"vitalsync-data/internal/notify"
	"vitalsync-data/internal/repository"
	"vitalsync-data/internal/service"
	"vitalsync-data/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitalsync-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)
	tokens := store.NewTokenStore(kv)
	publisher := notify.NewAlertPublisher(redisClient)

	// DB 不可用时退回内存 repo，保证本地 `go run` 可用
	var db *sql.DB
	var repos *repository.Repositories
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			repos = repository.NewPostgres(db)
			log.Info("DB enabled for vitalsync-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if repos == nil {
		repos = repository.NewMemory()
	}

	evaluator := service.NewAlertEvaluator(repos.Metrics, repos.Alerts, publisher, log)

	// OAuth token 由授权服务写入 Redis，采集器按设备读取
	newClient := func(ctx context.Context, device *domain.Device) (service.FitbitAPI, error) {
		accessToken, refreshToken, err := tokens.GetTokens(ctx, device.DeviceID)
		if err != nil {
			return nil, err
		}

		deviceID := device.DeviceID
		onTokensUpdated := func(access, refresh string) error {
			return tokens.SaveTokens(ctx, deviceID, access, refresh)
		}

		return service.NewFitbitClient(cfg.Fitbit, accessToken, refreshToken, onTokensUpdated, log), nil
	}

	collector := service.NewCollector(repos, newClient, kv, evaluator, cfg.Collector, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if ids, err := tokens.DeviceIDs(ctx); err != nil {
		log.Warn("Failed to list provisioned token pairs", zap.Error(err))
	} else {
		log.Info("Token store ready", zap.Int("devices", len(ids)))
	}

	// 消费本实例发布的告警流（最小通知端：结构化记录）
	consumerName, err := os.Hostname()
	if err != nil || consumerName == "" {
		consumerName = "vitalsync-data"
	}
	consumer := notify.NewAlertConsumer(redisClient, "vitalsync-notifier", consumerName, nil, log)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Warn("Alert consumer stopped", zap.Error(err))
		}
	}()

	go collector.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	_ = redisClient.Close()
	if db != nil {
		_ = database.Close(db)
	}
}
