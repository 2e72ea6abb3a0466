package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"vitalsync-data/internal/config"
	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/repository"
	"vitalsync-data/internal/store"
)

// CollectorResult 单设备采集结果
type CollectorResult string

const (
	ResultSuccess     CollectorResult = "success"
	ResultRateLimited CollectorResult = "rate_limited"
	ResultError       CollectorResult = "error"
)

// CycleResults 一轮采集的聚合统计
type CycleResults struct {
	Success     int
	RateLimited int
	Errors      int
}

// Total 本轮处理的设备数
func (r CycleResults) Total() int {
	return r.Success + r.RateLimited + r.Errors
}

// AllRateLimited 所有设备都被限流（调用方据此延长等待）
func (r CycleResults) AllRateLimited() bool {
	return r.RateLimited > 0 && r.RateLimited == r.Total()
}

// ClientFactory 按设备创建上游客户端（token 解析由调用方负责）
type ClientFactory func(ctx context.Context, device *domain.Device) (FitbitAPI, error)

const collectorLockKey = "vitalsync:collector:lock"

// Collector 后台采集器：遍历已授权设备，从各自 checkpoint 起补齐
// 每日汇总、分钟级指标和睡眠会话。checkpoint 不单独存储，
// 全部从已入库的行派生。
type Collector struct {
	repos     *repository.Repositories
	newClient ClientFactory
	kv        store.KV
	evaluator *AlertEvaluator
	cfg       config.CollectorConfig
	logger    *zap.Logger

	// now 可在测试里替换
	now func() time.Time
}

// NewCollector 创建采集器。kv 与 evaluator 可为 nil（本地内存模式）。
func NewCollector(repos *repository.Repositories, newClient ClientFactory, kv store.KV, evaluator *AlertEvaluator, cfg config.CollectorConfig, logger *zap.Logger) *Collector {
	return &Collector{
		repos:     repos,
		newClient: newClient,
		kv:        kv,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run 周期性执行采集，ctx 取消后返回
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("Collector started", zap.Duration("interval", c.cfg.Interval))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		results, err := c.RunCycle(ctx)
		if err != nil {
			c.logger.Error("Collection cycle failed", zap.Error(err))
		} else {
			c.logger.Info("Cycle complete",
				zap.Int("success", results.Success),
				zap.Int("rate_limited", results.RateLimited),
				zap.Int("errors", results.Errors),
			)
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Collector stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle 执行一轮采集。多实例部署时用 Redis 锁互斥，
// 没拿到锁说明别的实例在跑，本轮直接跳过。
func (c *Collector) RunCycle(ctx context.Context) (CycleResults, error) {
	if c.kv != nil {
		acquired, err := c.kv.AcquireLock(ctx, collectorLockKey, c.cfg.LockTTL)
		if err != nil {
			return CycleResults{}, err
		}
		if !acquired {
			c.logger.Info("Collection lock held by another instance, skipping cycle")
			return CycleResults{}, nil
		}
		defer func() {
			if err := c.kv.ReleaseLock(ctx, collectorLockKey); err != nil {
				c.logger.Warn("Failed to release collection lock", zap.Error(err))
			}
		}()
	}

	return c.CollectAllDevices(ctx)
}

// CollectAllDevices 遍历全部已授权设备
func (c *Collector) CollectAllDevices(ctx context.Context) (CycleResults, error) {
	devices, err := c.repos.Devices.ListAuthorized(ctx)
	if err != nil {
		return CycleResults{}, err
	}
	if len(devices) == 0 {
		c.logger.Warn("No authorized devices found")
		return CycleResults{}, nil
	}

	var results CycleResults
	for _, device := range devices {
		switch c.CollectDevice(ctx, device) {
		case ResultSuccess:
			results.Success++
		case ResultRateLimited:
			results.RateLimited++
		default:
			results.Errors++
		}
	}
	return results, nil
}

// CollectDevice 单设备采集：汇总、分钟级、睡眠依次执行。
// 任一环节限流则整个设备视为限流，后续环节本轮不再尝试。
func (c *Collector) CollectDevice(ctx context.Context, device *domain.Device) CollectorResult {
	logger := c.logger.With(
		zap.String("device_id", device.DeviceID),
		zap.String("email", device.EmailAddress),
	)

	if device.AuthorizationStatus != domain.AuthStatusAuthorized {
		logger.Warn("Device is not authorized")
		return ResultError
	}

	client, err := c.newClient(ctx, device)
	if err != nil {
		logger.Warn("Failed to create upstream client", zap.Error(err))
		return ResultError
	}

	if result := c.collectDailySummaries(ctx, device, client, logger); result != ResultSuccess {
		return result
	}
	if result := c.collectIntraday(ctx, device, client, logger); result != ResultSuccess {
		return result
	}
	if result := c.collectSleep(ctx, device, client, logger); result != ResultSuccess {
		return result
	}
	return ResultSuccess
}

// backfillStart 无 checkpoint 时的起始日期
func (c *Collector) backfillStart() time.Time {
	return dateOnly(c.now().AddDate(0, 0, -c.cfg.BackfillDays))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// collectDailySummaries 从 checkpoint 的下一天补到 last_sync 的前一天
func (c *Collector) collectDailySummaries(ctx context.Context, device *domain.Device, client FitbitAPI, logger *zap.Logger) CollectorResult {
	checkpoint, err := c.repos.Metrics.GetDailySummaryCheckpoint(ctx, device.DeviceID)
	if err != nil {
		logger.Error("Failed to read daily summary checkpoint", zap.Error(err))
		return ResultError
	}

	var startDate time.Time
	if checkpoint != nil {
		startDate = dateOnly(*checkpoint).AddDate(0, 0, 1)
	} else {
		startDate = c.backfillStart()
	}

	if device.LastSync == nil {
		logger.Warn("Device has no last sync time")
		return ResultError
	}
	endDate := dateOnly(*device.LastSync).AddDate(0, 0, -1)

	if startDate.After(endDate) {
		logger.Debug("Device is up to date for daily summaries")
		return ResultSuccess
	}

	for date := startDate; !date.After(endDate); date = date.AddDate(0, 0, 1) {
		fields, err := client.GetDailySummary(ctx, date)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				logger.Info("Rate limit reached collecting daily summary", zap.Time("date", date))
				return ResultRateLimited
			}
			logger.Warn("Failed to fetch daily summary, continuing", zap.Time("date", date), zap.Error(err))
			continue
		}

		// 跳过空白天（手环没戴）
		if isEmptyDay(fields) {
			continue
		}

		if err := c.repos.Metrics.InsertDailySummary(ctx, device.DeviceID, date, *fields); err != nil {
			logger.Error("Failed to store daily summary", zap.Time("date", date), zap.Error(err))
			return ResultError
		}
		logger.Info("Daily summary collected", zap.Time("date", date))

		if c.evaluator != nil {
			if err := c.evaluator.EvaluateAll(ctx, device.DeviceID, date); err != nil {
				logger.Warn("Alert evaluation failed", zap.Time("date", date), zap.Error(err))
			}
		}
	}
	return ResultSuccess
}

// isEmptyDay 步数、心率、距离全空说明当天无数据
func isEmptyDay(fields *domain.DailySummaryFields) bool {
	steps := fields.Steps == nil || *fields.Steps == 0
	heartRate := fields.HeartRate == nil || *fields.HeartRate == 0
	distance := fields.Distance == nil || *fields.Distance == 0
	return steps && heartRate && distance
}

// collectIntraday 每轮处理一个自然日；追上 last_sync 后向上游刷新同步时间
func (c *Collector) collectIntraday(ctx context.Context, device *domain.Device, client FitbitAPI, logger *zap.Logger) CollectorResult {
	checkpoint, err := c.repos.Metrics.GetIntradayCheckpoint(ctx, device.DeviceID)
	if err != nil {
		logger.Error("Failed to read intraday checkpoint", zap.Error(err))
		return ResultError
	}

	var current time.Time
	if checkpoint != nil {
		current = checkpoint.Add(time.Minute)
	} else {
		current = c.backfillStart()
	}

	if device.LastSync == nil {
		logger.Warn("Device has no last sync time")
		return ResultError
	}
	lastSync := *device.LastSync

	if !current.Before(lastSync) {
		// 追上了：向上游查最新同步时间并回写
		info, err := client.GetDeviceInfo(ctx)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return ResultRateLimited
			}
			logger.Error("Failed to refresh device info", zap.Error(err))
			return ResultError
		}
		if info.LastSyncTime.After(lastSync) {
			if err := c.repos.Devices.UpdateLastSync(ctx, device.DeviceID, info.LastSyncTime); err != nil {
				logger.Error("Failed to update last sync", zap.Error(err))
				return ResultError
			}
			device.LastSync = &info.LastSyncTime
		}
		logger.Debug("Device is up to date for intraday metrics")
		return ResultSuccess
	}

	points, err := client.GetIntradayDay(ctx, current)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			logger.Info("Rate limit reached collecting intraday metrics", zap.Time("date", current))
			return ResultRateLimited
		}
		logger.Error("Failed to fetch intraday metrics", zap.Time("date", current), zap.Error(err))
		return ResultError
	}

	stored := 0
	for _, p := range points {
		if p.Time.After(lastSync) || p.Time.Before(current) {
			continue
		}
		exists, err := c.repos.Metrics.CheckIntradayTimestamp(ctx, device.DeviceID, p.Time)
		if err != nil {
			logger.Error("Failed to check intraday timestamp", zap.Error(err))
			return ResultError
		}
		if exists {
			continue
		}
		if err := c.repos.Metrics.InsertIntradayMetric(ctx, device.DeviceID, p.Time, p.MetricType, p.Value); err != nil {
			logger.Error("Failed to store intraday metric", zap.Error(err))
			return ResultError
		}
		stored++
	}

	logger.Info("Intraday metrics collected",
		zap.Time("date", current),
		zap.Int("points", stored),
	)
	return ResultSuccess
}

// collectSleep 从最后一个会话日期的下一天补到 last_sync 的前一天
func (c *Collector) collectSleep(ctx context.Context, device *domain.Device, client FitbitAPI, logger *zap.Logger) CollectorResult {
	logs, err := c.repos.Sleep.GetSleepLogs(ctx, device.DeviceID, nil, nil)
	if err != nil {
		logger.Error("Failed to read sleep logs", zap.Error(err))
		return ResultError
	}

	var startDate time.Time
	if len(logs) > 0 {
		startDate = dateOnly(logs[len(logs)-1].StartTime).AddDate(0, 0, 1)
	} else {
		startDate = c.backfillStart()
	}

	if device.LastSync == nil {
		logger.Warn("Device has no last sync time")
		return ResultError
	}
	endDate := dateOnly(*device.LastSync).AddDate(0, 0, -1)

	if startDate.After(endDate) {
		logger.Debug("Device is up to date for sleep")
		return ResultSuccess
	}

	for date := startDate; !date.After(endDate); date = date.AddDate(0, 0, 1) {
		sessions, err := client.GetSleepSessions(ctx, date)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				logger.Info("Rate limit reached collecting sleep", zap.Time("date", date))
				return ResultRateLimited
			}
			logger.Warn("Failed to fetch sleep sessions, continuing", zap.Time("date", date), zap.Error(err))
			continue
		}

		for _, session := range sessions {
			if _, err := c.repos.Sleep.InsertCompleteSleepData(ctx, device.DeviceID, session); err != nil {
				logger.Error("Failed to store sleep session",
					zap.Time("start_time", session.StartTime),
					zap.Error(err),
				)
				return ResultError
			}
		}
		if len(sessions) > 0 {
			logger.Info("Sleep sessions collected",
				zap.Time("date", date),
				zap.Int("sessions", len(sessions)),
			)
		}
	}
	return ResultSuccess
}
