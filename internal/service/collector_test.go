package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalsync-data/internal/config"
	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/repository"
	"vitalsync-data/internal/store"
)

// fakeFitbit 可编程的上游桩
type fakeFitbit struct {
	dailyErr   error
	dailyCalls []time.Time

	intradayErr   error
	intradayCalls []time.Time

	sleepErr   error
	sleepCalls []time.Time

	lastSyncTime time.Time
}

var _ FitbitAPI = (*fakeFitbit)(nil)

func (f *fakeFitbit) GetDailySummary(_ context.Context, date time.Time) (*domain.DailySummaryFields, error) {
	f.dailyCalls = append(f.dailyCalls, date)
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	steps := 5000
	heartRate := 61.0
	distance := 3.2
	return &domain.DailySummaryFields{
		Steps:     &steps,
		HeartRate: &heartRate,
		Distance:  &distance,
	}, nil
}

func (f *fakeFitbit) GetIntradayDay(_ context.Context, date time.Time) ([]IntradayPoint, error) {
	f.intradayCalls = append(f.intradayCalls, date)
	if f.intradayErr != nil {
		return nil, f.intradayErr
	}
	// 上游按自然日返回，点位锚定当天
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return []IntradayPoint{
		{Time: day.Add(10 * time.Hour), MetricType: domain.MetricHeartRate, Value: 72},
		{Time: day.Add(10*time.Hour + time.Minute), MetricType: domain.MetricHeartRate, Value: 74},
	}, nil
}

func (f *fakeFitbit) GetSleepSessions(_ context.Context, date time.Time) ([]*domain.SleepLog, error) {
	f.sleepCalls = append(f.sleepCalls, date)
	if f.sleepErr != nil {
		return nil, f.sleepErr
	}
	if len(f.sleepCalls) > 1 {
		return nil, nil
	}
	start := date.Add(-time.Hour)
	return []*domain.SleepLog{{
		StartTime:     start,
		EndTime:       start.Add(8 * time.Hour),
		IsMainSleep:   true,
		Duration:      8 * 3600 * 1000,
		MinutesAsleep: 430,
		MinutesAwake:  50,
		TimeInBed:     480,
		LogType:       "auto_detected",
		Type:          "stages",
		Stages: []domain.SleepStage{
			{Time: start, Level: domain.SleepLevelLight, Seconds: 1800},
		},
	}}, nil
}

func (f *fakeFitbit) GetDeviceInfo(context.Context) (*FitbitDeviceInfo, error) {
	return &FitbitDeviceInfo{DeviceVersion: "Charge 6", LastSyncTime: f.lastSyncTime}, nil
}

func newTestCollector(t *testing.T, fake *fakeFitbit) (*Collector, *repository.Repositories, string) {
	t.Helper()

	repos := repository.NewMemory()
	ctx := context.Background()

	deviceID, err := repos.Devices.Create(ctx, &domain.Device{EmailAddress: "collector@example.com"})
	require.NoError(t, err)
	require.NoError(t, repos.Devices.UpdateStatus(ctx, deviceID, domain.AuthStatusAuthorized))

	lastSync := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Devices.UpdateLastSync(ctx, deviceID, lastSync))

	newClient := func(context.Context, *domain.Device) (FitbitAPI, error) {
		return fake, nil
	}

	collector := NewCollector(repos, newClient, nil, nil, config.CollectorConfig{
		Interval:     time.Minute,
		BackfillDays: 3,
		LockTTL:      time.Minute,
	}, zap.NewNop())
	collector.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	return collector, repos, deviceID
}

func TestCollectorBackfillsAllStreams(t *testing.T) {
	fake := &fakeFitbit{}
	collector, repos, deviceID := newTestCollector(t, fake)
	ctx := context.Background()

	device, err := repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)

	result := collector.CollectDevice(ctx, device)
	require.Equal(t, ResultSuccess, result)

	// 无 checkpoint：回填 3 天，截止 last_sync 前一天（03-07..03-09）
	require.Len(t, fake.dailyCalls, 3)
	summaries, err := repos.Metrics.GetDailySummaries(ctx, deviceID, nil, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	require.Equal(t, 5000, *summaries[0].Steps)

	// 分钟级：每轮一个自然日
	require.Len(t, fake.intradayCalls, 1)
	metrics, err := repos.Metrics.GetIntradayMetrics(ctx, deviceID, domain.MetricHeartRate, nil, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	// 睡眠：只有第一天有会话
	logs, err := repos.Sleep.GetSleepLogs(ctx, deviceID, nil, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestCollectorSecondCycleIsIncremental(t *testing.T) {
	fake := &fakeFitbit{lastSyncTime: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	collector, repos, deviceID := newTestCollector(t, fake)
	ctx := context.Background()

	device, err := repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, collector.CollectDevice(ctx, device))

	dailyAfterFirst := len(fake.dailyCalls)

	// 第二轮：汇总已到 checkpoint，不再重复拉取；
	// 分钟级重新拉同一天时靠时间点去重，不产生新行
	device, err = repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, collector.CollectDevice(ctx, device))

	require.Len(t, fake.dailyCalls, dailyAfterFirst)

	metrics, err := repos.Metrics.GetIntradayMetrics(ctx, deviceID, domain.MetricHeartRate, nil, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
}

func TestCollectorRateLimited(t *testing.T) {
	fake := &fakeFitbit{dailyErr: ErrRateLimited}
	collector, repos, deviceID := newTestCollector(t, fake)
	ctx := context.Background()

	device, err := repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)

	result := collector.CollectDevice(ctx, device)
	require.Equal(t, ResultRateLimited, result)

	// 限流后整个设备本轮停止，不碰后续环节
	require.Empty(t, fake.intradayCalls)
	require.Empty(t, fake.sleepCalls)

	summaries, err := repos.Metrics.GetDailySummaries(ctx, deviceID, nil, nil)
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestCollectorSkipsUnauthorizedDevice(t *testing.T) {
	fake := &fakeFitbit{}
	collector, repos, deviceID := newTestCollector(t, fake)
	ctx := context.Background()

	require.NoError(t, repos.Devices.UpdateStatus(ctx, deviceID, domain.AuthStatusRevoked))
	device, err := repos.Devices.GetByID(ctx, deviceID)
	require.NoError(t, err)

	result := collector.CollectDevice(ctx, device)
	require.Equal(t, ResultError, result)
	require.Empty(t, fake.dailyCalls)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	fake := &fakeFitbit{}
	collector, _, _ := newTestCollector(t, fake)
	kv := store.NewMemoryKV()
	collector.kv = kv
	ctx := context.Background()

	// 别的实例持锁：本轮跳过，不碰任何设备
	held, err := kv.AcquireLock(ctx, collectorLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	results, err := collector.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, results.Total())
	require.Empty(t, fake.dailyCalls)

	require.NoError(t, kv.ReleaseLock(ctx, collectorLockKey))

	results, err = collector.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, results.Success)

	// 本轮结束后锁已释放
	held, err = kv.AcquireLock(ctx, collectorLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, held)
}

func TestCollectAllDevicesAggregatesResults(t *testing.T) {
	fake := &fakeFitbit{}
	collector, repos, _ := newTestCollector(t, fake)
	ctx := context.Background()

	// 第二台设备：没有 last_sync，计为 error
	secondID, err := repos.Devices.Create(ctx, &domain.Device{EmailAddress: "second@example.com"})
	require.NoError(t, err)
	require.NoError(t, repos.Devices.UpdateStatus(ctx, secondID, domain.AuthStatusAuthorized))

	results, err := collector.CollectAllDevices(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, results.Success)
	require.Equal(t, 1, results.Errors)
	require.Equal(t, 0, results.RateLimited)
	require.False(t, results.AllRateLimited())
}
