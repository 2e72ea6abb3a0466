package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/repository"
)

// fakeSink 记录发布的告警
type fakeSink struct {
	published []*domain.Alert
	err       error
}

func (s *fakeSink) PublishAlert(_ context.Context, alert *domain.Alert) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, alert)
	return "stream-1", nil
}

func iptr(v int) *int         { return &v }
func fptr(v float64) *float64 { return &v }

func newTestEvaluator(sink AlertSink) (*AlertEvaluator, *repository.Repositories) {
	repos := repository.NewMemory()
	return NewAlertEvaluator(repos.Metrics, repos.Alerts, sink, zap.NewNop()), repos
}

func seedWeek(t *testing.T, repos *repository.Repositories, deviceID string, date time.Time, fields domain.DailySummaryFields) {
	t.Helper()
	for i := 1; i <= 7; i++ {
		day := date.AddDate(0, 0, -i)
		require.NoError(t, repos.Metrics.InsertDailySummary(context.Background(), deviceID, day, fields))
	}
}

func TestAlertEvaluator_ActivityDropHigh(t *testing.T) {
	sink := &fakeSink{}
	evaluator, repos := newTestEvaluator(sink)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seedWeek(t, repos, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(10000),
		ActiveMinutes: fptr(60),
	})
	// 当天步数跌 60%，活跃分钟跌 66%
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(4000),
		ActiveMinutes: fptr(20),
	}))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertActivityDrop, alerts[0].AlertType)
	require.Equal(t, domain.PriorityHigh, alerts[0].Priority)
	require.Equal(t, "50", alerts[0].ThresholdValue)
	require.InDelta(t, 60.0, alerts[0].TriggeringValue, 0.01)
	require.Len(t, sink.published, 1)
}

func TestAlertEvaluator_ActivityDropSkipsLowBaseline(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 基线太低，比例失真，不应出告警
	seedWeek(t, repos, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(80),
		ActiveMinutes: fptr(3),
	})
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(10),
		ActiveMinutes: fptr(1),
	}))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAlertEvaluator_SedentaryIncrease(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seedWeek(t, repos, "dev-1", date, domain.DailySummaryFields{
		Steps:            iptr(10000),
		ActiveMinutes:    fptr(60),
		SedentaryMinutes: fptr(400),
	})
	// 久坐 +62.5%，步数持平避免触发其他规则
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		Steps:            iptr(10000),
		ActiveMinutes:    fptr(60),
		SedentaryMinutes: fptr(650),
	}))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertSedentaryIncrease, alerts[0].AlertType)
	require.Equal(t, domain.PriorityHigh, alerts[0].Priority)
	require.Equal(t, "600", alerts[0].ThresholdValue)
	require.InDelta(t, 62.5, alerts[0].TriggeringValue, 0.01)
}

func TestAlertEvaluator_SleepDurationChange(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seedWeek(t, repos, "dev-1", date, domain.DailySummaryFields{
		SleepMinutes: fptr(400),
	})
	// 多睡 50%，双向阈值同样触发
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		SleepMinutes: fptr(600),
	}))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertSleepDurationChange, alerts[0].AlertType)
	require.Equal(t, domain.PriorityHigh, alerts[0].Priority)
	require.Equal(t, "280-520", alerts[0].ThresholdValue)
	require.InDelta(t, 50.0, alerts[0].TriggeringValue, 0.01)
}

func TestAlertEvaluator_HeartRateAnomalyMedium(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	// 21 个点里 3 个离群：比例 14%，落在 medium 区间
	for i := 0; i < 18; i++ {
		ts := date.Add(-time.Duration(i+1) * time.Minute)
		require.NoError(t, repos.Metrics.InsertIntradayMetric(ctx, "dev-1", ts, domain.MetricHeartRate, 70))
	}
	for i := 0; i < 3; i++ {
		ts := date.Add(-time.Duration(i+30) * time.Minute)
		require.NoError(t, repos.Metrics.InsertIntradayMetric(ctx, "dev-1", ts, domain.MetricHeartRate, 170))
	}

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertHeartRateAnomaly, alerts[0].AlertType)
	require.Equal(t, domain.PriorityMedium, alerts[0].Priority)
	require.InDelta(t, 85.7, alerts[0].TriggeringValue, 0.1)
}

func TestAlertEvaluator_HeartRateAnomalyHigh(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	// 单个极端尖峰超过 3σ，直接 high
	for i := 0; i < 20; i++ {
		ts := date.Add(-time.Duration(i+1) * time.Minute)
		require.NoError(t, repos.Metrics.InsertIntradayMetric(ctx, "dev-1", ts, domain.MetricHeartRate, 70))
	}
	require.NoError(t, repos.Metrics.InsertIntradayMetric(ctx, "dev-1", date.Add(-30*time.Minute), domain.MetricHeartRate, 200))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertHeartRateAnomaly, alerts[0].AlertType)
	require.Equal(t, domain.PriorityHigh, alerts[0].Priority)
}

func TestAlertEvaluator_NoBaselineNoAlerts(t *testing.T) {
	evaluator, repos := newTestEvaluator(nil)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 只有当天数据，没有 7 天基线
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(100),
		ActiveMinutes: fptr(5),
		SleepMinutes:  fptr(100),
	}))

	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAlertEvaluator_PublishFailureDoesNotBlockCreate(t *testing.T) {
	sink := &fakeSink{err: errors.New("stream unavailable")}
	evaluator, repos := newTestEvaluator(sink)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seedWeek(t, repos, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(10000),
		ActiveMinutes: fptr(60),
	})
	require.NoError(t, repos.Metrics.InsertDailySummary(ctx, "dev-1", date, domain.DailySummaryFields{
		Steps:         iptr(4000),
		ActiveMinutes: fptr(20),
	}))

	// 发布失败只记日志，告警仍落库
	require.NoError(t, evaluator.EvaluateAll(ctx, "dev-1", date))

	alerts, err := repos.Alerts.GetAlerts(ctx, "dev-1", repository.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Empty(t, sink.published)
}
