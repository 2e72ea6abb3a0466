package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"vitalsync-data/internal/domain"
	"vitalsync-data/internal/repository"
)

// AlertSink 新建告警的发布出口（Redis Streams 实现见 notify 包）
type AlertSink interface {
	PublishAlert(ctx context.Context, alert *domain.Alert) (string, error)
}

// 告警类型
const (
	AlertActivityDrop        = "activity_drop"
	AlertSedentaryIncrease   = "sedentary_increase"
	AlertSleepDurationChange = "sleep_duration_change"
	AlertHeartRateAnomaly    = "heart_rate_anomaly"
)

// AlertEvaluator 基于已入库指标评估告警规则。
// 规则对比当天数据与前 7 天均值，心率规则用 24 小时分钟级数据。
// 发布失败只记日志，不影响告警落库。
type AlertEvaluator struct {
	metrics repository.MetricsRepository
	alerts  repository.AlertsRepository
	sink    AlertSink
	logger  *zap.Logger
}

// NewAlertEvaluator 创建告警评估器。sink 可为 nil。
func NewAlertEvaluator(metrics repository.MetricsRepository, alerts repository.AlertsRepository, sink AlertSink, logger *zap.Logger) *AlertEvaluator {
	return &AlertEvaluator{
		metrics: metrics,
		alerts:  alerts,
		sink:    sink,
		logger:  logger,
	}
}

// EvaluateAll 对一个设备在给定日期跑全部规则
func (e *AlertEvaluator) EvaluateAll(ctx context.Context, deviceID string, date time.Time) error {
	if err := e.checkActivityDrop(ctx, deviceID, date); err != nil {
		return err
	}
	if err := e.checkSedentaryIncrease(ctx, deviceID, date); err != nil {
		return err
	}
	if err := e.checkSleepDurationChange(ctx, deviceID, date); err != nil {
		return err
	}
	if err := e.checkHeartRateAnomaly(ctx, deviceID, date); err != nil {
		return err
	}
	return nil
}

// createAlert 落库并发布
func (e *AlertEvaluator) createAlert(ctx context.Context, alert *domain.Alert) error {
	if _, err := e.alerts.Create(ctx, alert); err != nil {
		return err
	}
	e.logger.Info("Alert created",
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_type", alert.AlertType),
		zap.String("priority", alert.Priority),
	)

	if e.sink != nil {
		if _, err := e.sink.PublishAlert(ctx, alert); err != nil {
			e.logger.Warn("Failed to publish alert", zap.Error(err))
		}
	}
	return nil
}

// weeklyContext 当天记录 + 前 7 天记录
func (e *AlertEvaluator) weeklyContext(ctx context.Context, deviceID string, date time.Time) (*domain.DailySummary, []*domain.DailySummary, error) {
	start := date.AddDate(0, 0, -7)
	summaries, err := e.metrics.GetDailySummaries(ctx, deviceID, &start, &date)
	if err != nil {
		return nil, nil, err
	}

	var today *domain.DailySummary
	previous := make([]*domain.DailySummary, 0, len(summaries))
	for _, s := range summaries {
		if sameDate(s.Date, date) {
			today = s
		} else if s.Date.Before(date) {
			previous = append(previous, s)
		}
	}
	return today, previous, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// avgPositive 非空且大于零的均值，没有有效值时 ok=false
func avgPositive(values []*float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range values {
		if v != nil && *v > 0 {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// checkActivityDrop 步数或活跃分钟相比 7 天均值下降超 30%/50%
func (e *AlertEvaluator) checkActivityDrop(ctx context.Context, deviceID string, date time.Time) error {
	today, previous, err := e.weeklyContext(ctx, deviceID, date)
	if err != nil {
		return err
	}
	if today == nil || len(previous) == 0 {
		return nil
	}

	stepVals := make([]*float64, 0, len(previous))
	activeVals := make([]*float64, 0, len(previous))
	for _, s := range previous {
		if s.Steps != nil {
			v := float64(*s.Steps)
			stepVals = append(stepVals, &v)
		}
		activeVals = append(activeVals, s.ActiveMinutes)
	}

	avgSteps, ok := avgPositive(stepVals)
	if !ok {
		return nil
	}
	avgActive, ok := avgPositive(activeVals)
	if !ok {
		return nil
	}

	// 均值太低时比例失真，不出告警
	if avgSteps < 100 || avgActive < 5 {
		return nil
	}

	todaySteps := 0.0
	if today.Steps != nil {
		todaySteps = float64(*today.Steps)
	}
	todayActive := 0.0
	if today.ActiveMinutes != nil {
		todayActive = *today.ActiveMinutes
	}

	stepsDrop := (avgSteps - todaySteps) / avgSteps * 100
	activeDrop := (avgActive - todayActive) / avgActive * 100

	switch {
	case stepsDrop > 50 || activeDrop > 50:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertActivityDrop,
			Priority:        domain.PriorityHigh,
			TriggeringValue: math.Min(stepsDrop, activeDrop),
			ThresholdValue:  "50",
			CreatedAt:       date,
		})
	case stepsDrop > 30 || activeDrop > 30:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertActivityDrop,
			Priority:        domain.PriorityMedium,
			TriggeringValue: math.Min(stepsDrop, activeDrop),
			ThresholdValue:  "30",
			CreatedAt:       date,
		})
	}
	return nil
}

// checkSedentaryIncrease 久坐分钟相比 7 天均值上升超 30%/50%
func (e *AlertEvaluator) checkSedentaryIncrease(ctx context.Context, deviceID string, date time.Time) error {
	today, previous, err := e.weeklyContext(ctx, deviceID, date)
	if err != nil {
		return err
	}
	if today == nil || today.SedentaryMinutes == nil || len(previous) == 0 {
		return nil
	}

	vals := make([]*float64, 0, len(previous))
	for _, s := range previous {
		vals = append(vals, s.SedentaryMinutes)
	}
	avgSedentary, ok := avgPositive(vals)
	if !ok || avgSedentary < 60 {
		return nil
	}

	increase := (*today.SedentaryMinutes - avgSedentary) / avgSedentary * 100

	switch {
	case increase > 50:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertSedentaryIncrease,
			Priority:        domain.PriorityHigh,
			TriggeringValue: increase,
			ThresholdValue:  fmt.Sprintf("%.0f", avgSedentary*1.5),
			CreatedAt:       date,
		})
	case increase > 30:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertSedentaryIncrease,
			Priority:        domain.PriorityMedium,
			TriggeringValue: increase,
			ThresholdValue:  fmt.Sprintf("%.0f", avgSedentary*1.3),
			CreatedAt:       date,
		})
	}
	return nil
}

// checkSleepDurationChange 睡眠时长相比 7 天均值变化超 ±30%
func (e *AlertEvaluator) checkSleepDurationChange(ctx context.Context, deviceID string, date time.Time) error {
	today, previous, err := e.weeklyContext(ctx, deviceID, date)
	if err != nil {
		return err
	}
	if today == nil || today.SleepMinutes == nil || len(previous) == 0 {
		return nil
	}

	vals := make([]*float64, 0, len(previous))
	for _, s := range previous {
		vals = append(vals, s.SleepMinutes)
	}
	avgSleep, ok := avgPositive(vals)
	if !ok || avgSleep < 60 {
		return nil
	}

	change := (*today.SleepMinutes - avgSleep) / avgSleep * 100
	if math.Abs(change) > 30 {
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertSleepDurationChange,
			Priority:        domain.PriorityHigh,
			TriggeringValue: change,
			ThresholdValue:  fmt.Sprintf("%.0f-%.0f", avgSleep*0.7, avgSleep*1.3),
			CreatedAt:       date,
		})
	}
	return nil
}

// checkHeartRateAnomaly 24 小时分钟级心率里找超 2σ 的离群值
func (e *AlertEvaluator) checkHeartRateAnomaly(ctx context.Context, deviceID string, date time.Time) error {
	start := date.Add(-24 * time.Hour)
	metrics, err := e.metrics.GetIntradayMetrics(ctx, deviceID, domain.MetricHeartRate, &start, &date)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}

	sum := 0.0
	for _, m := range metrics {
		sum += m.Value
	}
	mean := sum / float64(len(metrics))

	variance := 0.0
	for _, m := range metrics {
		variance += (m.Value - mean) * (m.Value - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(metrics)))
	if stdDev == 0 {
		return nil
	}

	anomalies := 0
	maxDeviation := 0.0
	for _, m := range metrics {
		deviation := math.Abs(m.Value - mean)
		if deviation > 2*stdDev {
			anomalies++
			if deviation > maxDeviation {
				maxDeviation = deviation
			}
		}
	}
	if anomalies == 0 {
		return nil
	}

	anomalyPct := float64(anomalies) / float64(len(metrics)) * 100
	threshold := fmt.Sprintf("%.0f-%.0f", mean-2*stdDev, mean+2*stdDev)

	switch {
	case anomalyPct > 20 || maxDeviation > 3*stdDev:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertHeartRateAnomaly,
			Priority:        domain.PriorityHigh,
			TriggeringValue: maxDeviation,
			ThresholdValue:  threshold,
			CreatedAt:       date,
		})
	case anomalyPct > 10:
		return e.createAlert(ctx, &domain.Alert{
			DeviceID:        deviceID,
			AlertType:       AlertHeartRateAnomaly,
			Priority:        domain.PriorityMedium,
			TriggeringValue: maxDeviation,
			ThresholdValue:  threshold,
			CreatedAt:       date,
		})
	}
	return nil
}
