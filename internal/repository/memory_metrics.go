package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitalsync-data/internal/domain"
)

// MemoryMetricsRepo is a process-local MetricsRepository used by the contract
// tests and by local runs without a database. It mirrors every observable
// behavior of the Postgres implementation: field-level merge on daily
// summaries, last-write-wins on intraday natural keys, inclusive range
// bounds, ascending order, and checkpoints derived from stored rows.
// Divergence (by contract): it does NOT check that device_id references a
// known device, so it never returns ErrNotFound from InsertDailySummary.
type MemoryMetricsRepo struct {
	mu        sync.RWMutex
	summaries map[string]map[string]*domain.DailySummary        // deviceID -> dateKey -> summary
	intraday  map[string]map[intradayKey]*domain.IntradayMetric // deviceID -> (time, type) -> metric
	nextID    int64
}

type intradayKey struct {
	unixNano   int64
	metricType string
}

func NewMemoryMetricsRepo() *MemoryMetricsRepo {
	return &MemoryMetricsRepo{
		summaries: map[string]map[string]*domain.DailySummary{},
		intraday:  map[string]map[intradayKey]*domain.IntradayMetric{},
	}
}

var _ MetricsRepository = (*MemoryMetricsRepo)(nil)

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (r *MemoryMetricsRepo) InsertDailySummary(_ context.Context, deviceID string, date time.Time, fields domain.DailySummaryFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDate, ok := r.summaries[deviceID]
	if !ok {
		byDate = map[string]*domain.DailySummary{}
		r.summaries[deviceID] = byDate
	}

	// Clone so the caller's pointers never alias stored state
	fields = cloneSummaryFields(fields)

	key := dateKey(date)
	existing, ok := byDate[key]
	if !ok {
		byDate[key] = &domain.DailySummary{
			SummaryID:          uuid.NewString(),
			DeviceID:           deviceID,
			Date:               truncateToDate(date),
			DailySummaryFields: fields,
		}
		return nil
	}

	mergeSummaryFields(&existing.DailySummaryFields, fields)
	return nil
}

// mergeSummaryFields overwrites only the supplied (non-nil) fields, matching
// the COALESCE upsert of the Postgres implementation.
func mergeSummaryFields(dst *domain.DailySummaryFields, src domain.DailySummaryFields) {
	if src.Steps != nil {
		dst.Steps = src.Steps
	}
	if src.HeartRate != nil {
		dst.HeartRate = src.HeartRate
	}
	if src.SleepMinutes != nil {
		dst.SleepMinutes = src.SleepMinutes
	}
	if src.Calories != nil {
		dst.Calories = src.Calories
	}
	if src.Distance != nil {
		dst.Distance = src.Distance
	}
	if src.Floors != nil {
		dst.Floors = src.Floors
	}
	if src.Elevation != nil {
		dst.Elevation = src.Elevation
	}
	if src.ActiveMinutes != nil {
		dst.ActiveMinutes = src.ActiveMinutes
	}
	if src.SedentaryMinutes != nil {
		dst.SedentaryMinutes = src.SedentaryMinutes
	}
	if src.NutritionCalories != nil {
		dst.NutritionCalories = src.NutritionCalories
	}
	if src.Water != nil {
		dst.Water = src.Water
	}
	if src.Weight != nil {
		dst.Weight = src.Weight
	}
	if src.BMI != nil {
		dst.BMI = src.BMI
	}
	if src.Fat != nil {
		dst.Fat = src.Fat
	}
	if src.OxygenSaturation != nil {
		dst.OxygenSaturation = src.OxygenSaturation
	}
	if src.RespiratoryRate != nil {
		dst.RespiratoryRate = src.RespiratoryRate
	}
	if src.Temperature != nil {
		dst.Temperature = src.Temperature
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// cloneSummaryFields copies each pointer field so stored and returned
// records never share memory with the caller.
func cloneSummaryFields(f domain.DailySummaryFields) domain.DailySummaryFields {
	return domain.DailySummaryFields{
		Steps:             cloneInt(f.Steps),
		HeartRate:         cloneFloat(f.HeartRate),
		SleepMinutes:      cloneFloat(f.SleepMinutes),
		Calories:          cloneFloat(f.Calories),
		Distance:          cloneFloat(f.Distance),
		Floors:            cloneFloat(f.Floors),
		Elevation:         cloneFloat(f.Elevation),
		ActiveMinutes:     cloneFloat(f.ActiveMinutes),
		SedentaryMinutes:  cloneFloat(f.SedentaryMinutes),
		NutritionCalories: cloneFloat(f.NutritionCalories),
		Water:             cloneFloat(f.Water),
		Weight:            cloneFloat(f.Weight),
		BMI:               cloneFloat(f.BMI),
		Fat:               cloneFloat(f.Fat),
		OxygenSaturation:  cloneFloat(f.OxygenSaturation),
		RespiratoryRate:   cloneFloat(f.RespiratoryRate),
		Temperature:       cloneFloat(f.Temperature),
	}
}

func copySummary(s *domain.DailySummary) domain.DailySummary {
	cp := *s
	cp.DailySummaryFields = cloneSummaryFields(s.DailySummaryFields)
	return cp
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *MemoryMetricsRepo) GetDailySummaries(_ context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.DailySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.DailySummary, 0)
	for _, s := range r.summaries[deviceID] {
		if startDate != nil && s.Date.Before(truncateToDate(*startDate)) {
			continue
		}
		if endDate != nil && s.Date.After(truncateToDate(*endDate)) {
			continue
		}
		cp := copySummary(s)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (r *MemoryMetricsRepo) GetDailySummaryCheckpoint(_ context.Context, deviceID string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max *time.Time
	for _, s := range r.summaries[deviceID] {
		if max == nil || s.Date.After(*max) {
			d := s.Date
			max = &d
		}
	}
	return max, nil
}

func (r *MemoryMetricsRepo) InsertIntradayMetric(_ context.Context, deviceID string, timestamp time.Time, metricType string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, ok := r.intraday[deviceID]
	if !ok {
		byKey = map[intradayKey]*domain.IntradayMetric{}
		r.intraday[deviceID] = byKey
	}

	key := intradayKey{unixNano: timestamp.UnixNano(), metricType: metricType}
	if existing, ok := byKey[key]; ok {
		existing.Value = value
		return nil
	}

	r.nextID++
	byKey[key] = &domain.IntradayMetric{
		ID:         r.nextID,
		DeviceID:   deviceID,
		Time:       timestamp,
		MetricType: metricType,
		Value:      value,
	}
	return nil
}

func (r *MemoryMetricsRepo) GetIntradayMetrics(_ context.Context, deviceID, metricType string, startTime, endTime *time.Time) ([]*domain.IntradayMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.IntradayMetric, 0)
	for _, m := range r.intraday[deviceID] {
		if m.MetricType != metricType {
			continue
		}
		if startTime != nil && m.Time.Before(*startTime) {
			continue
		}
		if endTime != nil && m.Time.After(*endTime) {
			continue
		}
		cp := *m
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time.Before(result[j].Time)
	})
	return result, nil
}

func (r *MemoryMetricsRepo) CheckIntradayTimestamp(_ context.Context, deviceID string, timestamp time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key := range r.intraday[deviceID] {
		if key.unixNano == timestamp.UnixNano() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryMetricsRepo) GetIntradayCheckpoint(_ context.Context, deviceID string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max *time.Time
	for _, m := range r.intraday[deviceID] {
		if max == nil || m.Time.After(*max) {
			t := m.Time
			max = &t
		}
	}
	return max, nil
}

// Reset clears all stored state.
func (r *MemoryMetricsRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = map[string]map[string]*domain.DailySummary{}
	r.intraday = map[string]map[intradayKey]*domain.IntradayMetric{}
	r.nextID = 0
}

// MetricsDump is a full snapshot of the repo contents for test assertions.
type MetricsDump struct {
	DailySummaries  []domain.DailySummary
	IntradayMetrics []domain.IntradayMetric
}

// Dump returns the entire dataset, sorted by (device, date) and
// (device, time, metric type) respectively.
func (r *MemoryMetricsRepo) Dump() MetricsDump {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dump MetricsDump
	for _, byDate := range r.summaries {
		for _, s := range byDate {
			dump.DailySummaries = append(dump.DailySummaries, copySummary(s))
		}
	}
	sort.Slice(dump.DailySummaries, func(i, j int) bool {
		a, b := dump.DailySummaries[i], dump.DailySummaries[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Date.Before(b.Date)
	})

	for _, byKey := range r.intraday {
		for _, m := range byKey {
			dump.IntradayMetrics = append(dump.IntradayMetrics, *m)
		}
	}
	sort.Slice(dump.IntradayMetrics, func(i, j int) bool {
		a, b := dump.IntradayMetrics[i], dump.IntradayMetrics[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.MetricType < b.MetricType
	})

	return dump
}
