package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitalsync-data/internal/domain"
)

// MemorySleepRepo is a process-local SleepRepository. A session is keyed by
// (device_id, start_time); re-inserting the same key replaces the session and
// all of its sub-intervals wholesale, the same outcome as the Postgres
// delete-and-reinsert transaction.
type MemorySleepRepo struct {
	mu   sync.RWMutex
	logs map[string]map[int64]*domain.SleepLog // deviceID -> startTime unixNano -> log
}

func NewMemorySleepRepo() *MemorySleepRepo {
	return &MemorySleepRepo{
		logs: map[string]map[int64]*domain.SleepLog{},
	}
}

var _ SleepRepository = (*MemorySleepRepo)(nil)

func (r *MemorySleepRepo) InsertCompleteSleepData(_ context.Context, deviceID string, log *domain.SleepLog) (string, error) {
	if log == nil {
		return "", fmt.Errorf("sleep log is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byStart, ok := r.logs[deviceID]
	if !ok {
		byStart = map[int64]*domain.SleepLog{}
		r.logs[deviceID] = byStart
	}

	stored := copySleepLog(log)
	stored.SleepLogID = uuid.NewString()
	stored.DeviceID = deviceID
	byStart[log.StartTime.UnixNano()] = stored

	return stored.SleepLogID, nil
}

func (r *MemorySleepRepo) GetSleepLogs(_ context.Context, deviceID string, startDate, endDate *time.Time) ([]*domain.SleepLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]*domain.SleepLog, 0)
	for _, l := range r.logs[deviceID] {
		if startDate != nil && l.StartTime.Before(*startDate) {
			continue
		}
		if endDate != nil && l.StartTime.After(*endDate) {
			continue
		}
		logs = append(logs, copySleepLog(l))
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartTime.Before(logs[j].StartTime)
	})
	return logs, nil
}

// copySleepLog deep-copies a session so callers cannot mutate stored state.
// Sub-interval slices are always non-nil, matching the Postgres loader.
func copySleepLog(l *domain.SleepLog) *domain.SleepLog {
	cp := *l
	cp.Stages = make([]domain.SleepStage, len(l.Stages))
	copy(cp.Stages, l.Stages)
	cp.ShortWakes = make([]domain.SleepWake, len(l.ShortWakes))
	copy(cp.ShortWakes, l.ShortWakes)
	return &cp
}

// Reset clears all stored state.
func (r *MemorySleepRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = map[string]map[int64]*domain.SleepLog{}
}

// Dump returns all sessions sorted by (device, start_time).
func (r *MemorySleepRepo) Dump() []domain.SleepLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]domain.SleepLog, 0)
	for _, byStart := range r.logs {
		for _, l := range byStart {
			logs = append(logs, *copySleepLog(l))
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.StartTime.Before(b.StartTime)
	})
	return logs
}
