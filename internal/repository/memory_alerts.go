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

// MemoryAlertsRepo is a process-local AlertsRepository. Alerts are returned
// newest first; acknowledgement is a one-way flip and stays idempotent.
type MemoryAlertsRepo struct {
	mu     sync.RWMutex
	alerts []*domain.Alert
	byID   map[string]*domain.Alert
}

func NewMemoryAlertsRepo() *MemoryAlertsRepo {
	return &MemoryAlertsRepo{
		byID: map[string]*domain.Alert{},
	}
}

var _ AlertsRepository = (*MemoryAlertsRepo)(nil)

func (r *MemoryAlertsRepo) Create(_ context.Context, alert *domain.Alert) (string, error) {
	if alert == nil {
		return "", fmt.Errorf("alert is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	stored := &domain.Alert{
		AlertID:         uuid.NewString(),
		DeviceID:        alert.DeviceID,
		AlertType:       alert.AlertType,
		Priority:        alert.Priority,
		TriggeringValue: alert.TriggeringValue,
		ThresholdValue:  alert.ThresholdValue,
		Details:         alert.Details,
		Acknowledged:    false,
		CreatedAt:       createdAt,
	}
	r.alerts = append(r.alerts, stored)
	r.byID[stored.AlertID] = stored

	alert.AlertID = stored.AlertID
	alert.Acknowledged = false
	alert.CreatedAt = createdAt
	return stored.AlertID, nil
}

func (r *MemoryAlertsRepo) GetAlerts(_ context.Context, deviceID string, filters AlertFilters) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Alert, 0)
	for _, a := range r.alerts {
		if a.DeviceID != deviceID {
			continue
		}
		if filters.StartTime != nil && a.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && a.CreatedAt.After(*filters.EndTime) {
			continue
		}
		if filters.Acknowledged != nil && a.Acknowledged != *filters.Acknowledged {
			continue
		}
		if filters.Priority != nil && a.Priority != *filters.Priority {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryAlertsRepo) GetByPriority(ctx context.Context, deviceID, priority string) ([]*domain.Alert, error) {
	return r.GetAlerts(ctx, deviceID, AlertFilters{Priority: &priority})
}

func (r *MemoryAlertsRepo) Acknowledge(_ context.Context, alertID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[alertID]
	if !ok {
		return fmt.Errorf("failed to acknowledge alert: alert %s: %w", alertID, ErrNotFound)
	}
	a.Acknowledged = true
	return nil
}

// Reset clears all stored state.
func (r *MemoryAlertsRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
	r.byID = map[string]*domain.Alert{}
}

// Dump returns all alerts in insertion order.
func (r *MemoryAlertsRepo) Dump() []domain.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alerts := make([]domain.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		alerts = append(alerts, *a)
	}
	return alerts
}
