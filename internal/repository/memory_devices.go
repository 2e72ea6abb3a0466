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

// MemoryDevicesRepo is a process-local DevicesRepository. Devices are the
// referential root for all other memory repos, though the other repos do not
// enforce the reference (matching their documented contract).
type MemoryDevicesRepo struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Device
	byEmail map[string]string // email -> deviceID
	seq     int64             // insertion counter, drives ListAuthorized order
	order   map[string]int64
}

func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{
		byID:    map[string]*domain.Device{},
		byEmail: map[string]string{},
		order:   map[string]int64{},
	}
}

var _ DevicesRepository = (*MemoryDevicesRepo)(nil)

func (r *MemoryDevicesRepo) Create(_ context.Context, device *domain.Device) (string, error) {
	if device == nil || device.EmailAddress == "" {
		return "", fmt.Errorf("email_address is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[device.EmailAddress]; exists {
		return "", fmt.Errorf("failed to create device: email %s: %w", device.EmailAddress, ErrConstraint)
	}

	status := device.AuthorizationStatus
	if status == "" {
		status = domain.AuthStatusPending
	}

	deviceID := uuid.NewString()
	r.seq++
	stored := &domain.Device{
		DeviceID:            deviceID,
		AdminUserID:         device.AdminUserID,
		EmailAddress:        device.EmailAddress,
		AuthorizationStatus: status,
		DeviceType:          device.DeviceType,
		CreatedAt:           time.Now(),
		LastSync:            device.LastSync,
	}
	r.byID[deviceID] = stored
	r.byEmail[device.EmailAddress] = deviceID
	r.order[deviceID] = r.seq

	device.DeviceID = deviceID
	device.AuthorizationStatus = status
	device.CreatedAt = stored.CreatedAt
	return deviceID, nil
}

func (r *MemoryDevicesRepo) GetByID(_ context.Context, deviceID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[deviceID]
	if !ok {
		return nil, fmt.Errorf("failed to get device: device %s: %w", deviceID, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryDevicesRepo) GetByEmail(_ context.Context, emailAddress string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deviceID, ok := r.byEmail[emailAddress]
	if !ok {
		return nil, fmt.Errorf("failed to get device by email: %s: %w", emailAddress, ErrNotFound)
	}
	cp := *r.byID[deviceID]
	return &cp, nil
}

func (r *MemoryDevicesRepo) ListAuthorized(_ context.Context) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*domain.Device, 0)
	for _, d := range r.byID {
		if d.AuthorizationStatus != domain.AuthStatusAuthorized {
			continue
		}
		cp := *d
		devices = append(devices, &cp)
	}
	sort.Slice(devices, func(i, j int) bool {
		return r.order[devices[i].DeviceID] < r.order[devices[j].DeviceID]
	})
	return devices, nil
}

func (r *MemoryDevicesRepo) UpdateStatus(_ context.Context, deviceID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("failed to update device status: device %s: %w", deviceID, ErrNotFound)
	}
	d.AuthorizationStatus = status
	return nil
}

func (r *MemoryDevicesRepo) UpdateLastSync(_ context.Context, deviceID string, timestamp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("failed to update last sync: device %s: %w", deviceID, ErrNotFound)
	}
	t := timestamp
	d.LastSync = &t
	return nil
}

// Reset clears all stored state.
func (r *MemoryDevicesRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = map[string]*domain.Device{}
	r.byEmail = map[string]string{}
	r.order = map[string]int64{}
	r.seq = 0
}

// Dump returns all devices in insertion order.
func (r *MemoryDevicesRepo) Dump() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]domain.Device, 0, len(r.byID))
	for _, d := range r.byID {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return r.order[devices[i].DeviceID] < r.order[devices[j].DeviceID]
	})
	return devices
}
