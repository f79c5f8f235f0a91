// Package status persists the delivery diagnostics record for the UI.
package status

import (
	"context"
	"sync"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// Store is where the latest DeliveryStatus is published.
type Store interface {
	Save(ctx context.Context, status domain.DeliveryStatus) error
	Load(ctx context.Context) (domain.DeliveryStatus, error)
}

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	status domain.DeliveryStatus
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status.Clone()
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (domain.DeliveryStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Clone(), nil
}
