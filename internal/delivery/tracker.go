package delivery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/observability"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/status"
)

const persistTimeout = 2 * time.Second

// Tracker owns the DeliveryStatus record and publishes every change to a
// status store. Store failures are logged and never affect delivery.
type Tracker struct {
	mu     sync.RWMutex
	status domain.DeliveryStatus
	store  status.Store
	logger *zap.Logger
}

// NewTracker constructs a Tracker publishing to store (nil means memory only).
func NewTracker(store status.Store, logger *zap.Logger) *Tracker {
	if store == nil {
		store = status.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.L().Named("delivery")
	}
	return &Tracker{store: store, logger: logger}
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() domain.DeliveryStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Clone()
}

// RecordSuccess notes a delivered event and clears the error streak.
func (t *Tracker) RecordSuccess(at time.Time, event domain.OutboundEvent) {
	t.update(func(s *domain.DeliveryStatus) {
		attempt, success := at, at
		s.LastAttemptAt = &attempt
		s.LastSuccessAt = &success
		s.ConsecutiveErrors = 0
		s.LastError = nil
		ev := event
		s.LastSentEvent = &ev
	})
	observability.RecordAttempt(at)
	observability.RecordSuccess(at)
}

// RecordFailure notes a failed attempt.
func (t *Tracker) RecordFailure(at time.Time, err error) {
	tag := domain.ErrorTag(err)
	t.update(func(s *domain.DeliveryStatus) {
		attempt := at
		s.LastAttemptAt = &attempt
		s.ConsecutiveErrors++
		s.LastError = &tag
	})
	observability.RecordAttempt(at)
}

// ResetErrors zeroes the error streak without touching timestamps.
func (t *Tracker) ResetErrors() {
	t.update(func(s *domain.DeliveryStatus) {
		s.ConsecutiveErrors = 0
		s.LastError = nil
	})
}

func (t *Tracker) update(fn func(*domain.DeliveryStatus)) {
	t.mu.Lock()
	fn(&t.status)
	snapshot := t.status.Clone()
	t.mu.Unlock()

	consecutiveErrorsGauge.Set(float64(snapshot.ConsecutiveErrors))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := t.store.Save(ctx, snapshot); err != nil {
		t.logger.Warn("persist delivery status failed", zap.Error(err))
	}
}
