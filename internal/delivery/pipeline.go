package delivery

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// ErrInFlight is returned when a delivery is already outstanding.
var ErrInFlight = errors.New("delivery already in flight")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger overrides the logger used to report failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline delivers one event per call with a hard timeout. It never retries
// on its own: the caller's next cycle is the retry.
type Pipeline struct {
	sink     Sink
	tracker  *Tracker
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	inFlight atomic.Bool
}

// NewPipeline constructs a Pipeline.
func NewPipeline(sink Sink, tracker *Tracker, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:    sink,
		tracker: tracker,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  zap.L().Named("delivery"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracker exposes the status record owner.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Sink returns the underlying sink.
func (p *Pipeline) Sink() Sink { return p.sink }

// SetTimeout replaces the per-attempt timeout.
func (p *Pipeline) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// Deliver sends event and records the outcome. At most one call is in
// flight; an overlapping call returns ErrInFlight without sending.
func (p *Pipeline) Deliver(ctx context.Context, event domain.OutboundEvent) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer p.inFlight.Store(false)

	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	err := p.sink.Send(attemptCtx, event)
	attemptDuration.Observe(time.Since(started).Seconds())

	if errors.Is(err, domain.ErrConfigMissing) {
		return err
	}
	at := p.now()
	if err != nil {
		p.tracker.RecordFailure(at, err)
		failedCounter.WithLabelValues(domain.ErrorTag(err)).Inc()
		snapshot := p.tracker.Snapshot()
		p.logger.Warn("event delivery failed",
			zap.String("reason", domain.ErrorTag(err)),
			zap.String("kind", string(event.EventKind)),
			zap.String("entity", event.Entity),
			zap.Int("consecutive_errors", snapshot.ConsecutiveErrors),
			zap.Error(err),
		)
		return err
	}

	p.tracker.RecordSuccess(at, event)
	deliveredCounter.WithLabelValues(string(event.EventKind)).Inc()
	p.logger.Debug("event delivered",
		zap.String("kind", string(event.EventKind)),
		zap.String("activity", event.Activity.String()),
		zap.String("entity", event.Entity),
		zap.String("reason", string(event.Reason)),
	)
	return nil
}
