// Package keeper runs the liveness timer that nudges the agent's worker.
//
// The keeper never touches attribution state. It only performs a
// non-blocking send on a wake channel; a send that would block is dropped,
// since one pending wake is as good as many.
package keeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInitialDelay = time.Second
	DefaultPeriod       = 25 * time.Second
)

// Option configures a Keeper.
type Option func(*Keeper)

// WithInitialDelay sets the delay before the first nudge.
func WithInitialDelay(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.initialDelay = d
		}
	}
}

// WithPeriod sets the steady nudge period.
func WithPeriod(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.period = d
		}
	}
}

// WithLogger overrides the keeper's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Keeper) {
		k.logger = logger
	}
}

// Keeper periodically sends a wake signal on a channel.
type Keeper struct {
	mu           sync.Mutex
	wake         chan<- struct{}
	initialDelay time.Duration
	period       time.Duration
	logger       *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Keeper that nudges wake.
func New(wake chan<- struct{}, opts ...Option) *Keeper {
	k := &Keeper{
		wake:         wake,
		initialDelay: DefaultInitialDelay,
		period:       DefaultPeriod,
		logger:       zap.L().Named("keeper"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start provisions the timer loop. Calling Start while running is a no-op.
func (k *Keeper) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	k.startLocked(ctx)
}

// Reprovision tears down any running loop and starts a fresh one.
func (k *Keeper) Reprovision(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
	k.startLocked(ctx)
	k.logger.Info("liveness keeper reprovisioned", zap.Duration("period", k.period))
}

// Stop halts the loop and waits for it to exit.
func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
}

// Running reports whether the loop is provisioned.
func (k *Keeper) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cancel != nil
}

func (k *Keeper) startLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	k.cancel = cancel
	k.done = done
	go k.run(ctx, done, k.initialDelay, k.period)
}

func (k *Keeper) stopLocked() {
	if k.cancel == nil {
		return
	}
	k.cancel()
	<-k.done
	k.cancel = nil
	k.done = nil
}

func (k *Keeper) run(ctx context.Context, done chan struct{}, initialDelay, period time.Duration) {
	defer close(done)

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			k.nudge()
			timer.Reset(period)
		}
	}
}

func (k *Keeper) nudge() {
	select {
	case k.wake <- struct{}{}:
		wakeCounter.WithLabelValues("sent").Inc()
		k.logger.Debug("wake signal sent")
	default:
		wakeCounter.WithLabelValues("dropped").Inc()
	}
}
