// Package agent owns the attribution state and runs every resolution cycle on
// a single worker goroutine.
//
// Triggers (platform notifications, keeper wakes, the heartbeat timer and
// commands) are funnelled into Run. Commands that arrive while a cycle is in
// progress are merged into one follow-up cycle and every merged caller gets
// that cycle's result.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/attribution"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/config"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/delivery"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/gate"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/keeper"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/signal"
)

const (
	requestBuffer = 16
	minRearm      = time.Second
)

// ErrStopped is returned to command callers once the worker has exited.
var ErrStopped = errors.New("agent stopped")

// Option configures an Agent.
type Option func(*Agent)

// WithLogger overrides the agent's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithClock overrides the time source used for gate decisions and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

type request struct {
	force  bool
	repair bool
	resume bool
	reason domain.Reason
	cfg    *config.Config
	reply  chan Result
}

// Agent is the serialized attribution worker.
type Agent struct {
	reader   signal.Reader
	resolver *attribution.Resolver
	gate     *gate.Gate
	pipeline *delivery.Pipeline
	keeper   *keeper.Keeper
	logger   *zap.Logger
	now      func() time.Time

	requests chan request
	wake     chan struct{}
	done     chan struct{}
	runOnce  sync.Once

	// Owned by the worker goroutine.
	cfg          config.Config
	previous     domain.AttributionState
	lastResolved domain.AttributionState

	// Published copies for Status.
	mu   sync.RWMutex
	view view
}

type view struct {
	cfg      config.Config
	keeper   *keeper.Keeper
	current  domain.AttributionState
	previous domain.AttributionState
}

// New constructs an Agent for cfg reading signals from reader and delivering
// through pipeline.
func New(cfg config.Config, reader signal.Reader, pipeline *delivery.Pipeline, opts ...Option) *Agent {
	a := &Agent{
		reader: reader,
		resolver: attribution.NewResolver(attribution.Policy{
			TrackBackgroundAudio: cfg.TrackBackgroundAudio,
			SendTitle:            cfg.SendTitle,
		}),
		gate:         gate.New(cfg.Heartbeat()),
		pipeline:     pipeline,
		logger:       zap.L().Named("agent"),
		now:          time.Now,
		requests:     make(chan request, requestBuffer),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		cfg:          cfg,
		previous:     domain.NoneState(),
		lastResolved: domain.NoneState(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.keeper = a.newKeeper(cfg)
	a.pipeline.SetTimeout(cfg.DeliveryTimeout)
	a.view = view{cfg: cfg, keeper: a.keeper, current: domain.NoneState(), previous: domain.NoneState()}
	return a
}

// Run processes triggers until ctx is cancelled. It performs a forced startup
// cycle first. Run may only be called once.
func (a *Agent) Run(ctx context.Context) error {
	started := false
	a.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("agent: Run called twice")
	}
	defer close(a.done)
	defer func() { a.keeper.Stop() }()

	heartbeat := time.NewTimer(a.gate.Heartbeat())
	defer heartbeat.Stop()

	a.handle(ctx, newBatch(request{force: true, resume: true, reason: domain.ReasonStartup}))
	a.rearm(heartbeat)

	var changes <-chan struct{}
	if n, ok := a.reader.(signal.Notifier); ok {
		changes = n.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case req := <-a.requests:
			a.handle(ctx, a.coalesce(req))
		case <-a.wake:
			a.handle(ctx, newBatch(request{reason: domain.ReasonWake}))
		case <-changes:
			a.handle(ctx, newBatch(request{reason: domain.ReasonNotification}))
		case <-heartbeat.C:
			a.handle(ctx, newBatch(request{reason: domain.ReasonHeartbeat}))
		}
		a.rearm(heartbeat)
	}
}

// coalesce drains queued requests and merges them into first.
func (a *Agent) coalesce(first request) batch {
	b := newBatch(first)
	for {
		select {
		case req := <-a.requests:
			b.add(req)
		default:
			return b
		}
	}
}

// batch is one or more requests served by a single cycle.
type batch struct {
	force   bool
	repair  bool
	resume  bool
	reason  domain.Reason
	cfg     *config.Config
	replies []chan Result
}

func newBatch(req request) batch {
	var b batch
	b.add(req)
	return b
}

// add merges req. Flags are ORed, the latest config wins and the first forced
// reason is kept.
func (b *batch) add(req request) {
	if req.force && !b.force {
		b.reason = req.reason
	} else if b.reason == "" {
		b.reason = req.reason
	}
	b.force = b.force || req.force
	b.repair = b.repair || req.repair
	b.resume = b.resume || req.resume
	if req.cfg != nil {
		b.cfg = req.cfg
	}
	if req.reply != nil {
		b.replies = append(b.replies, req.reply)
	}
}

func (a *Agent) handle(ctx context.Context, b batch) {
	// A config-only batch runs a cycle only when the change matters.
	run := b.force || b.cfg == nil
	if b.cfg != nil && a.applyConfig(ctx, *b.cfg) {
		run = true
		if !b.force {
			b.force = true
			b.reason = domain.ReasonConfig
		}
	}
	if b.repair {
		b.reason = domain.ReasonRepair
		a.pipeline.Tracker().ResetErrors()
		if a.cfg.KeepAlive {
			a.keeper.Reprovision(ctx)
		}
	}
	if b.resume && a.cfg.KeepAlive {
		a.keeper.Start(ctx)
	}

	result := Result{OK: true}
	if run {
		result = NewResult(a.cycle(ctx, b.force, b.reason))
	}
	for _, reply := range b.replies {
		reply <- result
	}
}

// rearm schedules the heartbeat timer for the moment the committed
// attribution becomes due again.
func (a *Agent) rearm(t *time.Timer) {
	wait := a.gate.Heartbeat()
	if !a.previous.LastEmittedAt.IsZero() {
		wait = a.previous.LastEmittedAt.Add(wait).Sub(a.now())
	}
	switch {
	case wait <= 0:
		// Overdue means the last due cycle failed; retry on the next interval.
		wait = a.gate.Heartbeat()
	case wait < minRearm:
		wait = minRearm
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(wait)
}

func (a *Agent) newKeeper(cfg config.Config) *keeper.Keeper {
	return keeper.New(a.wake,
		keeper.WithInitialDelay(cfg.KeepAliveInitialDelay),
		keeper.WithPeriod(cfg.KeepAlivePeriod),
		keeper.WithLogger(a.logger.Named("keeper")),
	)
}

// applyConfig swaps in cfg and reports whether the change requires a forced cycle.
func (a *Agent) applyConfig(ctx context.Context, cfg config.Config) bool {
	old := a.cfg
	a.cfg = cfg
	a.resolver.SetPolicy(attribution.Policy{
		TrackBackgroundAudio: cfg.TrackBackgroundAudio,
		SendTitle:            cfg.SendTitle,
	})
	a.gate.SetHeartbeat(cfg.Heartbeat())
	a.pipeline.SetTimeout(cfg.DeliveryTimeout)
	if s, ok := a.pipeline.Sink().(interface{ SetServerURL(string) }); ok && old.ServerURL != cfg.ServerURL {
		s.SetServerURL(cfg.ServerURL)
	}
	if old.Sink != cfg.Sink || old.KafkaTopic != cfg.KafkaTopic {
		a.logger.Warn("sink change takes effect after restart",
			zap.String("sink", old.Sink), zap.String("requested", cfg.Sink))
	}

	periodChanged := old.KeepAliveInitialDelay != cfg.KeepAliveInitialDelay || old.KeepAlivePeriod != cfg.KeepAlivePeriod
	switch {
	case !cfg.KeepAlive:
		a.keeper.Stop()
	case periodChanged:
		a.keeper.Stop()
		a.keeper = a.newKeeper(cfg)
		a.publish(func(v *view) { v.keeper = a.keeper })
		a.keeper.Start(ctx)
	default:
		a.keeper.Start(ctx)
	}

	a.publish(func(v *view) { v.cfg = cfg })
	affects := config.AffectsAttribution(old, cfg)
	a.logger.Info("configuration applied", zap.Bool("forces_cycle", affects))
	return affects
}

func (a *Agent) publish(fn func(*view)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.view)
}
