package agent

import (
	"context"
	"errors"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/config"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// ErrHealthUnsupported is returned by Health when the sink has no probe.
var ErrHealthUnsupported = errors.New("sink has no health probe")

// Result is the synchronous answer to a command.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	err   error
}

// Err returns the underlying failure, if any.
func (r Result) Err() error { return r.err }

// NewResult converts a cycle outcome into a command Result.
func NewResult(err error) Result {
	if err == nil {
		return Result{OK: true}
	}
	return Result{Error: domain.ErrorTag(err), err: err}
}

// Status is a read-only snapshot for diagnostics.
type Status struct {
	Delivery         domain.DeliveryStatus   `json:"delivery"`
	Current          domain.AttributionState `json:"current"`
	Previous         domain.AttributionState `json:"previous"`
	Enabled          bool                    `json:"enabled"`
	ServerURL        string                  `json:"serverUrl"`
	Sink             string                  `json:"sink"`
	SendTitle        bool                    `json:"sendTitle"`
	TrackAudio       bool                    `json:"trackBackgroundAudio"`
	HeartbeatSeconds int                     `json:"heartbeatSeconds"`
	KeepAlive        bool                    `json:"keepAlive"`
	KeeperRunning    bool                    `json:"keeperRunning"`
}

// ForceEmit runs one cycle that bypasses change suppression and reports its outcome.
func (a *Agent) ForceEmit(ctx context.Context) Result {
	commandsCounter.WithLabelValues("force").Inc()
	return a.call(ctx, request{force: true, reason: domain.ReasonForce})
}

// Repair clears the error streak, reprovisions the liveness keeper and forces
// a cycle.
func (a *Agent) Repair(ctx context.Context) Result {
	commandsCounter.WithLabelValues("repair").Inc()
	return a.call(ctx, request{force: true, repair: true, reason: domain.ReasonRepair})
}

// Resume re-initialises after the host suspended the process: the keeper is
// restarted, the heartbeat re-armed and a forced cycle requested.
func (a *Agent) Resume(ctx context.Context) Result {
	commandsCounter.WithLabelValues("resume").Inc()
	return a.call(ctx, request{force: true, resume: true, reason: domain.ReasonResume})
}

// UpdateConfig hands a reloaded configuration to the worker. It does not wait
// for the resulting cycle.
func (a *Agent) UpdateConfig(cfg config.Config) {
	select {
	case a.requests <- request{cfg: &cfg}:
	case <-a.done:
	}
}

// Status returns the current diagnostics snapshot.
func (a *Agent) Status() Status {
	a.mu.RLock()
	v := a.view
	a.mu.RUnlock()

	return Status{
		Delivery:         a.pipeline.Tracker().Snapshot(),
		Current:          v.current,
		Previous:         v.previous,
		Enabled:          v.cfg.Deliverable(),
		ServerURL:        v.cfg.ServerURL,
		Sink:             v.cfg.Sink,
		SendTitle:        v.cfg.SendTitle,
		TrackAudio:       v.cfg.TrackBackgroundAudio,
		HeartbeatSeconds: v.cfg.HeartbeatSeconds,
		KeepAlive:        v.cfg.KeepAlive,
		KeeperRunning:    v.keeper.Running(),
	}
}

// Health probes the ingestion endpoint. It does not touch attribution state.
func (a *Agent) Health(ctx context.Context) error {
	prober, ok := a.pipeline.Sink().(interface {
		Health(context.Context) error
	})
	if !ok {
		return ErrHealthUnsupported
	}
	return prober.Health(ctx)
}

func (a *Agent) call(ctx context.Context, req request) Result {
	req.reply = make(chan Result, 1)
	select {
	case a.requests <- req:
	case <-a.done:
		return NewResult(ErrStopped)
	case <-ctx.Done():
		return NewResult(ctx.Err())
	}
	select {
	case res := <-req.reply:
		return res
	case <-a.done:
		return NewResult(ErrStopped)
	case <-ctx.Done():
		return NewResult(ctx.Err())
	}
}
