package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/attribution"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/signal"
)

// cycle runs one resolve, gate and deliver pass. The committed "previous"
// attribution only moves after a successful delivery.
func (a *Agent) cycle(ctx context.Context, force bool, reason domain.Reason) error {
	if !a.cfg.Enabled {
		recordCycle(outcomeDisabled)
		return domain.ErrDisabled
	}
	if !a.cfg.Deliverable() {
		recordCycle(outcomeDisabled)
		return domain.ErrConfigMissing
	}

	focus, audible := signal.ReadSnapshot(ctx, a.reader)
	if !focus.Available || focus.HostFocused || !a.resolver.Policy().TrackBackgroundAudio {
		audible = signal.Audible{}
	}

	res := a.resolver.Resolve(attribution.Input{
		Focus:        focus,
		Audible:      audible,
		Committed:    a.previous,
		LastResolved: a.lastResolved,
	})
	if !res.Resolved {
		recordCycle(outcomeUnresolved)
		a.logger.Debug("no signal this cycle", zap.String("trigger", string(reason)))
		return domain.ErrSignalUnavailable
	}
	a.lastResolved = res.State
	a.publish(func(v *view) { v.current = res.State })

	if res.AudioStop != nil {
		if err := a.deliverAudioStop(ctx, *res.AudioStop); err != nil {
			recordCycle(outcomeFailed)
			return err
		}
	}

	now := a.now()
	decision := a.gate.Decide(res.State, a.previous, now, force)
	if !decision.Emit {
		recordCycle(outcomeSuppressed)
		a.logger.Debug("attribution unchanged",
			zap.String("activity", res.State.Activity.String()),
			zap.String("entity", res.State.Entity),
			zap.String("trigger", string(reason)),
		)
		return nil
	}

	eventReason := decision.Reason
	if force && reason != "" {
		eventReason = reason
	}
	event := domain.NewStateEvent(a.cfg.Source, res.State, eventReason, now)
	if err := a.pipeline.Deliver(ctx, event); err != nil {
		recordCycle(outcomeFailed)
		return err
	}

	next := res.State
	next.LastEmittedAt = now
	next.LastChangedAt = now
	if next.SameAttribution(a.previous) && !a.previous.LastChangedAt.IsZero() {
		next.LastChangedAt = a.previous.LastChangedAt
	}
	a.commit(next)
	recordCycle(outcomeEmitted)
	a.logger.Info("attribution emitted",
		zap.String("activity", next.Activity.String()),
		zap.String("entity", next.Entity),
		zap.String("reason", string(eventReason)),
	)
	return nil
}

// deliverAudioStop sends the end marker for the committed background-audio
// attribution. On success "previous" becomes None so the marker is never sent
// twice; on failure nothing is committed and the next cycle yields it again.
func (a *Agent) deliverAudioStop(ctx context.Context, stop domain.AudioStop) error {
	now := a.now()
	if err := a.pipeline.Deliver(ctx, domain.NewAudioStopEvent(a.cfg.Source, stop, now)); err != nil {
		return err
	}
	audioStopCounter.Inc()
	none := domain.NoneState()
	none.LastEmittedAt = now
	none.LastChangedAt = now
	a.commit(none)
	a.logger.Info("background audio stopped", zap.String("entity", stop.Entity))
	return nil
}

func (a *Agent) commit(state domain.AttributionState) {
	a.previous = state
	a.publish(func(v *view) { v.previous = state })
}
