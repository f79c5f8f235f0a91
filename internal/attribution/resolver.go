// Package attribution turns raw platform signals into a single attribution.
package attribution

import (
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/signal"
)

// Policy holds the user-controlled switches that shape resolution.
type Policy struct {
	TrackBackgroundAudio bool
	SendTitle            bool
}

// Input is everything one resolution cycle looks at.
type Input struct {
	Focus   signal.Focus
	Audible signal.Audible
	// Committed is the last successfully delivered attribution.
	Committed domain.AttributionState
	// LastResolved is what the previous cycle resolved, delivered or not. It
	// keeps background-audio selection stable between cycles.
	LastResolved domain.AttributionState
}

// Resolution is the outcome of one cycle.
type Resolution struct {
	// Resolved is false when the platform gave no usable signal this cycle.
	Resolved bool
	State    domain.AttributionState
	// AudioStop is set when a committed background-audio attribution ends.
	AudioStop *domain.AudioStop
}

// Resolver applies the attribution precedence rules.
type Resolver struct {
	policy Policy
}

// NewResolver constructs a Resolver.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy returns the active policy.
func (r *Resolver) Policy() Policy { return r.policy }

// SetPolicy replaces the active policy.
func (r *Resolver) SetPolicy(p Policy) { r.policy = p }

// Resolve picks Focus over BackgroundAudio over None.
func (r *Resolver) Resolve(in Input) Resolution {
	if !in.Focus.Available {
		return Resolution{}
	}

	var state domain.AttributionState
	switch {
	case in.Focus.HostFocused:
		state = r.fromCandidate(domain.ActivityFocus, in.Focus.Active)
	case r.policy.TrackBackgroundAudio:
		if !in.Audible.Available {
			return Resolution{}
		}
		state = r.fromCandidate(domain.ActivityBackgroundAudio, r.pickAudible(in.Audible.Entities, in.LastResolved))
	default:
		state = domain.NoneState()
	}

	res := Resolution{Resolved: true, State: state}
	prev := in.Committed
	if prev.Activity == domain.ActivityBackgroundAudio &&
		!(state.Activity == domain.ActivityBackgroundAudio && state.Entity == prev.Entity) {
		res.AudioStop = &domain.AudioStop{Entity: prev.Entity, Title: prev.Title, Context: prev.Context}
	}
	return res
}

func (r *Resolver) fromCandidate(activity domain.Activity, c *signal.Candidate) domain.AttributionState {
	if c == nil {
		return domain.NoneState()
	}
	entity, ok := c.Entity()
	if !ok {
		return domain.NoneState()
	}
	state := domain.AttributionState{
		Activity: activity,
		Entity:   entity,
		Context:  c.Context,
	}
	if r.policy.SendTitle {
		state.Title = c.Title
	}
	return state
}

// pickAudible keeps the previously resolved entity, focused or audio, while it
// is still audible, otherwise takes the most recently accessed identifiable candidate.
func (r *Resolver) pickAudible(candidates []signal.Candidate, last domain.AttributionState) *signal.Candidate {
	var best *signal.Candidate
	for i := range candidates {
		c := &candidates[i]
		entity, ok := c.Entity()
		if !ok {
			continue
		}
		if last.Entity != "" && entity == last.Entity {
			return c
		}
		if best == nil || c.LastAccessed.After(best.LastAccessed) {
			best = c
		}
	}
	return best
}
