// Package gate decides whether a resolved attribution is worth reporting.
package gate

import (
	"time"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// DefaultHeartbeat is the re-confirmation interval for an unchanged attribution.
const DefaultHeartbeat = 60 * time.Second

// Decision is the gate's verdict for one cycle.
type Decision struct {
	Emit   bool
	Reason domain.Reason
}

// Gate bounds event volume to changes plus a periodic heartbeat.
type Gate struct {
	heartbeat time.Duration
}

// New constructs a Gate. Non-positive intervals fall back to DefaultHeartbeat.
func New(heartbeat time.Duration) *Gate {
	g := &Gate{}
	g.SetHeartbeat(heartbeat)
	return g
}

// Heartbeat returns the configured interval.
func (g *Gate) Heartbeat() time.Duration { return g.heartbeat }

// SetHeartbeat replaces the interval.
func (g *Gate) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		d = DefaultHeartbeat
	}
	g.heartbeat = d
}

// Decide compares next against the last committed attribution. An attribution
// that was never emitted (zero LastEmittedAt) is always due.
func (g *Gate) Decide(next, prev domain.AttributionState, now time.Time, force bool) Decision {
	switch {
	case force:
		return Decision{Emit: true, Reason: domain.ReasonForce}
	case !next.SameAttribution(prev):
		return Decision{Emit: true, Reason: domain.ReasonChange}
	case prev.LastEmittedAt.IsZero() || now.Sub(prev.LastEmittedAt) >= g.heartbeat:
		return Decision{Emit: true, Reason: domain.ReasonHeartbeat}
	default:
		return Decision{}
	}
}
