package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventVersion is the OutboundEvent schema version.
const EventVersion = 1

// EventKind distinguishes attribution reports from audio end markers.
type EventKind string

const (
	EventKindState     EventKind = "state"
	EventKindAudioStop EventKind = "audio-stop"
)

// Reason records which trigger produced an emission.
type Reason string

const (
	ReasonStartup      Reason = "startup"
	ReasonResume       Reason = "resume"
	ReasonChange       Reason = "change"
	ReasonHeartbeat    Reason = "heartbeat"
	ReasonForce        Reason = "force"
	ReasonRepair       Reason = "repair"
	ReasonConfig       Reason = "config"
	ReasonWake         Reason = "wake"
	ReasonNotification Reason = "notification"
	ReasonAudioStop    Reason = "audio_stop"
)

// OutboundEvent is the payload posted to the ingestion endpoint. Events are
// built fresh for every emission and never mutated afterwards.
type OutboundEvent struct {
	ID        string      `json:"id"`
	Version   int         `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	EventKind EventKind   `json:"eventKind"`
	Activity  Activity    `json:"activity"`
	Entity    string      `json:"entity,omitempty"`
	Title     string      `json:"title,omitempty"`
	Context   *ContextIDs `json:"contextIds,omitempty"`
	Reason    Reason      `json:"reason,omitempty"`
}

// NewStateEvent builds the report for a resolved attribution.
func NewStateEvent(source string, state AttributionState, reason Reason, at time.Time) OutboundEvent {
	return OutboundEvent{
		ID:        uuid.NewString(),
		Version:   EventVersion,
		Timestamp: at.UTC(),
		Source:    source,
		EventKind: EventKindState,
		Activity:  state.Activity,
		Entity:    state.Entity,
		Title:     state.Title,
		Context:   contextPtr(state.Context),
		Reason:    reason,
	}
}

// NewAudioStopEvent builds the marker that closes a background-audio window.
func NewAudioStopEvent(source string, stop AudioStop, at time.Time) OutboundEvent {
	return OutboundEvent{
		ID:        uuid.NewString(),
		Version:   EventVersion,
		Timestamp: at.UTC(),
		Source:    source,
		EventKind: EventKindAudioStop,
		Activity:  ActivityBackgroundAudio,
		Entity:    stop.Entity,
		Title:     stop.Title,
		Context:   contextPtr(stop.Context),
		Reason:    ReasonAudioStop,
	}
}

// AudioStop identifies the background-audio attribution being closed.
type AudioStop struct {
	Entity  string
	Title   string
	Context ContextIDs
}

func contextPtr(ids ContextIDs) *ContextIDs {
	if ids.IsZero() {
		return nil
	}
	out := ids
	return &out
}
