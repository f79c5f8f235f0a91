// Package domain holds the attribution model shared by the agent's components.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Activity classifies what the user is currently attributable to.
type Activity int

const (
	ActivityNone Activity = iota
	ActivityFocus
	ActivityBackgroundAudio
)

// String returns the wire representation of the activity.
func (a Activity) String() string {
	switch a {
	case ActivityNone:
		return "none"
	case ActivityFocus:
		return "focus"
	case ActivityBackgroundAudio:
		return "audio"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// MarshalJSON encodes the activity as its string form.
func (a Activity) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "none", "":
		*a = ActivityNone
	case "focus":
		*a = ActivityFocus
	case "audio":
		*a = ActivityBackgroundAudio
	default:
		return fmt.Errorf("unknown activity %q", raw)
	}
	return nil
}

// ContextIDs correlate an attribution with the platform object that produced it.
// They only distinguish "same thing, still active" from "switched".
type ContextIDs struct {
	WindowID string `json:"windowId,omitempty"`
	TabID    string `json:"tabId,omitempty"`
}

// IsZero reports whether no correlation identifier is set.
func (c ContextIDs) IsZero() bool {
	return c.WindowID == "" && c.TabID == ""
}

// AttributionState is the agent's current answer to "what is the user doing".
// Entity is set iff Activity != ActivityNone.
type AttributionState struct {
	Activity      Activity   `json:"activity"`
	Entity        string     `json:"entity,omitempty"`
	Context       ContextIDs `json:"contextIds"`
	Title         string     `json:"title,omitempty"`
	LastEmittedAt time.Time  `json:"lastEmittedAt"`
	LastChangedAt time.Time  `json:"lastChangedAt"`
}

// NoneState returns the empty attribution.
func NoneState() AttributionState {
	return AttributionState{Activity: ActivityNone}
}

// Validate enforces the entity/activity invariant.
func (s AttributionState) Validate() error {
	if s.Activity == ActivityNone && s.Entity != "" {
		return fmt.Errorf("attribution: entity %q set on none activity", s.Entity)
	}
	if s.Activity != ActivityNone && s.Entity == "" {
		return fmt.Errorf("attribution: %s activity without entity", s.Activity)
	}
	return nil
}

// SameAttribution compares the fields that define an attribution change:
// activity, entity and correlation identifiers. Titles and timestamps are ignored.
func (s AttributionState) SameAttribution(other AttributionState) bool {
	return s.Activity == other.Activity && s.Entity == other.Entity && s.Context == other.Context
}
