package domain

import "time"

// DeliveryStatus is the diagnostic record surfaced to the user.
type DeliveryStatus struct {
	LastAttemptAt     *time.Time     `json:"lastAttemptAt"`
	LastSuccessAt     *time.Time     `json:"lastSuccessAt"`
	ConsecutiveErrors int            `json:"consecutiveErrors"`
	LastError         *string        `json:"lastError"`
	LastSentEvent     *OutboundEvent `json:"lastSentEvent,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s DeliveryStatus) Clone() DeliveryStatus {
	out := DeliveryStatus{ConsecutiveErrors: s.ConsecutiveErrors}
	if s.LastAttemptAt != nil {
		t := *s.LastAttemptAt
		out.LastAttemptAt = &t
	}
	if s.LastSuccessAt != nil {
		t := *s.LastSuccessAt
		out.LastSuccessAt = &t
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.LastSentEvent != nil {
		ev := *s.LastSentEvent
		if ev.Context != nil {
			ids := *ev.Context
			ev.Context = &ids
		}
		out.LastSentEvent = &ev
	}
	return out
}
