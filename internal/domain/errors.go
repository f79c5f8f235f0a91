package domain

import (
	"errors"
	"fmt"
)

// ErrSignalUnavailable means the platform could not answer this cycle. It is
// never counted as a delivery error.
var ErrSignalUnavailable = errors.New("signal unavailable")

// ErrConfigMissing is returned when no ingestion endpoint is configured.
var ErrConfigMissing = errors.New("ingestion endpoint not configured")

// ErrDisabled is returned when tracking is switched off.
var ErrDisabled = errors.New("tracking disabled")

// DeliveryErrorKind groups delivery failures.
type DeliveryErrorKind int

const (
	DeliveryTimeout DeliveryErrorKind = iota + 1
	DeliveryHTTP
	DeliveryTransport
)

// DeliveryError describes a failed delivery attempt.
type DeliveryError struct {
	Kind   DeliveryErrorKind
	Status int
	// Transport carries the tag for transport failures (connection_refused, dns, ...).
	Transport string
	Err       error
}

// Tag returns the short error tag recorded as DeliveryStatus.LastError.
func (e *DeliveryError) Tag() string {
	switch e.Kind {
	case DeliveryTimeout:
		return "timeout"
	case DeliveryHTTP:
		return fmt.Sprintf("http_%d", e.Status)
	default:
		if e.Transport != "" {
			return e.Transport
		}
		return "network"
	}
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery %s: %v", e.Tag(), e.Err)
	}
	return "delivery " + e.Tag()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrorTag extracts the tag for any error produced by a delivery attempt.
func ErrorTag(err error) string {
	if err == nil {
		return ""
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Tag()
	}
	switch {
	case errors.Is(err, ErrConfigMissing):
		return "config_missing"
	case errors.Is(err, ErrDisabled):
		return "disabled"
	case errors.Is(err, ErrSignalUnavailable):
		return "signal_unavailable"
	}
	return "error"
}
