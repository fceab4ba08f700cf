package model

import (
	"fmt"
)

// ConfigurationError is returned when a Config lacks a field required before
// a fetch can be attempted. No fetch is issued for an invalid Config.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Transport failure reasons.
const (
	ReasonNetwork     = "network"
	ReasonTimeout     = "timeout"
	ReasonStatus      = "status"
	ReasonRead        = "read"
	ReasonCircuitOpen = "circuit_open"
	ReasonRequest     = "request"
)

// TransportError classifies a failed fetch. The existing snapshot is kept and
// the fetch is retried on the next cycle.
type TransportError struct {
	Source     string
	Reason     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: fetch failed (%s)", e.Source, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PayloadError reports a response body that could not be turned into a
// Snapshot. The existing snapshot is kept.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return "malformed flags payload: " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
