package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a lookup failed.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindGeocodeFailed
	KindNoFacilityFound
	KindRoutingFailed
	KindUpstreamUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindGeocodeFailed:
		return "geocode_failed"
	case KindNoFacilityFound:
		return "no_facility_found"
	case KindRoutingFailed:
		return "routing_failed"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// LookupError is the single failure type a lookup produces.
//
// Message is meant for the end user and is surfaced verbatim. Err keeps the
// underlying cause for logs and error reports. Transient marks transport-level
// failures (timeouts, connection errors, 5xx) that a caller may retry;
// definitive answers such as "address not found" are never transient.
type LookupError struct {
	Kind      ErrorKind
	Message   string
	Transient bool
	Err       error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is matches any LookupError of the same kind, so the Err* sentinels below
// work with errors.Is.
func (e *LookupError) Is(target error) bool {
	var t *LookupError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput        = &LookupError{Kind: KindInvalidInput}
	ErrGeocodeFailed       = &LookupError{Kind: KindGeocodeFailed}
	ErrNoFacilityFound     = &LookupError{Kind: KindNoFacilityFound}
	ErrRoutingFailed       = &LookupError{Kind: KindRoutingFailed}
	ErrUpstreamUnavailable = &LookupError{Kind: KindUpstreamUnavailable}
)

const (
	noFacilityMessage          = "No station could be found for the given location."
	upstreamUnavailableMessage = "A required service is currently unavailable. Please try again later."
)

func InvalidInput(message string) *LookupError {
	return &LookupError{Kind: KindInvalidInput, Message: message}
}

func GeocodeFailed(message string, transient bool, err error) *LookupError {
	return &LookupError{Kind: KindGeocodeFailed, Message: message, Transient: transient, Err: err}
}

// NoFacilityFound uses a generic message when message is empty.
func NoFacilityFound(message string) *LookupError {
	if message == "" {
		message = noFacilityMessage
	}
	return &LookupError{Kind: KindNoFacilityFound, Message: message}
}

func RoutingFailed(message string, transient bool, err error) *LookupError {
	return &LookupError{Kind: KindRoutingFailed, Message: message, Transient: transient, Err: err}
}

func UpstreamUnavailable(err error) *LookupError {
	return &LookupError{Kind: KindUpstreamUnavailable, Message: upstreamUnavailableMessage, Transient: true, Err: err}
}

// AsLookupError extracts a *LookupError from err's chain.
func AsLookupError(err error) (*LookupError, bool) {
	var lerr *LookupError
	if errors.As(err, &lerr) {
		return lerr, true
	}
	return nil, false
}

// IsTransient reports whether err is a LookupError flagged as retryable.
func IsTransient(err error) bool {
	lerr, ok := AsLookupError(err)
	return ok && lerr.Transient
}
