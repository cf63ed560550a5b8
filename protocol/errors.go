package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal failures surfaced by a logical request.
// Each is wrapped in a *RequestError; match with errors.Is.
var (
	// ErrUnhealthy: no endpoint could be selected at all.
	ErrUnhealthy = errors.New("all discovery nodes are unhealthy and unavailable")

	// ErrStaleResponse: the response lagged past the freshness bar and retries ran out.
	ErrStaleResponse = errors.New("discovery node response is stale")

	// ErrNotFound: the not-found budget ran out.
	ErrNotFound = errors.New("discovery node returned not found")

	// ErrFatal: the retry budget ran out or the request could not be sent at all.
	ErrFatal = errors.New("discovery node request failed")
)

// ErrEndpointUnavailable indicates that a selected endpoint is no longer available,
// e.g. it was blacklisted between selection and dispatch.
var ErrEndpointUnavailable = errors.New("selected endpoint is not available")

// ErrMalformedHealth marks a health check body that cannot be trusted.
var ErrMalformedHealth = errors.New("malformed health check response")

// RequestError carries the terminal class of a failed request plus the
// context needed to log or display it.
type RequestError struct {
	// Kind is one of ErrUnhealthy, ErrStaleResponse, ErrNotFound, ErrFatal.
	Kind error

	Endpoint   EndpointAddr
	StatusCode int
	Attempts   int

	// Cause is the last underlying error, if any.
	Cause error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " [endpoint: %s]", e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [status: %d]", e.StatusCode)
	}
	if e.Attempts != 0 {
		fmt.Fprintf(&b, " [attempts: %d]", e.Attempts)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
