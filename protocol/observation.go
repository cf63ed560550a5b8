package protocol

import "time"

// OutcomeKind is the closed set of classifications a dispatched request can receive.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeStale
	OutcomeNotFound
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeStale:
		return "stale"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRetryable:
		return "retryable_error"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RequestEvent is reported to the monitoring sink once per classified attempt,
// successful or not.
type RequestEvent struct {
	RequestID string

	// Endpoint is the origin of the node that served the attempt.
	Endpoint EndpointAddr
	Path     string
	// Query is the encoded query string, without the leading "?".
	Query  string
	Method string

	// StatusCode is 0 when no HTTP response was received.
	StatusCode int
	Latency    time.Duration

	Outcome   OutcomeKind
	Attempt   int
	Regressed bool

	// Signer and Signature are copied from the identity headers, if any.
	Signer    string
	Signature string

	// Err is the transport or classification error, if any.
	Err error
}

// LatencyMillis is the attempt latency in whole milliseconds.
func (e RequestEvent) LatencyMillis() int64 {
	return e.Latency.Milliseconds()
}
