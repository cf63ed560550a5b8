package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/pokt-network/discovery/metrics"
	"github.com/pokt-network/discovery/protocol"
)

var errSinkPanic = errors.New("monitoring sink panicked")

// MonitoringSink receives one event per classified attempt.
// A failing or panicking sink never affects the request it observes.
type MonitoringSink interface {
	Observe(ctx context.Context, event protocol.RequestEvent) error
}

// MonitoringSinkFunc adapts a function to MonitoringSink.
type MonitoringSinkFunc func(ctx context.Context, event protocol.RequestEvent) error

func (f MonitoringSinkFunc) Observe(ctx context.Context, event protocol.RequestEvent) error {
	return f(ctx, event)
}

// MultiSink fans an event out to every sink, in order. One sink failing does
// not stop delivery to the others; their errors are joined.
type MultiSink []MonitoringSink

func (m MultiSink) Observe(ctx context.Context, event protocol.RequestEvent) error {
	var errs []error
	for _, sink := range m {
		if err := callSink(ctx, sink, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// callSink invokes sink, turning a panic into an error wrapping errSinkPanic.
func callSink(ctx context.Context, sink MonitoringSink, event protocol.RequestEvent) (err error) {
	if sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errSinkPanic, r)
		}
	}()
	return sink.Observe(ctx, event)
}

// observeSafely delivers event to sink, logging and counting failures
// instead of propagating them. It reports whether the sink accepted the event.
func observeSafely(ctx context.Context, logger polylog.Logger, sink MonitoringSink, event protocol.RequestEvent) bool {
	err := callSink(ctx, sink, event)
	if err == nil {
		return true
	}

	reason := metrics.SinkFailureError
	if errors.Is(err, errSinkPanic) {
		reason = metrics.SinkFailurePanic
	}
	metrics.RecordSinkFailure(reason)

	logger.Warn().Err(err).
		Str("request_id", event.RequestID).
		Str("endpoint", string(event.Endpoint)).
		Str("failure", reason).
		Msg("Monitoring sink failed")
	return false
}
