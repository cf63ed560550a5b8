package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pokt-network/discovery/metrics/retry"
	"github.com/pokt-network/discovery/protocol"
)

// errBuildRequest marks failures to construct a request; they never succeed on retry.
var errBuildRequest = errors.New("cannot build discovery node request")

// attemptResult is what one dispatch produced before classification.
type attemptResult struct {
	statusCode  int
	body        []byte
	err         error
	respondedAt time.Time
}

// outcome is the single classification of one dispatched attempt.
// Retry logic switches on kind and never re-inspects statuses or errors.
type outcome struct {
	kind       protocol.OutcomeKind
	statusCode int
	body       []byte
	data       json.RawMessage
	freshness  protocol.HealthSnapshot
	err        error

	// retryReason labels retryable outcomes for metrics.
	retryReason string
}

// classify maps an attempt to an outcome:
//   - request construction error or caller cancellation: fatal
//   - transport error, timeout, non-2xx other than 404: retryable
//   - 404: not found
//   - 2xx lagging past thresholds, outside regressed mode: stale
//   - any other 2xx: success
func classify(
	callerCtx context.Context,
	addr protocol.EndpointAddr,
	res attemptResult,
	thresholds protocol.FreshnessThresholds,
	regressed bool,
) outcome {
	out := outcome{statusCode: res.statusCode, body: res.body, err: res.err}

	if res.err != nil {
		switch {
		case errors.Is(res.err, errBuildRequest):
			out.kind = protocol.OutcomeFatal
		case callerCtx.Err() != nil:
			out.kind = protocol.OutcomeFatal
			out.err = callerCtx.Err()
		default:
			out.kind = protocol.OutcomeRetryable
			out.retryReason = transportRetryReason(res.err)
		}
		return out
	}

	switch {
	case res.statusCode == http.StatusNotFound:
		out.kind = protocol.OutcomeNotFound
		out.err = fmt.Errorf("status code %d", res.statusCode)
		return out
	case res.statusCode >= http.StatusInternalServerError:
		out.kind = protocol.OutcomeRetryable
		out.retryReason = retry.RetryReason5xx
		out.err = fmt.Errorf("status code %d", res.statusCode)
		return out
	case res.statusCode < http.StatusOK || res.statusCode >= http.StatusMultipleChoices:
		out.kind = protocol.OutcomeRetryable
		out.retryReason = retry.RetryReasonUnexpected
		out.err = fmt.Errorf("unexpected status code %d", res.statusCode)
		return out
	}

	out.data, out.freshness = protocol.ParseEnvelope(addr, res.body, res.respondedAt)
	if !regressed && thresholds.IsStale(out.freshness) {
		out.kind = protocol.OutcomeStale
		out.err = fmt.Errorf("response lags by %d blocks and %d plays slots",
			out.freshness.PrimaryLag(), out.freshness.SecondaryLag())
		return out
	}

	out.kind = protocol.OutcomeSuccess
	return out
}

func transportRetryReason(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return retry.RetryReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return retry.RetryReasonTimeout
	default:
		return retry.RetryReasonConnectionError
	}
}
