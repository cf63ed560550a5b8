// Package gateway executes requests against the selected discovery node.
//
// An Executor runs each logical request as a bounded loop:
//
//	select node ──► dispatch ──► classify once ──► act
//	     ▲                                          │
//	     └──────── retry / reselect ◄───────────────┘
//
// Retryable failures retry the same node until the retry budget runs out,
// then blacklist it. Not-found responses always move to a different node,
// under their own smaller budget. Stale responses exclude the node for a
// while and reselect. Every attempt is reported to the monitoring sink.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/pokt-network/discovery/metrics"
	"github.com/pokt-network/discovery/metrics/retry"
	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/selector"
)

/* --------------------------------- Executor Config Defaults -------------------------------- */

const (
	DefaultMaxRetries         = 5
	DefaultMaxNotFoundRetries = 2
	DefaultRequestTimeout     = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// ExecutorConfig holds the retry budgets and timeouts.
type ExecutorConfig struct {
	// MaxRetries bounds retries of retryable and stale outcomes per request.
	// Zero means unset, unless it is written explicitly in YAML.
	MaxRetries int `yaml:"max_retries"`

	// MaxNotFoundRetries bounds not-found responses per request, each of
	// which forces a different node. Zero means unset, unless it is written
	// explicitly in YAML, where the first not-found response is terminal.
	MaxNotFoundRetries int `yaml:"max_not_found_retries"`

	// RequestTimeout bounds each attempt unless the request overrides it.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryBackoff is the base wait before retrying the same node.
	// It doubles per retry, capped at 4x. Zero disables backoff.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	MonitorQueue MonitorQueueConfig `yaml:"monitor_queue"`

	// Explicit zero budgets from YAML.
	maxRetriesZero  bool
	maxNotFoundZero bool
}

// UnmarshalYAML is a custom unmarshaller for ExecutorConfig.
// It records zero budgets that were written explicitly.
func (c *ExecutorConfig) UnmarshalYAML(value *yaml.Node) error {
	type temp ExecutorConfig
	var val struct {
		temp `yaml:",inline"`
	}
	if err := value.Decode(&val); err != nil {
		return err
	}
	*c = ExecutorConfig(val.temp)

	for i := 0; i+1 < len(value.Content); i += 2 {
		switch value.Content[i].Value {
		case "max_retries":
			c.maxRetriesZero = c.MaxRetries == 0
		case "max_not_found_retries":
			c.maxNotFoundZero = c.MaxNotFoundRetries == 0
		}
	}
	return nil
}

// HydrateDefaults assigns default values to unset fields.
func (c *ExecutorConfig) HydrateDefaults() {
	if c.MaxRetries == 0 && !c.maxRetriesZero {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxNotFoundRetries == 0 && !c.maxNotFoundZero {
		c.MaxNotFoundRetries = DefaultMaxNotFoundRetries
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	c.MonitorQueue.HydrateDefaults()
}

func (c *ExecutorConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxNotFoundRetries < 0 {
		return fmt.Errorf("max_not_found_retries must not be negative, got %d", c.MaxNotFoundRetries)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative, got %v", c.RetryBackoff)
	}
	if c.MonitorQueue.SampleRate < 0 || c.MonitorQueue.SampleRate > 1 {
		return fmt.Errorf("monitor_queue.sample_rate must be within [0, 1], got %v", c.MonitorQueue.SampleRate)
	}
	return nil
}

/* --------------------------------- Executor -------------------------------- */

// EndpointSelector is the part of selector.NodeSelector the executor drives.
type EndpointSelector interface {
	Select(ctx context.Context) (selector.Selection, error)
	AddUnhealthy(addr protocol.EndpointAddr)
	ExcludeTemporarily(addr protocol.EndpointAddr, reason string)
	ClearCached()
	Thresholds() protocol.FreshnessThresholds
}

// Compile-time check that NodeSelector satisfies EndpointSelector.
var _ EndpointSelector = (*selector.NodeSelector)(nil)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = client }
}

// WithMonitoringSink reports every attempt to sink.
func WithMonitoringSink(sink MonitoringSink) ExecutorOption {
	return func(e *Executor) { e.sink = sink }
}

// WithHeaderFunc attaches auth or signing headers to every request.
func WithHeaderFunc(fn HeaderFunc) ExecutorOption {
	return func(e *Executor) { e.headerFunc = fn }
}

// WithUserIDFunc adds the X-User-ID header when fn returns a non-empty ID.
func WithUserIDFunc(fn UserIDFunc) ExecutorOption {
	return func(e *Executor) { e.userIDFunc = fn }
}

// Executor runs logical requests against the node picked by an EndpointSelector.
// It is safe for concurrent use; each Execute call keeps its own retry state.
type Executor struct {
	logger     polylog.Logger
	selector   EndpointSelector
	client     *http.Client
	config     ExecutorConfig
	sink       MonitoringSink
	headerFunc HeaderFunc
	userIDFunc UserIDFunc
}

// NewExecutor builds an executor. config is hydrated with defaults.
func NewExecutor(logger polylog.Logger, sel EndpointSelector, config ExecutorConfig, opts ...ExecutorOption) *Executor {
	config.HydrateDefaults()

	e := &Executor{
		logger:   logger.With("component", "request_executor"),
		selector: sel,
		client:   &http.Client{},
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the hydrated executor configuration.
func (e *Executor) Config() ExecutorConfig {
	return e.config
}

// retryState is the per-call budget bookkeeping.
type retryState struct {
	attempts         int
	attemptedRetries int
	notFoundCount    int
}

// Execute runs spec until it succeeds or hits a terminal failure.
// Errors are *protocol.RequestError wrapping one of ErrUnhealthy,
// ErrStaleResponse, ErrNotFound or ErrFatal.
func (e *Executor) Execute(ctx context.Context, spec RequestSpec) (*protocol.Response, error) {
	requestID := uuid.NewString()
	logger := e.logger.With(
		"request_id", requestID,
		"method", spec.method(),
		"path", spec.Path,
	)
	start := time.Now()

	headers, err := e.resolveHeaders(ctx, spec, requestID)
	if err != nil {
		return nil, e.fail(logger, &protocol.RequestError{Kind: protocol.ErrFatal, Cause: err}, start)
	}

	maxRetries := e.config.MaxRetries
	maxNotFound := e.config.MaxNotFoundRetries
	if spec.NoRetry {
		maxRetries = 0
		maxNotFound = 0
	}

	var state retryState
	for {
		sel, err := e.selector.Select(ctx)
		if err != nil {
			kind := protocol.ErrUnhealthy
			if ctx.Err() != nil {
				kind = protocol.ErrFatal
			} else {
				retry.RecordEndpointExhaustion(0)
			}
			return nil, e.fail(logger, &protocol.RequestError{Kind: kind, Attempts: state.attempts, Cause: err}, start)
		}

		addr := sel.Addr()
		state.attempts++
		out := e.attempt(ctx, logger, sel, spec, headers, requestID, state.attempts)

		switch out.kind {
		case protocol.OutcomeSuccess:
			if state.attempts > 1 {
				retry.RecordRetrySuccess(metrics.EndpointDomain(string(addr)), state.attempts)
				retry.RecordRetryLatency(true, time.Since(start).Seconds())
			}
			return &protocol.Response{
				Bytes:          out.body,
				HTTPStatusCode: out.statusCode,
				EndpointAddr:   addr,
				Data:           out.data,
				Freshness:      out.freshness,
				Regressed:      sel.Regressed,
				RequestID:      requestID,
				Attempts:       state.attempts,
				Latency:        time.Since(start),
			}, nil

		case protocol.OutcomeFatal:
			return nil, e.fail(logger, e.requestError(protocol.ErrFatal, addr, out, state), start)

		case protocol.OutcomeRetryable:
			if state.attemptedRetries < maxRetries {
				state.attemptedRetries++
				retry.RecordRetryAttempt(metrics.EndpointDomain(string(addr)), out.retryReason, state.attemptedRetries)
				logger.Debug().Err(out.err).
					Str("endpoint", string(addr)).
					Str("retry_reason", out.retryReason).
					Int("retry", state.attemptedRetries).
					Int("max_retries", maxRetries).
					Msg("Retrying discovery node request")
				if err := e.backoff(ctx, state.attemptedRetries); err != nil {
					return nil, e.fail(logger, &protocol.RequestError{Kind: protocol.ErrFatal, Endpoint: addr, Attempts: state.attempts, Cause: err}, start)
				}
				continue
			}
			if !spec.NoRetry {
				e.selector.AddUnhealthy(addr)
				retry.RecordReselection(retry.ReselectReasonRetryBudget, state.attempts)
			}
			return nil, e.fail(logger, e.requestError(protocol.ErrFatal, addr, out, state), start)

		case protocol.OutcomeNotFound:
			state.notFoundCount++
			if state.notFoundCount < maxNotFound {
				e.selector.ExcludeTemporarily(addr, selector.ExclusionReasonNotFound)
				e.selector.ClearCached()
				retry.RecordRetryAttempt(metrics.EndpointDomain(string(addr)), retry.RetryReasonNotFound, state.notFoundCount)
				retry.RecordReselection(retry.ReselectReasonNotFound, state.attempts)
				logger.Info().
					Str("endpoint", string(addr)).
					Int("not_found_count", state.notFoundCount).
					Int("max_not_found_retries", maxNotFound).
					Msg("Reselecting discovery node after not found")
				continue
			}
			return nil, e.fail(logger, e.requestError(protocol.ErrNotFound, addr, out, state), start)

		case protocol.OutcomeStale:
			if state.attemptedRetries < maxRetries {
				state.attemptedRetries++
				e.selector.ExcludeTemporarily(addr, selector.ExclusionReasonStale)
				retry.RecordRetryAttempt(metrics.EndpointDomain(string(addr)), retry.RetryReasonStale, state.attemptedRetries)
				retry.RecordReselection(retry.ReselectReasonStale, state.attempts)
				logger.Info().
					Str("endpoint", string(addr)).
					Int64("primary_lag", out.freshness.PrimaryLag()).
					Int64("secondary_lag", out.freshness.SecondaryLag()).
					Msg("Reselecting discovery node after stale response")
				continue
			}
			return nil, e.fail(logger, e.requestError(protocol.ErrStaleResponse, addr, out, state), start)
		}
	}
}

// attempt dispatches once, classifies, and reports the outcome.
func (e *Executor) attempt(
	ctx context.Context,
	logger polylog.Logger,
	sel selector.Selection,
	spec RequestSpec,
	headers http.Header,
	requestID string,
	attemptNum int,
) outcome {
	addr := sel.Addr()
	start := time.Now()

	res, reqURL := e.dispatch(ctx, addr, spec, headers)
	out := classify(ctx, addr, res, e.selector.Thresholds(), sel.Regressed)
	latency := time.Since(start)

	event := protocol.RequestEvent{
		RequestID:  requestID,
		Endpoint:   addr,
		Method:     spec.method(),
		StatusCode: out.statusCode,
		Latency:    latency,
		Outcome:    out.kind,
		Attempt:    attemptNum,
		Regressed:  sel.Regressed,
		Err:        out.err,
	}
	if reqURL != nil {
		event.Path = reqURL.Path
		event.Query = reqURL.RawQuery
	}
	if len(out.body) > 0 && gjson.ValidBytes(out.body) {
		event.Signer = gjson.GetBytes(out.body, "signer").String()
		event.Signature = gjson.GetBytes(out.body, "signature").String()
	}
	observeSafely(ctx, logger, e.sink, event)

	return out
}

// dispatch sends one request to addr with the per-attempt timeout.
func (e *Executor) dispatch(ctx context.Context, addr protocol.EndpointAddr, spec RequestSpec, headers http.Header) (attemptResult, *url.URL) {
	timeout := e.config.RequestTimeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newHTTPRequest(attemptCtx, addr, spec, headers)
	if err != nil {
		return attemptResult{err: fmt.Errorf("%w: %w", errBuildRequest, err)}, nil
	}
	reqURL := req.URL

	resp, err := e.client.Do(req)
	if err != nil {
		return attemptResult{err: err}, reqURL
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return attemptResult{statusCode: resp.StatusCode, err: fmt.Errorf("failed to read response body: %w", err)}, reqURL
	}

	return attemptResult{
		statusCode:  resp.StatusCode,
		body:        body,
		respondedAt: time.Now(),
	}, reqURL
}

// resolveHeaders computes the headers shared by every attempt of a request.
func (e *Executor) resolveHeaders(ctx context.Context, spec RequestSpec, requestID string) (http.Header, error) {
	headers := http.Header{}
	headers.Set(HeaderRequestID, requestID)

	if e.userIDFunc != nil {
		if userID := e.userIDFunc(ctx); userID != "" {
			headers.Set(HeaderUserID, userID)
		}
	}

	if e.headerFunc != nil {
		authHeaders, err := e.headerFunc(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to produce request headers: %w", err)
		}
		copyHeaders(headers, authHeaders)
	}
	return headers, nil
}

// backoff waits before retrying the same node: base, 2x base, then 4x base.
func (e *Executor) backoff(ctx context.Context, retryNum int) error {
	if e.config.RetryBackoff <= 0 {
		return nil
	}
	wait := e.config.RetryBackoff << min(retryNum-1, 2)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) requestError(kind error, addr protocol.EndpointAddr, out outcome, state retryState) *protocol.RequestError {
	return &protocol.RequestError{
		Kind:       kind,
		Endpoint:   addr,
		StatusCode: out.statusCode,
		Attempts:   state.attempts,
		Cause:      out.err,
	}
}

func (e *Executor) fail(logger polylog.Logger, reqErr *protocol.RequestError, start time.Time) error {
	if reqErr.Attempts > 1 {
		retry.RecordRetryLatency(false, time.Since(start).Seconds())
	}
	logger.Warn().Err(reqErr.Cause).
		Str("kind", reqErr.Kind.Error()).
		Str("endpoint", string(reqErr.Endpoint)).
		Int("status_code", reqErr.StatusCode).
		Int("attempts", reqErr.Attempts).
		Msg("Discovery node request failed")
	return reqErr
}
