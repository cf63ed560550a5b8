// Package client is the entry point for applications talking to discovery nodes.
//
// A Client wires the pieces together:
//
//	registry ──► selector ──► executor ──► discovery node
//	                 │            │
//	               store     monitoring sinks
//
// Callers issue requests with Do or Get and never pick a node themselves.
// Node choice, retries, staleness checks and failover happen underneath.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/pokt-network/discovery/config"
	"github.com/pokt-network/discovery/gateway"
	"github.com/pokt-network/discovery/metrics"
	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/registry"
	"github.com/pokt-network/discovery/selector"
	"github.com/pokt-network/discovery/selector/storage"
)

// componentName identifies the client in readiness reports.
const componentName = "discovery_client"

// ErrDecodeData is returned by Get when the response payload does not fit the requested type.
var ErrDecodeData = errors.New("failed to decode response data")

type options struct {
	httpClient *http.Client
	registry   registry.Registry
	store      selector.Store
	sinks      []gateway.MonitoringSink
	headerFunc gateway.HeaderFunc
	userIDFunc gateway.UserIDFunc
	onSelect   func(selector.Selection)
}

// Option customizes a Client.
type Option func(*options)

// WithHTTPClient sets the client used for both health probes and requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRegistry replaces the registry described by the config.
func WithRegistry(r registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithStore replaces the selection store described by the config.
func WithStore(s selector.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMonitoringSink adds a sink receiving every classified attempt.
func WithMonitoringSink(s gateway.MonitoringSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithHeaderFunc sets the per-request header provider, e.g. for request signing.
func WithHeaderFunc(fn gateway.HeaderFunc) Option {
	return func(o *options) { o.headerFunc = fn }
}

// WithUserIDFunc sets the provider of the X-User-ID header.
func WithUserIDFunc(fn gateway.UserIDFunc) Option {
	return func(o *options) { o.userIDFunc = fn }
}

// WithOnSelect registers a callback invoked when a round picks a node.
func WithOnSelect(fn func(selector.Selection)) Option {
	return func(o *options) { o.onSelect = fn }
}

// Client issues requests against the best available discovery node.
// It is safe for concurrent use.
type Client struct {
	logger   polylog.Logger
	selector *selector.NodeSelector
	executor *gateway.Executor

	// monitorQueue is nil when async delivery is disabled.
	monitorQueue *gateway.MonitorQueue
}

// New builds a Client from a hydrated and validated config.
func New(ctx context.Context, logger polylog.Logger, cfg config.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With("component", componentName)

	reg := o.registry
	if reg == nil {
		var err error
		if reg, err = newRegistry(logger, cfg.Registry, o.httpClient); err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil && cfg.Storage.Enabled() {
		var err error
		if store, err = storage.NewStore(ctx, cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to create selection store: %w", err)
		}
	}

	selectorOpts := []selector.Option{}
	if store != nil {
		selectorOpts = append(selectorOpts, selector.WithStore(store))
	}
	if o.onSelect != nil {
		selectorOpts = append(selectorOpts, selector.WithOnSelect(o.onSelect))
	}
	if o.httpClient != nil {
		selectorOpts = append(selectorOpts, selector.WithProber(selector.NewHTTPProber(o.httpClient, cfg.Selection.HealthCheckPath)))
	}

	sel, err := selector.NewNodeSelector(logger, reg, cfg.Selection, selectorOpts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	c := &Client{
		logger:   logger,
		selector: sel,
	}

	sinks := gateway.MultiSink{&metrics.PrometheusMonitor{Logger: logger}}
	sinks = append(sinks, o.sinks...)

	var sink gateway.MonitoringSink = sinks
	if cfg.Executor.MonitorQueue.Enabled {
		c.monitorQueue = gateway.NewMonitorQueue(cfg.Executor.MonitorQueue, sinks, logger)
		sink = c.monitorQueue
	}

	executorOpts := []gateway.ExecutorOption{gateway.WithMonitoringSink(sink)}
	if o.httpClient != nil {
		executorOpts = append(executorOpts, gateway.WithHTTPClient(o.httpClient))
	}
	if o.headerFunc != nil {
		executorOpts = append(executorOpts, gateway.WithHeaderFunc(o.headerFunc))
	}
	if o.userIDFunc != nil {
		executorOpts = append(executorOpts, gateway.WithUserIDFunc(o.userIDFunc))
	}
	c.executor = gateway.NewExecutor(logger, sel, cfg.Executor, executorOpts...)

	return c, nil
}

// newRegistry builds the registry described by cfg.
// A listing URL is wrapped in a cache; a static list needs none.
func newRegistry(logger polylog.Logger, cfg config.RegistryConfig, httpClient *http.Client) (registry.Registry, error) {
	if cfg.URL != "" {
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Timeout}
		}
		return registry.NewCachingRegistry(logger, registry.NewHTTPRegistry(cfg.URL, httpClient), cfg.RefreshInterval), nil
	}

	reg, err := registry.NewStaticRegistry(cfg.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to create static registry: %w", err)
	}
	return reg, nil
}

/* --------------------------------- Requests -------------------------------- */

// Do executes spec against the selected node.
// Errors are *protocol.RequestError; match the class with errors.Is.
func (c *Client) Do(ctx context.Context, spec gateway.RequestSpec) (*protocol.Response, error) {
	return c.executor.Execute(ctx, spec)
}

// Get executes spec and decodes the "data" member of the response envelope into T.
func Get[T any](ctx context.Context, c *Client, spec gateway.RequestSpec) (T, error) {
	var out T

	resp, err := c.Do(ctx, spec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("%w from %s: %v", ErrDecodeData, resp.EndpointAddr, err)
	}
	return out, nil
}

/* --------------------------------- Selection -------------------------------- */

// Select returns the node requests are currently sent to, probing if needed.
func (c *Client) Select(ctx context.Context) (selector.Selection, error) {
	return c.selector.Select(ctx)
}

// Current returns the cached selection without probing.
func (c *Client) Current() (selector.Selection, bool) {
	return c.selector.Current()
}

// ClearCached forgets the current selection; the next request reselects.
func (c *Client) ClearCached() {
	c.selector.ClearCached()
}

func (c *Client) Blacklisted() []selector.BlacklistedEndpoint {
	return c.selector.Blacklisted()
}

func (c *Client) ResetBlacklist() {
	c.selector.ResetBlacklist()
}

func (c *Client) ExclusionCount() int {
	return c.selector.ExclusionCount()
}

func (c *Client) Rounds() int64 {
	return c.selector.Rounds()
}

// SetUnhealthyPrimaryLag changes the tolerated block lag for later rounds and responses.
func (c *Client) SetUnhealthyPrimaryLag(lag int64) {
	c.selector.SetUnhealthyPrimaryLag(lag)
}

// SetUnhealthySecondaryLag changes the tolerated plays slot lag. Zero disables the axis.
func (c *Client) SetUnhealthySecondaryLag(lag int64) {
	c.selector.SetUnhealthySecondaryLag(lag)
}

func (c *Client) Thresholds() protocol.FreshnessThresholds {
	return c.selector.Thresholds()
}

/* --------------------------------- Lifecycle -------------------------------- */

// Name identifies the client in readiness reports.
func (c *Client) Name() string {
	return componentName
}

// IsReady reports whether a node is currently selected.
func (c *Client) IsReady() bool {
	_, ok := c.selector.Current()
	return ok
}

// Close drains pending monitoring events and releases the selector's resources.
func (c *Client) Close() error {
	if c.monitorQueue != nil {
		c.monitorQueue.Stop()
	}
	c.selector.Stop()
	return nil
}
