package gateway

import (
	"context"
	"math/rand"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/pokt-network/discovery/metrics"
	"github.com/pokt-network/discovery/protocol"
)

// MonitorQueueConfig configures async delivery of request events.
type MonitorQueueConfig struct {
	// Enabled enables/disables async delivery.
	// When disabled, events are delivered synchronously on the request path.
	Enabled bool `yaml:"enabled,omitempty"`

	// SampleRate is the fraction of events delivered (0.0 to 1.0).
	// Default: 1.0 (every event)
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// WorkerCount is the number of delivery goroutines.
	// Default: 2
	WorkerCount int `yaml:"worker_count,omitempty"`

	// QueueSize is the max number of pending events.
	// If the queue is full, new events are dropped (non-blocking).
	// Default: 1000
	QueueSize int `yaml:"queue_size,omitempty"`
}

// Default configuration values.
const (
	DefaultMonitorSampleRate  = 1.0
	DefaultMonitorWorkerCount = 2
	DefaultMonitorQueueSize   = 1000
)

// HydrateDefaults applies default values to MonitorQueueConfig.
func (c *MonitorQueueConfig) HydrateDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultMonitorSampleRate
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = DefaultMonitorWorkerCount
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultMonitorQueueSize
	}
}

// Compile-time check that MonitorQueue implements MonitoringSink.
var _ MonitoringSink = (*MonitorQueue)(nil)

// MonitorQueue decouples a slow monitoring sink from the request path.
// Observe never blocks: events are handed to a worker pool and dropped
// when the pool's queue is full.
type MonitorQueue struct {
	config MonitorQueueConfig
	pool   pond.Pool
	sink   MonitoringSink
	logger polylog.Logger

	mu             sync.RWMutex
	totalQueued    int64
	totalDelivered int64
	totalFailed    int64 // Sink returned an error or panicked
	totalDropped   int64
	totalSkipped   int64 // Not sampled
}

// NewMonitorQueue wraps sink with async delivery.
func NewMonitorQueue(config MonitorQueueConfig, sink MonitoringSink, logger polylog.Logger) *MonitorQueue {
	config.HydrateDefaults()

	return &MonitorQueue{
		config: config,
		pool:   pond.NewPool(config.WorkerCount, pond.WithQueueSize(config.QueueSize)),
		sink:   sink,
		logger: logger.With("component", "monitor_queue"),
	}
}

// Observe queues event for delivery and always returns nil.
func (q *MonitorQueue) Observe(ctx context.Context, event protocol.RequestEvent) error {
	if !q.config.Enabled {
		q.deliver(ctx, event)
		return nil
	}

	if q.config.SampleRate < 1 && rand.Float64() > q.config.SampleRate {
		q.mu.Lock()
		q.totalSkipped++
		q.mu.Unlock()
		return nil
	}

	// The request may be done before the event is delivered.
	deliveryCtx := context.WithoutCancel(ctx)
	_, submitted := q.pool.TrySubmit(func() {
		q.deliver(deliveryCtx, event)
	})

	q.mu.Lock()
	if submitted {
		q.totalQueued++
	} else {
		q.totalDropped++
	}
	q.mu.Unlock()

	if !submitted {
		metrics.RecordSinkFailure(metrics.SinkFailureDropped)
		q.logger.Warn().
			Str("request_id", event.RequestID).
			Str("endpoint", string(event.Endpoint)).
			Msg("Monitor queue full, dropping request event")
	}
	return nil
}

func (q *MonitorQueue) deliver(ctx context.Context, event protocol.RequestEvent) {
	delivered := observeSafely(ctx, q.logger, q.sink, event)

	q.mu.Lock()
	if delivered {
		q.totalDelivered++
	} else {
		q.totalFailed++
	}
	q.mu.Unlock()
}

// Stop waits for all pending events to be delivered.
func (q *MonitorQueue) Stop() {
	q.pool.StopAndWait()

	q.mu.RLock()
	defer q.mu.RUnlock()

	q.logger.Info().
		Int64("total_queued", q.totalQueued).
		Int64("total_delivered", q.totalDelivered).
		Int64("total_failed", q.totalFailed).
		Int64("total_dropped", q.totalDropped).
		Int64("total_skipped", q.totalSkipped).
		Msg("Monitor queue stopped")
}

// GetMetrics returns current queue counters.
func (q *MonitorQueue) GetMetrics() (queued, delivered, failed, dropped, skipped int64) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.totalQueued, q.totalDelivered, q.totalFailed, q.totalDropped, q.totalSkipped
}

// IsEnabled returns true if async delivery is enabled.
func (q *MonitorQueue) IsEnabled() bool {
	return q.config.Enabled
}
