package selector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pokt-network/discovery/protocol"
)

// maxHealthBodyBytes caps how much of a health response is read.
const maxHealthBodyBytes = 1 << 20

// Prober fetches a health snapshot from one node.
// Implementations must honour ctx cancellation; the selector bounds each call
// with the configured probe timeout.
type Prober interface {
	Probe(ctx context.Context, record protocol.EndpointRecord) (protocol.HealthSnapshot, error)
}

// Compile-time check that HTTPProber implements Prober.
var _ Prober = (*HTTPProber)(nil)

// HTTPProber probes GET {addr}{path} and parses the freshness envelope.
type HTTPProber struct {
	client *http.Client
	path   string
	now    func() time.Time
}

// NewHTTPProber returns a prober for the given health check path.
// A nil client uses a dedicated client without an overall timeout; the probe
// context carries the deadline.
func NewHTTPProber(client *http.Client, path string) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	if path == "" {
		path = DefaultHealthCheckPath
	}
	return &HTTPProber{client: client, path: path, now: time.Now}
}

func (p *HTTPProber) Probe(ctx context.Context, record protocol.EndpointRecord) (protocol.HealthSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(record.Addr)+p.path, nil)
	if err != nil {
		return protocol.HealthSnapshot{}, fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return protocol.HealthSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.HealthSnapshot{}, &unexpectedStatusError{statusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBodyBytes))
	if err != nil {
		return protocol.HealthSnapshot{}, fmt.Errorf("failed to read health response: %w", err)
	}

	snapshot, err := protocol.ParseHealthSnapshot(record.Addr, body, p.now())
	if err != nil {
		return protocol.HealthSnapshot{}, err
	}
	if snapshot.Version.IsZero() {
		snapshot.Version = record.Version
	}
	return snapshot, nil
}

type unexpectedStatusError struct {
	statusCode int
}

func (e *unexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected health check status code %d", e.statusCode)
}

// categorizeProbeError categorizes a probe error for metrics.
func categorizeProbeError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *unexpectedStatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, protocol.ErrMalformedHealth):
		return "malformed"
	case errors.As(err, &statusErr):
		return "unexpected_status"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &netErr):
		return "connection_error"
	default:
		return "unknown"
	}
}
