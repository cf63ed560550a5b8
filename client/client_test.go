package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/pokt-network/discovery/config"
	"github.com/pokt-network/discovery/gateway"
	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/registry"
	"github.com/pokt-network/discovery/selector"
	"github.com/pokt-network/discovery/selector/storage"
)

const chainHead = 1000

// ===== Test Helpers =====

// fakeNode is a discovery node whose health check reports lag blocks behind.
type fakeNode struct {
	server *httptest.Server
	lag    atomic.Int64
	probes atomic.Int64

	// lastHeaders holds the headers of the latest /v1/tracks request.
	lastHeaders atomic.Value
}

func newFakeNode(t *testing.T, lag int64) *fakeNode {
	t.Helper()

	node := &fakeNode{}
	node.lag.Store(lag)

	mux := http.NewServeMux()
	mux.HandleFunc("/health_check", func(w http.ResponseWriter, _ *http.Request) {
		node.probes.Add(1)
		writeEnvelope(w, map[string]any{"version": "0.4.2"}, node.lag.Load())
	})
	mux.HandleFunc("/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{"id": r.PathValue("id"), "handle": "dj"}, node.lag.Load())
	})
	mux.HandleFunc("/v1/tracks", func(w http.ResponseWriter, r *http.Request) {
		node.lastHeaders.Store(r.Header.Clone())
		writeEnvelope(w, []map[string]any{{"id": "t1"}, {"id": "t2"}}, node.lag.Load())
	})
	mux.HandleFunc("/v1/text", func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, "not an object", node.lag.Load())
	})

	node.server = httptest.NewServer(mux)
	t.Cleanup(node.server.Close)
	return node
}

func (n *fakeNode) addr() protocol.EndpointAddr {
	return protocol.EndpointAddr(n.server.URL)
}

func writeEnvelope(w http.ResponseWriter, data any, lag int64) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":                 data,
		"latest_chain_block":   chainHead,
		"latest_indexed_block": chainHead - lag,
	})
}

func staticConfig(nodes ...*fakeNode) config.Config {
	endpoints := make([]registry.EndpointConfig, 0, len(nodes))
	for _, n := range nodes {
		endpoints = append(endpoints, registry.EndpointConfig{Address: string(n.addr())})
	}
	return config.Config{
		Registry: config.RegistryConfig{Endpoints: endpoints},
	}
}

func newTestClient(t *testing.T, cfg config.Config, opts ...Option) *Client {
	t.Helper()

	c, err := New(context.Background(), polyzero.NewLogger(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type user struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// ===== Requests =====

func Test_Client_DoUsesFreshestNode(t *testing.T) {
	fresh := newFakeNode(t, 1)
	lagging := newFakeNode(t, 10)
	c := newTestClient(t, staticConfig(lagging, fresh))

	require.False(t, c.IsReady())

	resp, err := c.Do(context.Background(), gateway.RequestSpec{Path: "v1/tracks"})
	require.NoError(t, err)
	require.Equal(t, fresh.addr(), resp.EndpointAddr)
	require.JSONEq(t, `[{"id":"t1"},{"id":"t2"}]`, string(resp.Data))

	require.True(t, c.IsReady())
	sel, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, fresh.addr(), sel.Addr())
}

func Test_Get_DecodesData(t *testing.T) {
	node := newFakeNode(t, 0)
	c := newTestClient(t, staticConfig(node))

	got, err := Get[user](context.Background(), c, gateway.RequestSpec{
		Path:      "v1/users",
		URLParams: []string{"u1"},
	})
	require.NoError(t, err)
	require.Equal(t, user{ID: "u1", Handle: "dj"}, got)
}

func Test_Get_DecodeError(t *testing.T) {
	node := newFakeNode(t, 0)
	c := newTestClient(t, staticConfig(node))

	_, err := Get[user](context.Background(), c, gateway.RequestSpec{Path: "v1/text"})
	require.ErrorIs(t, err, ErrDecodeData)
}

func Test_Get_PropagatesRequestError(t *testing.T) {
	node := newFakeNode(t, 0)
	c := newTestClient(t, staticConfig(node))

	sel, err := c.Select(context.Background())
	require.NoError(t, err)
	node.server.Close()

	_, err = Get[user](context.Background(), c, gateway.RequestSpec{Path: "v1/tracks", NoRetry: true})
	require.ErrorIs(t, err, protocol.ErrFatal)
	require.Equal(t, node.addr(), sel.Addr())
}

// ===== Wiring =====

func Test_New_HTTPRegistry(t *testing.T) {
	node := newFakeNode(t, 0)

	var listings atomic.Int64
	listing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		listings.Add(1)
		_ = json.NewEncoder(w).Encode([]map[string]string{{"endpoint": node.server.URL, "version": "0.4.2"}})
	}))
	t.Cleanup(listing.Close)

	c := newTestClient(t, config.Config{
		Registry: config.RegistryConfig{URL: listing.URL},
	})

	sel, err := c.Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, node.addr(), sel.Addr())

	c.ClearCached()
	_, err = c.Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), listings.Load(), "listing should be served from cache")
}

func Test_New_InvalidStaticRegistry(t *testing.T) {
	_, err := New(context.Background(), polyzero.NewLogger(), config.Config{
		Registry: config.RegistryConfig{Endpoints: []registry.EndpointConfig{{Address: "not a url"}}},
	})
	require.Error(t, err)
}

func Test_New_InvalidSelectionConfig(t *testing.T) {
	node := newFakeNode(t, 0)
	cfg := staticConfig(node)
	cfg.Selection.RegressedRatio = 2

	_, err := New(context.Background(), polyzero.NewLogger(), cfg)
	require.Error(t, err)
}

func Test_Client_MonitoringSinkAndQueue(t *testing.T) {
	node := newFakeNode(t, 0)
	cfg := staticConfig(node)
	cfg.Executor.MonitorQueue.Enabled = true

	var mu sync.Mutex
	var events []protocol.RequestEvent
	sink := gateway.MonitoringSinkFunc(func(_ context.Context, event protocol.RequestEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return nil
	})

	c, err := New(context.Background(), polyzero.NewLogger(), cfg, WithMonitoringSink(sink))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), gateway.RequestSpec{Path: "v1/tracks"})
	require.NoError(t, err)

	// Close drains the queue.
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.Equal(t, protocol.OutcomeSuccess, events[0].Outcome)
}

func Test_Client_HeaderAndUserIDFuncs(t *testing.T) {
	node := newFakeNode(t, 0)
	c := newTestClient(t, staticConfig(node),
		WithUserIDFunc(func(context.Context) string { return "u-42" }),
		WithHeaderFunc(func(context.Context, gateway.RequestSpec) (http.Header, error) {
			return http.Header{"Encoded-Data-Signature": []string{"0xsig"}}, nil
		}),
	)

	_, err := c.Do(context.Background(), gateway.RequestSpec{Path: "v1/tracks"})
	require.NoError(t, err)

	headers, ok := node.lastHeaders.Load().(http.Header)
	require.True(t, ok)
	require.Equal(t, "u-42", headers.Get(gateway.HeaderUserID))
	require.Equal(t, "0xsig", headers.Get("Encoded-Data-Signature"))
	require.NotEmpty(t, headers.Get(gateway.HeaderRequestID))
}

// ===== Selection Controls =====

func Test_Client_ThresholdSetters(t *testing.T) {
	node := newFakeNode(t, 30)
	c := newTestClient(t, staticConfig(node))

	// Lag 30 is past the default threshold, so the round is regressed.
	sel, err := c.Select(context.Background())
	require.NoError(t, err)
	require.True(t, sel.Regressed)

	c.SetUnhealthyPrimaryLag(50)
	c.SetUnhealthySecondaryLag(100)
	require.Equal(t, protocol.FreshnessThresholds{PrimaryLag: 50, SecondaryLag: 100}, c.Thresholds())

	c.ClearCached()
	sel, err = c.Select(context.Background())
	require.NoError(t, err)
	require.False(t, sel.Regressed)
}

func Test_Client_OnSelect(t *testing.T) {
	node := newFakeNode(t, 0)

	var picked atomic.Value
	c := newTestClient(t, staticConfig(node), WithOnSelect(func(s selector.Selection) {
		picked.Store(s.Addr())
	}))

	_, err := c.Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, node.addr(), picked.Load())
	require.Equal(t, int64(1), c.Rounds())
}

func Test_Client_SharedStoreSkipsProbing(t *testing.T) {
	a := newFakeNode(t, 0)
	b := newFakeNode(t, 5)
	cfg := staticConfig(a, b)
	store := storage.NewMemoryStore()

	first, err := New(context.Background(), polyzero.NewLogger(), cfg, WithStore(store))
	require.NoError(t, err)
	// Runs after the second client's cleanup; both share the store.
	t.Cleanup(func() { _ = first.Close() })
	sel, err := first.Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.addr(), sel.Addr())

	probesBefore := a.probes.Load() + b.probes.Load()

	second := newTestClient(t, cfg, WithStore(store))
	restored, err := second.Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.addr(), restored.Addr())
	require.True(t, restored.Restored)
	require.Equal(t, probesBefore, a.probes.Load()+b.probes.Load())

	require.Empty(t, second.Blacklisted())
	require.Zero(t, second.ExclusionCount())
	require.Equal(t, componentName, second.Name())
}
