package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/pokt-network/discovery/protocol"
)

// =============================================================================
// StaticRegistry
// =============================================================================

func TestStaticRegistry(t *testing.T) {
	t.Run("normalizes and de-duplicates", func(t *testing.T) {
		reg, err := NewStaticRegistry([]EndpointConfig{
			{Address: "https://dn1.example.com/", Version: "0.3.42"},
			{Address: "https://DN1.example.com", Version: "0.3.42"},
			{Address: "https://dn2.example.com"},
		})
		require.NoError(t, err)

		records, err := reg.Endpoints(context.Background())
		require.NoError(t, err)
		require.Equal(t, protocol.EndpointAddrList{"https://dn1.example.com", "https://dn2.example.com"}, records.Addrs())
		require.Equal(t, "0.3.42", records[0].Version.String())
		require.True(t, records[1].Version.IsZero())
	})

	t.Run("rejects invalid address", func(t *testing.T) {
		_, err := NewStaticRegistry([]EndpointConfig{{Address: "dn1"}})
		require.Error(t, err)
	})

	t.Run("rejects invalid version", func(t *testing.T) {
		_, err := NewStaticRegistry([]EndpointConfig{{Address: "https://dn1.example.com", Version: "x.y"}})
		require.Error(t, err)
	})

	t.Run("empty registry", func(t *testing.T) {
		reg, err := NewStaticRegistry(nil)
		require.NoError(t, err)
		_, err = reg.Endpoints(context.Background())
		require.ErrorIs(t, err, ErrEmptyRegistry)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		reg, err := NewStaticRegistry([]EndpointConfig{{Address: "https://dn1.example.com"}})
		require.NoError(t, err)
		records, _ := reg.Endpoints(context.Background())
		records[0].Addr = "mutated"
		again, _ := reg.Endpoints(context.Background())
		require.Equal(t, protocol.EndpointAddr("https://dn1.example.com"), again[0].Addr)
	})
}

// =============================================================================
// HTTPRegistry
// =============================================================================

func TestHTTPRegistry(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantAddrs protocol.EndpointAddrList
		wantErr   bool
	}{
		{
			name:      "bare array",
			status:    http.StatusOK,
			body:      `[{"endpoint":"https://dn1.example.com","version":"0.3.42"},{"address":"https://dn2.example.com"}]`,
			wantAddrs: protocol.EndpointAddrList{"https://dn1.example.com", "https://dn2.example.com"},
		},
		{
			name:      "wrapped in data and skipping bad items",
			status:    http.StatusOK,
			body:      `{"data":[{"endpoint":"not a url"},{"endpoint":"https://dn3.example.com","version":"bad"},{"endpoint":"https://dn4.example.com"}]}`,
			wantAddrs: protocol.EndpointAddrList{"https://dn4.example.com"},
		},
		{
			name:    "non 200",
			status:  http.StatusInternalServerError,
			body:    `[]`,
			wantErr: true,
		},
		{
			name:    "no usable items",
			status:  http.StatusOK,
			body:    `[]`,
			wantErr: true,
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			records, err := NewHTTPRegistry(srv.URL, nil).Endpoints(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantAddrs, records.Addrs())
		})
	}
}

// =============================================================================
// CachingRegistry
// =============================================================================

type countingRegistry struct {
	calls   atomic.Int32
	err     error
	records protocol.EndpointRecords
	delay   time.Duration
}

func (c *countingRegistry) Endpoints(ctx context.Context) (protocol.EndpointRecords, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.records, c.err
}

func TestCachingRegistry(t *testing.T) {
	logger := polyzero.NewLogger()
	records := protocol.EndpointRecords{{Addr: "https://dn1.example.com"}}

	t.Run("reuses snapshot", func(t *testing.T) {
		upstream := &countingRegistry{records: records}
		reg := NewCachingRegistry(logger, upstream, time.Minute)

		for range 3 {
			got, err := reg.Endpoints(context.Background())
			require.NoError(t, err)
			require.Equal(t, records, got)
		}
		require.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("coalesces concurrent misses", func(t *testing.T) {
		upstream := &countingRegistry{records: records, delay: 50 * time.Millisecond}
		reg := NewCachingRegistry(logger, upstream, time.Minute)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.Endpoints(context.Background())
				require.NoError(t, err)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("invalidate forces refetch", func(t *testing.T) {
		upstream := &countingRegistry{records: records}
		reg := NewCachingRegistry(logger, upstream, time.Minute)

		_, err := reg.Endpoints(context.Background())
		require.NoError(t, err)
		reg.Invalidate()
		_, err = reg.Endpoints(context.Background())
		require.NoError(t, err)
		require.Equal(t, int32(2), upstream.calls.Load())
	})

	t.Run("upstream errors are not cached", func(t *testing.T) {
		upstream := &countingRegistry{err: errors.New("rpc down")}
		reg := NewCachingRegistry(logger, upstream, time.Minute)

		_, err := reg.Endpoints(context.Background())
		require.Error(t, err)

		upstream.err = nil
		upstream.records = records
		got, err := reg.Endpoints(context.Background())
		require.NoError(t, err)
		require.Equal(t, records, got)
	})

	t.Run("empty upstream snapshot", func(t *testing.T) {
		upstream := &countingRegistry{}
		reg := NewCachingRegistry(logger, upstream, time.Minute)
		_, err := reg.Endpoints(context.Background())
		require.ErrorIs(t, err, ErrEmptyRegistry)
	})
}
