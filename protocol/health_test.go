package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ParseHealthSnapshot
// =============================================================================

func TestParseHealthSnapshot(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	addr := EndpointAddr("https://dn1.example.com")

	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantPrimary int64
		wantSecond  int64
		wantHasSec  bool
		wantVersion string
	}{
		{
			name:        "top level fields with nested version",
			body:        `{"data":{"version":"0.3.42"},"latest_chain_block":120,"latest_indexed_block":118}`,
			wantPrimary: 2,
			wantVersion: "0.3.42",
		},
		{
			name:        "fields nested under data",
			body:        `{"data":{"version":"0.3.40","latest_chain_block":200,"latest_indexed_block":180,"latest_chain_slot_plays":50,"latest_indexed_slot_plays":45}}`,
			wantPrimary: 20,
			wantSecond:  5,
			wantHasSec:  true,
			wantVersion: "0.3.40",
		},
		{
			name:        "numeric strings are accepted",
			body:        `{"latest_chain_block":"10","latest_indexed_block":"7"}`,
			wantPrimary: 3,
		},
		{
			name:        "indexed ahead of chain clamps lag to zero",
			body:        `{"latest_chain_block":10,"latest_indexed_block":12}`,
			wantPrimary: 0,
		},
		{
			name:    "invalid json",
			body:    `{"latest_chain_block":`,
			wantErr: true,
		},
		{
			name:    "missing primary axis",
			body:    `{"data":{"version":"0.3.42"}}`,
			wantErr: true,
		},
		{
			name:    "half of the secondary axis",
			body:    `{"latest_chain_block":10,"latest_indexed_block":10,"latest_chain_slot_plays":4}`,
			wantErr: true,
		},
		{
			name:    "non numeric block",
			body:    `{"latest_chain_block":true,"latest_indexed_block":10}`,
			wantErr: true,
		},
		{
			name:    "unparseable version",
			body:    `{"version":"not-a-version","latest_chain_block":10,"latest_indexed_block":10}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot, err := ParseHealthSnapshot(addr, []byte(tt.body), now)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrMalformedHealth))
				return
			}

			require.NoError(t, err)
			require.Equal(t, addr, snapshot.Addr)
			require.Equal(t, now, snapshot.RespondedAt)
			require.Equal(t, tt.wantPrimary, snapshot.PrimaryLag())
			require.Equal(t, tt.wantHasSec, snapshot.HasSecondary)
			require.Equal(t, tt.wantSecond, snapshot.SecondaryLag())
			require.Equal(t, tt.wantVersion, snapshot.Version.String())
		})
	}
}

// =============================================================================
// FreshnessThresholds
// =============================================================================

func TestFreshnessThresholds_IsStale(t *testing.T) {
	snapshot := func(primaryLag, secondaryLag int64, hasSecondary bool) HealthSnapshot {
		return HealthSnapshot{
			IndexedPrimary:     100,
			CanonicalPrimary:   100 + primaryLag,
			HasPrimary:         true,
			IndexedSecondary:   50,
			CanonicalSecondary: 50 + secondaryLag,
			HasSecondary:       hasSecondary,
		}
	}

	tests := []struct {
		name       string
		thresholds FreshnessThresholds
		snapshot   HealthSnapshot
		wantStale  bool
	}{
		{
			name:       "within primary threshold",
			thresholds: FreshnessThresholds{PrimaryLag: 15},
			snapshot:   snapshot(15, 0, false),
			wantStale:  false,
		},
		{
			name:       "past primary threshold",
			thresholds: FreshnessThresholds{PrimaryLag: 15},
			snapshot:   snapshot(16, 0, false),
			wantStale:  true,
		},
		{
			name:       "secondary axis disabled",
			thresholds: FreshnessThresholds{PrimaryLag: 15},
			snapshot:   snapshot(0, 1000, true),
			wantStale:  false,
		},
		{
			name:       "past secondary threshold",
			thresholds: FreshnessThresholds{PrimaryLag: 15, SecondaryLag: 10},
			snapshot:   snapshot(0, 11, true),
			wantStale:  true,
		},
		{
			name:       "secondary threshold set but not reported",
			thresholds: FreshnessThresholds{PrimaryLag: 15, SecondaryLag: 10},
			snapshot:   snapshot(0, 11, false),
			wantStale:  false,
		},
		{
			name:       "no freshness figures at all",
			thresholds: FreshnessThresholds{PrimaryLag: 15, SecondaryLag: 10},
			snapshot:   HealthSnapshot{},
			wantStale:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantStale, tt.thresholds.IsStale(tt.snapshot))
		})
	}
}

// =============================================================================
// ParseEnvelope
// =============================================================================

func TestParseEnvelope(t *testing.T) {
	now := time.Now()
	addr := EndpointAddr("https://dn1.example.com")

	t.Run("unwraps data and reads freshness", func(t *testing.T) {
		body := []byte(`{"data":[{"id":1}],"latest_chain_block":30,"latest_indexed_block":10}`)
		data, freshness := ParseEnvelope(addr, body, now)
		require.JSONEq(t, `[{"id":1}]`, string(data))
		require.True(t, freshness.HasPrimary)
		require.Equal(t, int64(20), freshness.PrimaryLag())
	})

	t.Run("passes through bodies without envelope", func(t *testing.T) {
		body := []byte(`{"id":1}`)
		data, freshness := ParseEnvelope(addr, body, now)
		require.JSONEq(t, `{"id":1}`, string(data))
		require.False(t, freshness.HasPrimary)
	})

	t.Run("passes through non json bodies", func(t *testing.T) {
		body := []byte(`plain text`)
		data, freshness := ParseEnvelope(addr, body, now)
		require.Equal(t, "plain text", string(data))
		require.False(t, freshness.HasPrimary)
		require.Equal(t, addr, freshness.Addr)
	})
}
