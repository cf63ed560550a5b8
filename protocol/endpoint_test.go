package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpointAddr(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    EndpointAddr
		wantErr bool
	}{
		{name: "trailing slash trimmed", raw: "https://DN1.Example.com/", want: "https://dn1.example.com"},
		{name: "query dropped", raw: "https://dn1.example.com/v1?x=1", want: "https://dn1.example.com/v1"},
		{name: "port kept", raw: "http://localhost:5000", want: "http://localhost:5000"},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "unsupported scheme", raw: "ftp://dn1.example.com", wantErr: true},
		{name: "missing host", raw: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEndpointAddr(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	v1 := MustParseVersion("0.3.41")
	v2 := MustParseVersion("v0.3.42")
	v3 := MustParseVersion("0.4.0")

	require.Equal(t, -1, v1.Compare(v2))
	require.Equal(t, 1, v3.Compare(v2))
	require.Equal(t, 0, v2.Compare(MustParseVersion("0.3.42")))
	require.Equal(t, -1, Version{}.Compare(v1))
	require.Equal(t, 0, Version{}.Compare(Version{}))

	require.True(t, v1.SameRelease(v2))
	require.False(t, v2.SameRelease(v3))
	require.False(t, Version{}.SameRelease(v1))

	require.Equal(t, uint64(42), v2.Patch())
	require.True(t, Version{}.IsZero())

	_, err := ParseVersion("abc")
	require.Error(t, err)
}

func TestRequestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RequestError{
		Kind:     ErrFatal,
		Endpoint: "https://dn1.example.com",
		Attempts: 4,
		Cause:    cause,
	}

	require.ErrorIs(t, err, ErrFatal)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Equal(t, "discovery node request failed [endpoint: https://dn1.example.com] [attempts: 4]: connection refused", err.Error())
}
