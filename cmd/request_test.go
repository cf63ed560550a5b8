package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pokt-network/discovery/gateway"
)

func Test_getFlags_requestSpec(t *testing.T) {
	tests := []struct {
		name     string
		flags    getFlags
		path     string
		expected gateway.RequestSpec
		wantErr  bool
	}{
		{
			name:  "defaults to a bare GET",
			flags: getFlags{method: "get"},
			path:  "v1/tracks",
			expected: gateway.RequestSpec{
				Method: http.MethodGet,
				Path:   "v1/tracks",
				Query:  map[string]any{},
			},
		},
		{
			name: "repeated params become a list",
			flags: getFlags{
				method:   http.MethodGet,
				params:   []string{"id=a", "id=b", "id=c", "limit=5"},
				segments: []string{"dj"},
				timeout:  time.Second,
				noRetry:  true,
			},
			path: "v1/users/handle",
			expected: gateway.RequestSpec{
				Method:    http.MethodGet,
				Path:      "v1/users/handle",
				URLParams: []string{"dj"},
				Query:     map[string]any{"id": []string{"a", "b", "c"}, "limit": "5"},
				Timeout:   time.Second,
				NoRetry:   true,
			},
		},
		{
			name:  "body is attached",
			flags: getFlags{method: "post", body: `{"a":1}`},
			path:  "v1/notifications",
			expected: gateway.RequestSpec{
				Method: http.MethodPost,
				Path:   "v1/notifications",
				Query:  map[string]any{},
				Body:   []byte(`{"a":1}`),
			},
		},
		{
			name:    "param without value",
			flags:   getFlags{method: http.MethodGet, params: []string{"limit"}},
			path:    "v1/tracks",
			wantErr: true,
		},
		{
			name:    "param without key",
			flags:   getFlags{method: http.MethodGet, params: []string{"=5"}},
			path:    "v1/tracks",
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.flags.requestSpec(test.path)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, got)
		})
	}
}

func Test_getConfigPath(t *testing.T) {
	path, err := getConfigPath("/etc/discovery.yaml")
	require.NoError(t, err)
	require.Equal(t, "/etc/discovery.yaml", path)

	path, err = getConfigPath("")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, filepath.FromSlash(defaultConfigPath)))
}

func Test_loadConfig_EnvFallback(t *testing.T) {
	t.Setenv("DISCOVERY_CONFIG", `
registry_config:
  endpoints:
    - address: "https://dn1.example.com"
`)

	config, source, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "env", source)
	require.Len(t, config.Registry.Endpoints, 1)
}

func Test_loadConfig_NoSource(t *testing.T) {
	t.Setenv("DISCOVERY_CONFIG", "")

	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func Test_GetCommand(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health_check" {
			_, _ = w.Write([]byte(`{"data":{},"latest_chain_block":100,"latest_indexed_block":100}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"path":"` + r.URL.Path + `","limit":"` + r.URL.Query().Get("limit") + `"},"latest_chain_block":100,"latest_indexed_block":100}`))
	}))
	t.Cleanup(node.Close)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
registry_config:
  endpoints:
    - address: "`+node.URL+`"
logger_config:
  level: "error"
`), 0644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"get", "v1/users", "--segment", "dj", "--param", "limit=5", "--config", configPath})
	require.NoError(t, cmd.Execute())

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, map[string]string{"path": "/v1/users/dj", "limit": "5"}, got)
}
