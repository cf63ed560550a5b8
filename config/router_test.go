package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRouterConfig_hydrateRouterDefaults(t *testing.T) {
	withPort := defaultRouterConfig()
	withPort.Port = 8080

	withReadiness := defaultRouterConfig()
	withReadiness.ReadinessTimeout = 2 * time.Second

	tests := []struct {
		name    string
		cfg     RouterConfig
		want    RouterConfig
		wantErr bool
	}{
		{
			name: "should set all defaults",
			cfg:  RouterConfig{},
			want: defaultRouterConfig(),
		},
		{
			name: "should keep an explicit port",
			cfg:  RouterConfig{Port: 8080},
			want: withPort,
		},
		{
			name: "should keep an explicit readiness timeout",
			cfg:  RouterConfig{ReadinessTimeout: 2 * time.Second},
			want: withReadiness,
		},
		{
			name: "should reject a readiness timeout longer than the write timeout",
			cfg: RouterConfig{
				WriteTimeout:     5 * time.Second,
				ReadinessTimeout: 10 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "should reject a readiness timeout equal to the write timeout",
			cfg: RouterConfig{
				WriteTimeout:     5 * time.Second,
				ReadinessTimeout: 5 * time.Second,
			},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)
			err := test.cfg.hydrateRouterDefaults()
			if test.wantErr {
				c.Error(err)
				return
			}
			c.NoError(err)
			c.Equal(test.want, test.cfg)
		})
	}
}
