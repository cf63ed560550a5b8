package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pokt-network/discovery/gateway"
)

func newSelectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "Run a selection round and print the chosen node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, _, _, err := newClient(ctx, *configPath)
			if err != nil {
				return err
			}
			defer c.Close()

			sel, err := c.Select(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"endpoint":      sel.Addr(),
				"version":       sel.Endpoint.Version.String(),
				"primary_lag":   sel.Health.PrimaryLag(),
				"secondary_lag": sel.Health.SecondaryLag(),
				"regressed":     sel.Regressed,
				"restored":      sel.Restored,
				"expires_at":    sel.ExpiresAt(),
			})
		},
	}
}

type getFlags struct {
	method   string
	params   []string
	segments []string
	body     string
	timeout  time.Duration
	noRetry  bool
}

func newGetCmd(configPath *string) *cobra.Command {
	flags := getFlags{}

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send a request to the selected node and print the response data",
		Example: `  discovery get v1/users --segment handle --segment dj --param limit=5
  discovery get v1/tracks/trending --no-retry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := flags.requestSpec(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, _, _, err := newClient(ctx, *configPath)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Do(ctx, spec)
			if err != nil {
				return err
			}

			var out any
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				// Not JSON; print as is.
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&flags.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&flags.params, "param", "p", nil, "query parameter as key=value, repeatable")
	cmd.Flags().StringArrayVar(&flags.segments, "segment", nil, "path segment appended to the path, repeatable")
	cmd.Flags().StringVarP(&flags.body, "data", "d", "", "request body for non-GET requests")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-attempt timeout override")
	cmd.Flags().BoolVar(&flags.noRetry, "no-retry", false, "send a single attempt without retries")
	return cmd
}

// requestSpec turns the command line into a request.
// Repeated keys become a repeated query parameter.
func (f getFlags) requestSpec(path string) (gateway.RequestSpec, error) {
	query := make(map[string]any, len(f.params))
	for _, p := range f.params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return gateway.RequestSpec{}, fmt.Errorf("invalid --param %q: want key=value", p)
		}
		switch existing := query[key].(type) {
		case nil:
			query[key] = value
		case string:
			query[key] = []string{existing, value}
		case []string:
			query[key] = append(existing, value)
		}
	}

	spec := gateway.RequestSpec{
		Method:    strings.ToUpper(f.method),
		Path:      path,
		URLParams: f.segments,
		Query:     query,
		Timeout:   f.timeout,
		NoRetry:   f.noRetry,
	}
	if f.body != "" {
		spec.Body = []byte(f.body)
	}
	return spec, nil
}
