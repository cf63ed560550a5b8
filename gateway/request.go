package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pokt-network/discovery/protocol"
)

// Headers set on every dispatched request.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
)

// RequestSpec describes one logical request against a discovery node.
// The node address is supplied per attempt by the selector.
type RequestSpec struct {
	// Method defaults to GET.
	Method string

	// Path is joined to the node address, e.g. "v1/users".
	Path string

	// URLParams are escaped and appended to Path as further segments.
	URLParams []string

	// Query values that are nil, or nil pointers, are dropped.
	// Slices produce repeated keys.
	Query map[string]any

	Headers http.Header

	// Body is sent as JSON for non-GET methods.
	Body []byte

	// Timeout overrides the executor's request timeout for each attempt.
	Timeout time.Duration

	// NoRetry makes the first classified failure terminal.
	NoRetry bool
}

func (s RequestSpec) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return s.Method
}

// HeaderFunc produces auth or signing headers for a request.
// It is called once per logical request.
type HeaderFunc func(ctx context.Context, spec RequestSpec) (http.Header, error)

// UserIDFunc returns the current user's ID, or "" when there is none.
type UserIDFunc func(ctx context.Context) string

// buildURL joins addr with the spec's path, URL params and sanitized query.
func buildURL(addr protocol.EndpointAddr, spec RequestSpec) (*url.URL, error) {
	u, err := url.Parse(string(addr))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint address %q: %w", addr, err)
	}

	segments := make([]string, 0, len(spec.URLParams)+1)
	if spec.Path != "" {
		segments = append(segments, spec.Path)
	}
	for _, param := range spec.URLParams {
		segments = append(segments, url.PathEscape(param))
	}
	if len(segments) > 0 {
		u = u.JoinPath(segments...)
	}

	u.RawQuery = encodeQuery(spec.Query)
	return u, nil
}

// encodeQuery drops nil values and encodes the rest, sorted by key.
func encodeQuery(params map[string]any) string {
	values := url.Values{}
	for key, raw := range params {
		for _, v := range queryValues(raw) {
			values.Add(key, v)
		}
	}
	return values.Encode()
}

func queryValues(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case *string:
		if v == nil {
			return nil
		}
		return []string{*v}
	case []string:
		return v
	case bool:
		return []string{strconv.FormatBool(v)}
	case *bool:
		if v == nil {
			return nil
		}
		return []string{strconv.FormatBool(*v)}
	case int:
		return []string{strconv.Itoa(v)}
	case *int:
		if v == nil {
			return nil
		}
		return []string{strconv.Itoa(*v)}
	case int64:
		return []string{strconv.FormatInt(v, 10)}
	case []int:
		out := make([]string, 0, len(v))
		for _, n := range v {
			out = append(out, strconv.Itoa(n))
		}
		return out
	case fmt.Stringer:
		return []string{v.String()}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// newHTTPRequest builds the request for one attempt against addr.
// extra holds headers resolved once per logical request.
func newHTTPRequest(ctx context.Context, addr protocol.EndpointAddr, spec RequestSpec, extra http.Header) (*http.Request, error) {
	u, err := buildURL(addr, spec)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	method := spec.method()
	if len(spec.Body) > 0 && method != http.MethodGet {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	copyHeaders(req.Header, spec.Headers)
	copyHeaders(req.Header, extra)

	return req, nil
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
