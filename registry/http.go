package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pokt-network/discovery/protocol"
)

const defaultHTTPRegistryTimeout = 10 * time.Second

// Compile-time check that HTTPRegistry implements Registry.
var _ Registry = (*HTTPRegistry)(nil)

// HTTPRegistry reads the candidate list from a JSON document served over HTTP.
//
// Accepted shapes:
//
//	[{"endpoint": "https://dn1.example.com", "version": "0.3.42"}, ...]
//	{"data": [ ...same items... ]}
//
// "address" is accepted as an alias of "endpoint". Items that cannot be
// parsed are skipped; the registry is an external collaborator and one bad
// entry must not hide the others.
type HTTPRegistry struct {
	url    string
	client *http.Client
}

func NewHTTPRegistry(url string, client *http.Client) *HTTPRegistry {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPRegistryTimeout}
	}
	return &HTTPRegistry{url: url, client: client}
}

func (h *HTTPRegistry) Endpoints(ctx context.Context) (protocol.EndpointRecords, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registry %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry %s returned status %d", h.url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	return parseRegistryListing(body)
}

func parseRegistryListing(body []byte) (protocol.EndpointRecords, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("registry listing is not valid JSON")
	}

	items := gjson.ParseBytes(body)
	if !items.IsArray() {
		items = items.Get("data")
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("registry listing has no endpoint array")
	}

	var records protocol.EndpointRecords
	seen := make(map[protocol.EndpointAddr]struct{})
	items.ForEach(func(_, item gjson.Result) bool {
		address := item.Get("endpoint").String()
		if address == "" {
			address = item.Get("address").String()
		}
		rec, err := newRecord(address, item.Get("version").String())
		if err != nil {
			return true
		}
		if _, dup := seen[rec.Addr]; dup {
			return true
		}
		seen[rec.Addr] = struct{}{}
		records = append(records, rec)
		return true
	})

	if len(records) == 0 {
		return nil, ErrEmptyRegistry
	}
	return records, nil
}
