package protocol

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// Response is a successful reply from a discovery node.
type Response struct {
	// Bytes is the raw body as returned by the node.
	Bytes []byte
	// HTTPStatusCode is the HTTP status returned by the node.
	HTTPStatusCode int

	// EndpointAddr is the address of the node which returned the response.
	EndpointAddr

	// Data is the "data" member of the envelope, or the whole body if the
	// node did not wrap its payload.
	Data json.RawMessage

	// Freshness holds the lag figures embedded in the envelope, if any.
	Freshness HealthSnapshot

	// Regressed is set when the serving endpoint was picked in regressed mode.
	Regressed bool

	RequestID string
	Attempts  int
	Latency   time.Duration
}

// ParseEnvelope extracts the payload and freshness figures from a response body.
//
// Unlike ParseHealthSnapshot it is lenient: missing or unparseable lag fields
// mean "not stale", and non-JSON bodies are passed through untouched.
func ParseEnvelope(addr EndpointAddr, body []byte, respondedAt time.Time) (json.RawMessage, HealthSnapshot) {
	freshness := HealthSnapshot{Addr: addr, RespondedAt: respondedAt}
	if !gjson.ValidBytes(body) {
		return body, freshness
	}

	root := gjson.ParseBytes(body)
	if parsed, err := readFreshness(root); err == nil {
		parsed.Addr = addr
		parsed.RespondedAt = respondedAt
		freshness = parsed
	}

	data := root.Get(fieldData)
	if !data.Exists() {
		return body, freshness
	}
	return json.RawMessage(data.Raw), freshness
}
