package protocol

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Envelope field names shared by health probes and regular responses.
const (
	fieldIndexedPrimary     = "latest_indexed_block"
	fieldCanonicalPrimary   = "latest_chain_block"
	fieldIndexedSecondary   = "latest_indexed_slot_plays"
	fieldCanonicalSecondary = "latest_chain_slot_plays"
	fieldVersion            = "version"
	fieldData               = "data"
)

// HealthSnapshot is the freshness state of one node at RespondedAt.
//
// Two axes are tracked independently:
//   - primary: indexed block vs chain block
//   - secondary: indexed plays slot vs chain plays slot
//
// Snapshots are ephemeral and never outlive the selection that produced them.
type HealthSnapshot struct {
	Addr    EndpointAddr
	Version Version

	IndexedPrimary   int64
	CanonicalPrimary int64
	HasPrimary       bool

	IndexedSecondary   int64
	CanonicalSecondary int64
	HasSecondary       bool

	RespondedAt time.Time
}

// PrimaryLag is how far the indexed block trails the chain block. Never negative.
func (h HealthSnapshot) PrimaryLag() int64 {
	if !h.HasPrimary {
		return 0
	}
	return max(h.CanonicalPrimary-h.IndexedPrimary, 0)
}

// SecondaryLag is how far the indexed plays slot trails the chain slot. Never negative.
func (h HealthSnapshot) SecondaryLag() int64 {
	if !h.HasSecondary {
		return 0
	}
	return max(h.CanonicalSecondary-h.IndexedSecondary, 0)
}

// FreshnessThresholds is the maximum tolerated lag per axis.
// A zero SecondaryLag disables the secondary axis.
type FreshnessThresholds struct {
	PrimaryLag   int64
	SecondaryLag int64
}

// PrimaryExceeded reports a primary lag strictly greater than the threshold.
func (t FreshnessThresholds) PrimaryExceeded(h HealthSnapshot) bool {
	return h.HasPrimary && h.PrimaryLag() > t.PrimaryLag
}

// SecondaryExceeded reports a secondary lag strictly greater than the threshold.
// Always false when the secondary axis is disabled or not reported.
func (t FreshnessThresholds) SecondaryExceeded(h HealthSnapshot) bool {
	if t.SecondaryLag <= 0 || !h.HasSecondary {
		return false
	}
	return h.SecondaryLag() > t.SecondaryLag
}

// IsStale reports whether either axis is past its threshold.
func (t FreshnessThresholds) IsStale(h HealthSnapshot) bool {
	return t.PrimaryExceeded(h) || t.SecondaryExceeded(h)
}

// ParseHealthSnapshot builds a snapshot from a node's health check body.
//
// Fields are read from the top level first and from "data" second.
// The primary axis is required; the secondary axis must be complete if present.
// Every failure wraps ErrMalformedHealth.
func ParseHealthSnapshot(addr EndpointAddr, body []byte, respondedAt time.Time) (HealthSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return HealthSnapshot{}, fmt.Errorf("%w: invalid JSON from %s", ErrMalformedHealth, addr)
	}
	root := gjson.ParseBytes(body)

	snapshot, err := readFreshness(root)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("%w: %s: %v", ErrMalformedHealth, addr, err)
	}
	if !snapshot.HasPrimary {
		return HealthSnapshot{}, fmt.Errorf("%w: %s: missing %s/%s", ErrMalformedHealth, addr, fieldIndexedPrimary, fieldCanonicalPrimary)
	}

	if raw := lookup(root, fieldVersion); raw.Exists() && raw.Type != gjson.Null {
		v, err := ParseVersion(raw.String())
		if err != nil {
			return HealthSnapshot{}, fmt.Errorf("%w: %s: %v", ErrMalformedHealth, addr, err)
		}
		snapshot.Version = v
	}

	snapshot.Addr = addr
	snapshot.RespondedAt = respondedAt
	return snapshot, nil
}

// readFreshness extracts both axes. A half-present axis is an error.
func readFreshness(root gjson.Result) (HealthSnapshot, error) {
	var h HealthSnapshot
	var err error

	h.IndexedPrimary, h.CanonicalPrimary, h.HasPrimary, err = readAxis(root, fieldIndexedPrimary, fieldCanonicalPrimary)
	if err != nil {
		return HealthSnapshot{}, err
	}
	h.IndexedSecondary, h.CanonicalSecondary, h.HasSecondary, err = readAxis(root, fieldIndexedSecondary, fieldCanonicalSecondary)
	if err != nil {
		return HealthSnapshot{}, err
	}
	return h, nil
}

func readAxis(root gjson.Result, indexedField, canonicalField string) (indexed, canonical int64, ok bool, err error) {
	indexedRes := lookup(root, indexedField)
	canonicalRes := lookup(root, canonicalField)

	if !present(indexedRes) && !present(canonicalRes) {
		return 0, 0, false, nil
	}
	if !present(indexedRes) || !present(canonicalRes) {
		return 0, 0, false, fmt.Errorf("incomplete axis %s/%s", indexedField, canonicalField)
	}

	if indexed, err = toInt(indexedRes); err != nil {
		return 0, 0, false, fmt.Errorf("%s: %w", indexedField, err)
	}
	if canonical, err = toInt(canonicalRes); err != nil {
		return 0, 0, false, fmt.Errorf("%s: %w", canonicalField, err)
	}
	return indexed, canonical, true, nil
}

func lookup(root gjson.Result, field string) gjson.Result {
	if res := root.Get(field); res.Exists() {
		return res
	}
	return root.Get(fieldData + "." + field)
}

func present(res gjson.Result) bool {
	return res.Exists() && res.Type != gjson.Null
}

// toInt accepts JSON numbers and numeric strings.
func toInt(res gjson.Result) (int64, error) {
	switch res.Type {
	case gjson.Number:
		return res.Int(), nil
	case gjson.String:
		return strconv.ParseInt(res.Str, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %s", res.Type)
	}
}
