package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointAddr uniquely identifies a discovery node.
// It is the node's base URL, normalized by NormalizeEndpointAddr.
type EndpointAddr string

type EndpointAddrList []EndpointAddr

func (e EndpointAddr) String() string {
	return string(e)
}

func (e EndpointAddrList) String() string {
	addrs := make([]string, len(e))
	for i, addr := range e {
		addrs[i] = string(addr)
	}
	return strings.Join(addrs, ", ")
}

// NormalizeEndpointAddr validates a raw node URL and returns its canonical form:
// lower-cased scheme and host, no trailing slash, no query or fragment.
func NormalizeEndpointAddr(raw string) (EndpointAddr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty endpoint address")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint address %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint address %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint address %q: missing host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return EndpointAddr(u.String()), nil
}

// EndpointRecord describes one candidate discovery node as reported by the registry.
// Records are immutable for the duration of a selection round.
type EndpointRecord struct {
	// Addr is the identity of the record.
	Addr EndpointAddr `json:"address" yaml:"address"`

	// Version is the version declared on the registry, not the one reported by the node.
	Version Version `json:"version" yaml:"version"`

	Whitelisted bool `json:"is_whitelisted,omitempty" yaml:"-"`
	Blacklisted bool `json:"is_blacklisted,omitempty" yaml:"-"`
}

// EndpointRecords is a registry snapshot.
type EndpointRecords []EndpointRecord

// Addrs returns the addresses of the records, in order.
func (r EndpointRecords) Addrs() EndpointAddrList {
	addrs := make(EndpointAddrList, len(r))
	for i, rec := range r {
		addrs[i] = rec.Addr
	}
	return addrs
}

// Find returns the record with the given address.
func (r EndpointRecords) Find(addr EndpointAddr) (EndpointRecord, bool) {
	for _, rec := range r {
		if rec.Addr == addr {
			return rec, true
		}
	}
	return EndpointRecord{}, false
}
