// Package registry provides the candidate discovery node list.
//
// The registry is the source of truth for which nodes exist and which version
// each declares. It carries no freshness data; that is obtained by probing.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/pokt-network/discovery/protocol"
)

// ErrEmptyRegistry is returned when a registry yields no candidates.
var ErrEmptyRegistry = errors.New("registry returned no endpoints")

// Registry supplies the current candidate set on demand.
type Registry interface {
	Endpoints(ctx context.Context) (protocol.EndpointRecords, error)
}

// Compile-time check that StaticRegistry implements Registry.
var _ Registry = (*StaticRegistry)(nil)

// StaticRegistry serves a fixed list, typically from configuration.
type StaticRegistry struct {
	records protocol.EndpointRecords
}

// EndpointConfig is one statically configured node.
type EndpointConfig struct {
	Address string `yaml:"address"`
	Version string `yaml:"version"`
}

// NewStaticRegistry normalizes and de-duplicates the configured endpoints.
func NewStaticRegistry(endpoints []EndpointConfig) (*StaticRegistry, error) {
	records := make(protocol.EndpointRecords, 0, len(endpoints))
	seen := make(map[protocol.EndpointAddr]struct{}, len(endpoints))

	for _, ep := range endpoints {
		rec, err := newRecord(ep.Address, ep.Version)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[rec.Addr]; dup {
			continue
		}
		seen[rec.Addr] = struct{}{}
		records = append(records, rec)
	}

	return &StaticRegistry{records: records}, nil
}

// Endpoints returns a copy of the configured records.
func (s *StaticRegistry) Endpoints(_ context.Context) (protocol.EndpointRecords, error) {
	if len(s.records) == 0 {
		return nil, ErrEmptyRegistry
	}
	out := make(protocol.EndpointRecords, len(s.records))
	copy(out, s.records)
	return out, nil
}

func newRecord(address, version string) (protocol.EndpointRecord, error) {
	addr, err := protocol.NormalizeEndpointAddr(address)
	if err != nil {
		return protocol.EndpointRecord{}, err
	}
	v, err := protocol.ParseVersion(version)
	if err != nil {
		return protocol.EndpointRecord{}, fmt.Errorf("endpoint %s: %w", addr, err)
	}
	return protocol.EndpointRecord{Addr: addr, Version: v}, nil
}
