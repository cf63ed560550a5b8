package selector

import (
	"github.com/pokt-network/discovery/protocol"
)

// AddrSet is a set of normalized endpoint addresses.
type AddrSet map[protocol.EndpointAddr]struct{}

// NewAddrSet normalizes raw addresses into a set.
func NewAddrSet(raw []string) (AddrSet, error) {
	set := make(AddrSet, len(raw))
	for _, r := range raw {
		addr, err := protocol.NormalizeEndpointAddr(r)
		if err != nil {
			return nil, err
		}
		set[addr] = struct{}{}
	}
	return set, nil
}

func (s AddrSet) Contains(addr protocol.EndpointAddr) bool {
	_, ok := s[addr]
	return ok
}

// FilterCandidates applies allow and deny sets to a registry snapshot.
//
// Records are annotated with Whitelisted/Blacklisted, then:
//   - blacklisted records are dropped
//   - when whitelist is non-empty, records not in it are dropped
//
// The input is not modified.
func FilterCandidates(records protocol.EndpointRecords, whitelist, blacklist AddrSet) protocol.EndpointRecords {
	kept := make(protocol.EndpointRecords, 0, len(records))
	for _, rec := range records {
		rec.Whitelisted = rec.Whitelisted || whitelist.Contains(rec.Addr)
		rec.Blacklisted = rec.Blacklisted || blacklist.Contains(rec.Addr)

		if rec.Blacklisted {
			continue
		}
		if len(whitelist) > 0 && !rec.Whitelisted {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// filterMinimumVersion drops records declaring a version below minimum.
func filterMinimumVersion(records protocol.EndpointRecords, minimum protocol.Version) protocol.EndpointRecords {
	if minimum.IsZero() {
		return records
	}
	kept := records[:0:0]
	for _, rec := range records {
		if !rec.Version.IsZero() && rec.Version.Compare(minimum) < 0 {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}
