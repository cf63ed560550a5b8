package protocol

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a declared or reported discovery node version.
// The zero value means "unknown" and sorts below every parsed version.
type Version struct {
	v *semver.Version
}

// ParseVersion parses a semantic version, tolerating a leading "v".
// An empty string yields the zero Version.
func ParseVersion(raw string) (Version, error) {
	if raw == "" {
		return Version{}, nil
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

// MustParseVersion is ParseVersion for constants and tests.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) IsZero() bool {
	return v.v == nil
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Patch returns the patch component, or 0 for an unknown version.
func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

// Compare returns -1, 0 or 1. Unknown versions compare lowest.
func (v Version) Compare(other Version) int {
	switch {
	case v.v == nil && other.v == nil:
		return 0
	case v.v == nil:
		return -1
	case other.v == nil:
		return 1
	}
	return v.v.Compare(other.v)
}

// SameRelease reports whether both versions share major and minor.
// Nodes on the same release are interchangeable; the patch only breaks ties.
func (v Version) SameRelease(other Version) bool {
	if v.v == nil || other.v == nil {
		return false
	}
	return v.v.Major() == other.v.Major() && v.v.Minor() == other.v.Minor()
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
