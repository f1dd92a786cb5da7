// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Masterminds/semver"
)

// versionRx accepts only full major.minor.patch versions, with optional
// pre-release and build metadata. The underlying semver library is more
// lenient (it infers missing components), which would let malformed
// manifest entries slip through.
var versionRx = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// A Version is a semantic version triple with optional pre-release and
// build metadata, totally ordered by semver precedence.
//
// The zero Version is not valid; obtain one via ParseVersion.
type Version struct {
	sv *semver.Version
}

// ParseVersion parses a version string of the form major.minor.patch,
// with optional -prerelease and +metadata suffixes.
func ParseVersion(s string) (Version, error) {
	if !versionRx.MatchString(s) {
		return Version{}, &VersionParseError{Input: s}
	}
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, &VersionParseError{Input: s, cause: err}
	}
	return Version{sv: sv}, nil
}

// MustParseVersion is ParseVersion, panicking on error. For tests and
// compile-time constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// VersionParseError is returned for syntactically invalid version
// strings.
type VersionParseError struct {
	Input string
	cause error
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("%q is not a valid semantic version", e.Input)
}

// IsZero reports whether v is the (invalid) zero Version.
func (v Version) IsZero() bool { return v.sv == nil }

// Major returns the major component.
func (v Version) Major() uint64 { return uint64(v.sv.Major()) }

// Minor returns the minor component.
func (v Version) Minor() uint64 { return uint64(v.sv.Minor()) }

// Patch returns the patch component.
func (v Version) Patch() uint64 { return uint64(v.sv.Patch()) }

// Prerelease returns the pre-release portion, or "" if none.
func (v Version) Prerelease() string { return v.sv.Prerelease() }

// Metadata returns the build metadata portion, or "" if none.
func (v Version) Metadata() string { return v.sv.Metadata() }

// String renders the version in normalized form. Leading zeros in the
// numeric components are not preserved; everything else round-trips.
func (v Version) String() string {
	if v.sv == nil {
		return "<invalid>"
	}
	return v.sv.String()
}

// Compare returns -1, 0, or 1 per semver precedence. Pre-release
// versions order below their release counterpart; build metadata is
// ignored.
func (v Version) Compare(o Version) int { return v.sv.Compare(o.sv) }

// LessThan reports whether v precedes o.
func (v Version) LessThan(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o have equal precedence.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// sameTriple reports whether two versions share (major, minor, patch),
// disregarding pre-release and metadata.
func sameTriple(a, b Version) bool {
	return a.Major() == b.Major() && a.Minor() == b.Minor() && a.Patch() == b.Patch()
}

// nextMajor returns the smallest version strictly above every release
// in v's major series.
func nextMajor(v Version) Version {
	n := v.sv.IncMajor()
	return Version{sv: &n}
}

// nextMinor returns the smallest version strictly above every release
// in v's (major, minor) series.
func nextMinor(v Version) Version {
	n := v.sv.IncMinor()
	return Version{sv: &n}
}

// SortVersions orders versions in place, ascending by precedence, with
// the full original string as a tiebreak so sorting is deterministic
// even across metadata-only differences.
func SortVersions(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool {
		if c := vs[i].Compare(vs[j]); c != 0 {
			return c < 0
		}
		return vs[i].sv.Original() < vs[j].sv.Original()
	})
}
