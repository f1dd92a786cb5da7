// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"fmt"
	"strings"
)

var (
	none = noneConstraint{}
	anyc = anyConstraint{}
)

// A Constraint provides structured limitations on the versions that are
// admissible for a package.
//
// The set of implementations is sealed; the resolver relies on being
// able to enumerate the possible variants.
type Constraint interface {
	fmt.Stringer
	// Matches indicates whether the provided Version is admitted.
	Matches(Version) bool
	// Intersect computes the intersection of the Constraint with the
	// provided Constraint. The result is the none constraint when the
	// admitted sets are disjoint by their bounds, or when an exact
	// version is rejected by the other side. A range intersection
	// emptied only by the caret/tilde pre-release rule is not reduced
	// to none; it is returned as a constraint that matches no version.
	Intersect(Constraint) Constraint
	_private()
}

func (exactConstraint) _private()     {}
func (caretConstraint) _private()     {}
func (tildeConstraint) _private()     {}
func (gteConstraint) _private()       {}
func (ltConstraint) _private()        {}
func (rangeConstraint) _private()     {}
func (gitRefConstraint) _private()    {}
func (localPathConstraint) _private() {}
func (anyConstraint) _private()       {}
func (noneConstraint) _private()      {}

// Satisfies reports whether v is admitted by c. Convenience inverse of
// Constraint.Matches for call sites that read better this way.
func Satisfies(c Constraint, v Version) bool { return c.Matches(v) }

// Intersect folds the provided constraints into their intersection.
// With no arguments the result is the unbounded constraint.
func Intersect(cs ...Constraint) Constraint {
	r := Constraint(anyc)
	for _, c := range cs {
		r = r.Intersect(c)
	}
	return r
}

// IsUnsatisfiable reports whether c admits no version at all.
func IsUnsatisfiable(c Constraint) bool {
	_, ok := c.(noneConstraint)
	return ok
}

// IsAny reports whether c is the unbounded constraint.
func IsAny(c Constraint) bool {
	_, ok := c.(anyConstraint)
	return ok
}

// Any returns a constraint admitting every version.
func Any() Constraint { return anyc }

// Exact returns a constraint admitting only versions of equal semver
// precedence to v.
func Exact(v Version) Constraint { return exactConstraint{v: v} }

// Caret returns the ^v constraint: at least v, below the next major
// release. When v's major component is zero, the ceiling is the next
// minor release instead.
func Caret(v Version) Constraint { return caretConstraint{v: v} }

// Tilde returns the ~v constraint: at least v, below the next minor
// release.
func Tilde(v Version) Constraint { return tildeConstraint{v: v} }

// GreaterOrEqual returns the >=v constraint.
func GreaterOrEqual(v Version) Constraint { return gteConstraint{v: v} }

// LessThan returns the <v constraint.
func LessThan(v Version) Constraint { return ltConstraint{v: v} }

// Range returns the half-open constraint >=lo <hi.
func Range(lo, hi Version) Constraint {
	return rangeConstraint{lo: lo, hasLo: true, hi: hi, hasHi: true}
}

// GitRef returns a constraint satisfied only by a package pinned to
// exactly the named ref. The ref is opaque to the version model.
func GitRef(ref string) Constraint { return gitRefConstraint{ref: ref} }

// LocalPath returns a constraint satisfied only by the package
// materialized from the given filesystem location.
func LocalPath(path string) Constraint { return localPathConstraint{path: path} }

// interval is the normal form shared by the semver-shaped variants: an
// optionally-bounded range. releaseOnly marks intervals descended from
// caret or tilde constraints, which admit a pre-release version only
// when one of the anchors shares its (major, minor, patch) triple.
// Open bounds and explicit ranges order pre-releases by plain semver
// precedence instead.
type interval struct {
	lo          Version
	hasLo       bool
	hi          Version
	hasHi       bool
	hiInc       bool // hi is inclusive (point intervals from Exact)
	releaseOnly bool
	anchors     []Version
}

type intervaler interface {
	interval() interval
}

func (iv interval) matches(v Version) bool {
	if v.Prerelease() != "" && iv.releaseOnly && !iv.anchored(v) {
		return false
	}
	if iv.hasLo && v.Compare(iv.lo) < 0 {
		return false
	}
	if iv.hasHi {
		c := v.Compare(iv.hi)
		if c > 0 || (c == 0 && !iv.hiInc) {
			return false
		}
	}
	return true
}

func (iv interval) anchored(v Version) bool {
	for _, a := range iv.anchors {
		if sameTriple(a, v) {
			return true
		}
	}
	return false
}

func (iv interval) empty() bool {
	if !iv.hasLo || !iv.hasHi {
		return false
	}
	c := iv.lo.Compare(iv.hi)
	if c > 0 {
		return true
	}
	return c == 0 && !iv.hiInc
}

func intersectIntervals(a, b interval) interval {
	out := interval{
		releaseOnly: a.releaseOnly || b.releaseOnly,
		anchors:     append(append([]Version(nil), a.anchors...), b.anchors...),
	}
	out.lo, out.hasLo = a.lo, a.hasLo
	if b.hasLo && (!out.hasLo || b.lo.Compare(out.lo) > 0) {
		out.lo = b.lo
		out.hasLo = true
	}
	out.hi, out.hasHi, out.hiInc = a.hi, a.hasHi, a.hiInc
	if b.hasHi {
		if !out.hasHi {
			out.hi, out.hasHi, out.hiInc = b.hi, true, b.hiInc
		} else if c := b.hi.Compare(out.hi); c < 0 || (c == 0 && !b.hiInc) {
			out.hi, out.hiInc = b.hi, b.hiInc
		}
	}
	return out
}

// intersectSemver implements Intersect for every interval-backed
// variant. Ref and path constraints never overlap with a version
// range.
func intersectSemver(c Constraint, other Constraint) Constraint {
	switch other.(type) {
	case anyConstraint:
		return c
	case noneConstraint, gitRefConstraint, localPathConstraint:
		return none
	}
	iv := intersectIntervals(c.(intervaler).interval(), other.(intervaler).interval())
	if iv.empty() {
		return none
	}
	return rangeConstraint{
		lo: iv.lo, hasLo: iv.hasLo,
		hi: iv.hi, hasHi: iv.hasHi, hiInc: iv.hiInc,
		releaseOnly: iv.releaseOnly, anchors: iv.anchors,
	}
}

type exactConstraint struct{ v Version }

func (c exactConstraint) String() string        { return "=" + c.v.String() }
func (c exactConstraint) Matches(v Version) bool { return c.v.Equal(v) }
func (c exactConstraint) interval() interval {
	return interval{lo: c.v, hasLo: true, hi: c.v, hasHi: true, hiInc: true}
}
func (c exactConstraint) Intersect(o Constraint) Constraint {
	// A surviving point intersection stays recognizably exact.
	if o.Matches(c.v) {
		return c
	}
	return none
}

type caretConstraint struct{ v Version }

func (c caretConstraint) String() string { return "^" + c.v.String() }
func (c caretConstraint) interval() interval {
	hi := nextMajor(c.v)
	if c.v.Major() == 0 {
		hi = nextMinor(c.v)
	}
	iv := interval{lo: c.v, hasLo: true, hi: hi, hasHi: true, releaseOnly: true}
	if c.v.Prerelease() != "" {
		iv.anchors = []Version{c.v}
	}
	return iv
}
func (c caretConstraint) Matches(v Version) bool            { return c.interval().matches(v) }
func (c caretConstraint) Intersect(o Constraint) Constraint { return intersectSemver(c, o) }

type tildeConstraint struct{ v Version }

func (c tildeConstraint) String() string { return "~" + c.v.String() }
func (c tildeConstraint) interval() interval {
	iv := interval{lo: c.v, hasLo: true, hi: nextMinor(c.v), hasHi: true, releaseOnly: true}
	if c.v.Prerelease() != "" {
		iv.anchors = []Version{c.v}
	}
	return iv
}
func (c tildeConstraint) Matches(v Version) bool            { return c.interval().matches(v) }
func (c tildeConstraint) Intersect(o Constraint) Constraint { return intersectSemver(c, o) }

type gteConstraint struct{ v Version }

func (c gteConstraint) String() string              { return ">=" + c.v.String() }
func (c gteConstraint) interval() interval          { return interval{lo: c.v, hasLo: true} }
func (c gteConstraint) Matches(v Version) bool      { return v.Compare(c.v) >= 0 }
func (c gteConstraint) Intersect(o Constraint) Constraint { return intersectSemver(c, o) }

type ltConstraint struct{ v Version }

func (c ltConstraint) String() string              { return "<" + c.v.String() }
func (c ltConstraint) interval() interval          { return interval{hi: c.v, hasHi: true} }
func (c ltConstraint) Matches(v Version) bool      { return v.Compare(c.v) < 0 }
func (c ltConstraint) Intersect(o Constraint) Constraint { return intersectSemver(c, o) }

type rangeConstraint struct {
	lo          Version
	hasLo       bool
	hi          Version
	hasHi       bool
	hiInc       bool
	releaseOnly bool
	anchors     []Version
}

func (c rangeConstraint) String() string {
	var parts []string
	if c.hasLo {
		parts = append(parts, ">="+c.lo.String())
	}
	if c.hasHi {
		if c.hiInc {
			if c.hasLo && c.lo.Equal(c.hi) {
				return "=" + c.hi.String()
			}
			parts = append(parts, "<="+c.hi.String())
		} else {
			parts = append(parts, "<"+c.hi.String())
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}
func (c rangeConstraint) interval() interval {
	return interval{
		lo: c.lo, hasLo: c.hasLo, hi: c.hi, hasHi: c.hasHi, hiInc: c.hiInc,
		releaseOnly: c.releaseOnly, anchors: c.anchors,
	}
}
func (c rangeConstraint) Matches(v Version) bool            { return c.interval().matches(v) }
func (c rangeConstraint) Intersect(o Constraint) Constraint { return intersectSemver(c, o) }

type gitRefConstraint struct{ ref string }

func (c gitRefConstraint) String() string       { return "git:" + c.ref }
func (c gitRefConstraint) Matches(Version) bool { return false }
func (c gitRefConstraint) Intersect(o Constraint) Constraint {
	switch to := o.(type) {
	case anyConstraint:
		return c
	case gitRefConstraint:
		if to.ref == c.ref {
			return c
		}
	}
	return none
}

type localPathConstraint struct{ path string }

func (c localPathConstraint) String() string       { return "local:" + c.path }
func (c localPathConstraint) Matches(Version) bool { return false }
func (c localPathConstraint) Intersect(o Constraint) Constraint {
	switch to := o.(type) {
	case anyConstraint:
		return c
	case localPathConstraint:
		if to.path == c.path {
			return c
		}
	}
	return none
}

// anyConstraint is the unbounded constraint; it admits every version.
type anyConstraint struct{}

func (anyConstraint) String() string                    { return "*" }
func (anyConstraint) Matches(Version) bool              { return true }
func (anyConstraint) Intersect(c Constraint) Constraint { return c }

// noneConstraint is the empty set.
type noneConstraint struct{}

func (noneConstraint) String() string                  { return "" }
func (noneConstraint) Matches(Version) bool            { return false }
func (noneConstraint) Intersect(Constraint) Constraint { return none }

// AsGitRef extracts the ref from a git constraint, if c is one.
func AsGitRef(c Constraint) (string, bool) {
	g, ok := c.(gitRefConstraint)
	if !ok {
		return "", false
	}
	return g.ref, true
}

// AsLocalPath extracts the path from a local constraint, if c is one.
func AsLocalPath(c Constraint) (string, bool) {
	l, ok := c.(localPathConstraint)
	if !ok {
		return "", false
	}
	return l.path, true
}
