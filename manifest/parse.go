// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"strings"
)

// ParseConstraint parses the surface constraint grammar:
//
//	=x.y.z           exact
//	^x.y.z           caret (next-major ceiling; next-minor for 0.y.z)
//	~x.y.z           tilde
//	>=x.y.z          open lower bound
//	<x.y.z           open upper bound
//	>=a.b.c <x.y.z   adjacent bounds compose to a range
//	local:<path>     package at a filesystem location
//	git:<ref>        opaque ref, satisfied only by that exact ref
//	x.y.z            bare versions are exact
func ParseConstraint(s string) (Constraint, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return nil, &ConstraintParseError{Input: s, Reason: "empty constraint"}
	}

	if p, ok := strings.CutPrefix(in, "local:"); ok {
		if p == "" {
			return nil, &ConstraintParseError{Input: s, Reason: "local: requires a path"}
		}
		return LocalPath(p), nil
	}
	if r, ok := strings.CutPrefix(in, "git:"); ok {
		if r == "" {
			return nil, &ConstraintParseError{Input: s, Reason: "git: requires a ref"}
		}
		return GitRef(r), nil
	}

	fields := strings.Fields(in)
	switch len(fields) {
	case 1:
		return parseSingleConstraint(s, fields[0])
	case 2:
		// Only the >=lo <hi composition is admitted as a pair.
		loS, ok1 := strings.CutPrefix(fields[0], ">=")
		hiS, ok2 := strings.CutPrefix(fields[1], "<")
		if !ok1 || !ok2 || strings.HasPrefix(hiS, "=") {
			return nil, &ConstraintParseError{Input: s, Reason: "compound constraints must be of the form >=a.b.c <x.y.z"}
		}
		lo, err := ParseVersion(loS)
		if err != nil {
			return nil, &ConstraintParseError{Input: s, Reason: err.Error()}
		}
		hi, err := ParseVersion(hiS)
		if err != nil {
			return nil, &ConstraintParseError{Input: s, Reason: err.Error()}
		}
		if !lo.LessThan(hi) {
			return nil, &ConstraintParseError{Input: s, Reason: "range lower bound must precede upper bound"}
		}
		return Range(lo, hi), nil
	default:
		return nil, &ConstraintParseError{Input: s, Reason: "too many terms"}
	}
}

func parseSingleConstraint(orig, tok string) (Constraint, error) {
	mk := Exact
	rest := tok
	switch {
	case strings.HasPrefix(tok, ">="):
		mk, rest = GreaterOrEqual, tok[2:]
	case strings.HasPrefix(tok, "<="):
		return nil, &ConstraintParseError{Input: orig, Reason: "<= is not part of the constraint grammar"}
	case strings.HasPrefix(tok, "="):
		mk, rest = Exact, tok[1:]
	case strings.HasPrefix(tok, "^"):
		mk, rest = Caret, tok[1:]
	case strings.HasPrefix(tok, "~"):
		mk, rest = Tilde, tok[1:]
	case strings.HasPrefix(tok, "<"):
		mk, rest = LessThan, tok[1:]
	}
	v, err := ParseVersion(rest)
	if err != nil {
		return nil, &ConstraintParseError{Input: orig, Reason: err.Error()}
	}
	return mk(v), nil
}
