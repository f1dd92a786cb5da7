// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"bytes"
	"fmt"
	"strings"
)

// A ConstraintOrigin records who asked for what: one requirement on a
// name, the package that introduced it, and the requirement chain from
// the root explaining why that package is present at all.
type ConstraintOrigin struct {
	Constraint string
	Origin     string   // requiring package id (name@version); the root's own id for root requirements
	Chain      []string // package names from root to the requiring package
}

func (o ConstraintOrigin) String() string {
	if len(o.Chain) <= 1 {
		return fmt.Sprintf("%s from %s", o.Constraint, o.Origin)
	}
	return fmt.Sprintf("%s from %s (via %s)", o.Constraint, o.Origin, strings.Join(o.Chain, " -> "))
}

// NoCompatibleVersionError indicates that no candidate version of a
// package satisfied the intersected constraints on it.
type NoCompatibleVersionError struct {
	Name      string
	Origins   []ConstraintOrigin
	Available []string // candidate versions offered by the registry
}

func (e *NoCompatibleVersionError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %s satisfies the requirements:", e.Name)
	for _, o := range e.Origins {
		fmt.Fprintf(&buf, "\n\t%s", o)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&buf, "\navailable versions: %s", strings.Join(e.Available, ", "))
	} else {
		fmt.Fprintf(&buf, "\nthe registry offers no versions of %s", e.Name)
	}
	return buf.String()
}

// VersionConflictError indicates that two or more requirements on a
// name admit no common version, or that a later requirement rejects
// the already-chosen version. The resolver does not backtrack; both
// sides are reported with their chains so the conflict is actionable.
type VersionConflictError struct {
	Name    string
	Chosen  string // already selected version, "" when no selection survived
	Origins []ConstraintOrigin
}

func (e *VersionConflictError) Error() string {
	var buf bytes.Buffer
	if e.Chosen != "" {
		fmt.Fprintf(&buf, "constraints on %s conflict with selected version %s:", e.Name, e.Chosen)
	} else {
		fmt.Fprintf(&buf, "constraints on %s have no overlap:", e.Name)
	}
	for _, o := range e.Origins {
		fmt.Fprintf(&buf, "\n\t%s", o)
	}
	return buf.String()
}

// CircularDependencyError reports a requirement cycle. Path lists the
// packages from the root to the closing edge, visiting each cycle
// vertex exactly once with the entry vertex repeated at the end.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// FetchFailedError wraps a registry or materialization failure with
// the chain that led to the fetch.
type FetchFailedError struct {
	Name  string
	Chain []string
	Cause error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetching %s (required via %s): %s", e.Name, strings.Join(e.Chain, " -> "), e.Cause)
}

func (e *FetchFailedError) Unwrap() error { return e.Cause }
