// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import "fmt"

// ErrorKind classifies planning failures. All of them are fatal: a
// plan is either complete and correct or not produced.
type ErrorKind uint8

const (
	// EmptySources: a package's source globs matched nothing.
	EmptySources ErrorKind = iota
	// MissingIncludeDirectory: a library lacks its public include dir.
	MissingIncludeDirectory
	// UnsupportedCompilerFamily: the probed compiler has no flag
	// mapping.
	UnsupportedCompilerFamily
)

func (k ErrorKind) String() string {
	switch k {
	case EmptySources:
		return "no sources matched"
	case MissingIncludeDirectory:
		return "missing include directory"
	case UnsupportedCompilerFamily:
		return "unsupported compiler family"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// A PlanError is a fatal planning failure with package provenance.
type PlanError struct {
	Kind    ErrorKind
	Package string
	Detail  string
}

func (e *PlanError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("planning %s: %s: %s", e.Package, e.Kind, e.Detail)
	}
	return fmt.Sprintf("planning: %s: %s", e.Kind, e.Detail)
}
