// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import "fmt"

// ErrorKind classifies manifest parse failures.
type ErrorKind uint8

const (
	// SyntaxError covers undecodable documents.
	SyntaxError ErrorKind = iota
	// MissingField marks an absent required key.
	MissingField
	// InvalidField marks a present but unacceptable value.
	InvalidField
	// MalformedConstraint marks an unparseable requirement constraint.
	MalformedConstraint
)

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case MissingField:
		return "missing required field"
	case InvalidField:
		return "invalid field"
	case MalformedConstraint:
		return "malformed constraint"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// A ManifestError describes why a manifest could not be parsed. It is
// reported at parse time and never propagated past resolver entry.
type ManifestError struct {
	Kind  ErrorKind
	Field string
	cause error
}

func (e *ManifestError) Error() string {
	switch {
	case e.Field != "" && e.cause != nil:
		return fmt.Sprintf("manifest: %s %s: %s", e.Kind, e.Field, e.cause)
	case e.Field != "":
		return fmt.Sprintf("manifest: %s %s", e.Kind, e.Field)
	case e.cause != nil:
		return fmt.Sprintf("manifest: %s: %s", e.Kind, e.cause)
	}
	return fmt.Sprintf("manifest: %s", e.Kind)
}

func (e *ManifestError) Unwrap() error { return e.cause }

// A ConstraintParseError is returned for strings outside the
// constraint grammar.
type ConstraintParseError struct {
	Input  string
	Reason string
}

func (e *ConstraintParseError) Error() string {
	return fmt.Sprintf("invalid constraint %q: %s", e.Input, e.Reason)
}
