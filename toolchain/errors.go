// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toolchain

import "fmt"

// A ProbeError means the toolchain could not be interrogated at all.
// Fatal: no build can proceed without a compiler identity.
type ProbeError struct {
	Binary string
	cause  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probing compiler %q: %s", e.Binary, e.cause)
}

func (e *ProbeError) Unwrap() error { return e.cause }

// An InvocationError means a child process could not run or was
// signal-terminated, as opposed to exiting with diagnostics.
type InvocationError struct {
	Binary string
	cause  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %q: %s", e.Binary, e.cause)
}

func (e *InvocationError) Unwrap() error { return e.cause }

// A LinkFailedError carries the linker's own report (unresolved
// symbols and the like) verbatim.
type LinkFailedError struct {
	Artifact string
	Output   string
}

func (e *LinkFailedError) Error() string {
	return fmt.Sprintf("linking %s failed:\n%s", e.Artifact, e.Output)
}
