// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"strings"

	"github.com/igutekunst/clydepm/toolchain"
)

// A CompileFailedError aggregates the error-severity diagnostics of
// one compile step.
type CompileFailedError struct {
	StepID      uint64
	PackageID   string
	Source      string
	Diagnostics []toolchain.Diagnostic
}

func (e *CompileFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compiling %s (%s) failed:", e.Source, e.PackageID)
	for _, d := range e.Diagnostics {
		if d.Severity >= toolchain.SeverityError {
			fmt.Fprintf(&b, "\n\t%s", d)
		}
	}
	return b.String()
}

// A LinkFailedError wraps the linker's verbatim report with step
// provenance.
type LinkFailedError struct {
	StepID    uint64
	PackageID string
	cause     error
}

func (e *LinkFailedError) Error() string {
	return fmt.Sprintf("linking %s: %s", e.PackageID, e.cause)
}

func (e *LinkFailedError) Unwrap() error { return e.cause }

// A StepTimeoutError reports a step that exceeded the configured
// per-step timeout and had its child process terminated.
type StepTimeoutError struct {
	StepID    uint64
	PackageID string
	What      string
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %d (%s %s) exceeded its timeout", e.StepID, e.What, e.PackageID)
}

// A SkippedError marks steps never attempted because a dependency
// failed first.
type SkippedError struct {
	PackageID string
	Because   string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("%s skipped: %s failed", e.PackageID, e.Because)
}
