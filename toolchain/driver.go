// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain defines the native compiler capability consumed by
// the executor, and a GCC-compatible implementation of it. The rest of
// the system treats the compiler as a black box behind the Driver
// interface, which is what makes builds testable without a toolchain
// installed.
package toolchain

import (
	"context"
	"fmt"
	"time"

	"github.com/igutekunst/clydepm/manifest"
)

// CompilerInfo identifies the probed toolchain. It participates in
// object cache keys, so two compilers differing in any field never
// share cached objects.
type CompilerInfo struct {
	Name    string // binary name as invoked, e.g. "cc"
	Version string // -dumpversion output
	Target  string // -dumpmachine target triple
	Family  string // flag-map family: "gcc", "clang", …
}

func (i CompilerInfo) String() string {
	return fmt.Sprintf("%s %s (%s, %s family)", i.Name, i.Version, i.Target, i.Family)
}

// A CompileJob is one source file to be compiled to one object file.
type CompileJob struct {
	Source       string   // absolute path of the translation unit
	Object       string   // absolute output path
	Language     manifest.Language
	Flags        []string // effective flag vector, in order
	IncludeDirs  []string // resolved include order
	DepfilePath  string   // where to ask the compiler for header deps, "" to skip
}

// A LinkJob produces a package's artifact from its objects.
type LinkJob struct {
	Archive  bool     // true: archive a static library; false: link an executable
	Output   string   // absolute artifact path
	Objects  []string // object files, in plan order
	Archives []string // dependency archives, topologically ordered (link only)
	Flags    []string // linker flag vector (link only)
	Language manifest.Language
}

// Severity of a single compiler diagnostic.
type Severity uint8

const (
	SeverityNote Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal error"
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// A Diagnostic is one structured message parsed from compiler stderr.
// Only the GCC-compatible prefix (file:line:col: severity: message) is
// relied upon; anything unparsable is preserved as a note with the raw
// text.
type Diagnostic struct {
	File     string
	Line     int
	Column   int
	Severity Severity
	Message  string
	Flag     string // the [-W...] suffix when present
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// CompileResult reports one driver compile invocation.
type CompileResult struct {
	Object      string
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// Failed reports whether any diagnostic reaches error severity.
func (r CompileResult) Failed() bool {
	for _, d := range r.Diagnostics {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// LinkResult reports one driver link or archive invocation. Linker
// output (unresolved symbols and the like) is captured as-is.
type LinkResult struct {
	Artifact string
	Output   string
	Duration time.Duration
}

// Driver is the toolchain capability. Probe is cached per process by
// implementations; Compile and Link block until the child process
// exits and honor context cancellation by terminating the child.
type Driver interface {
	Probe(ctx context.Context) (CompilerInfo, error)
	Compile(ctx context.Context, job CompileJob) (CompileResult, error)
	Link(ctx context.Context, job LinkJob) (LinkResult, error)
}
