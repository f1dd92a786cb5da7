// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hooks

import (
	"time"

	"github.com/igutekunst/clydepm/toolchain"
)

// Resolution phase events.

type PreResolutionEvent struct {
	Root string // root package name
}

func (PreResolutionEvent) Point() Point { return PreResolution }

type PackageDiscoveredEvent struct {
	Name       string
	Constraint string
	Origin     string // requiring package id; the root's own id for root requirements
}

func (PackageDiscoveredEvent) Point() Point { return PackageDiscovered }

type VersionSelectedEvent struct {
	Name       string
	Version    string
	Candidates int
}

func (VersionSelectedEvent) Point() Point { return VersionSelected }

type PackageFetchedEvent struct {
	Name    string
	Version string
	Path    string // materialized source root
}

func (PackageFetchedEvent) Point() Point { return PackageFetched }

type PostResolutionEvent struct {
	Packages int
	Edges    int
	Duration time.Duration
}

func (PostResolutionEvent) Point() Point { return PostResolution }

// Planning phase events.

type PrePlanEvent struct {
	Packages int
}

func (PrePlanEvent) Point() Point { return PrePlan }

type BuildOrderComputedEvent struct {
	// Order lists name@version in scheduled link order.
	Order []string
}

func (BuildOrderComputedEvent) Point() Point { return BuildOrderComputed }

type PostPlanEvent struct {
	CompileSteps int
	LinkSteps    int
}

func (PostPlanEvent) Point() Point { return PostPlan }

// Execution phase events. Steps are identified by the monotonic id
// assigned at plan time; correlating Pre/Post pairs by id is the
// supported way for stateful subscribers to track steps.

type PreBuildEvent struct {
	Steps       int
	Parallelism int
}

func (PreBuildEvent) Point() Point { return PreBuild }

type PreCompileEvent struct {
	StepID  uint64
	Package string
	Source  string
}

func (PreCompileEvent) Point() Point { return PreCompile }

type PostCompileEvent struct {
	StepID      uint64
	Package     string
	Source      string
	CacheHit    bool
	Success     bool
	Duration    time.Duration
	Diagnostics []toolchain.Diagnostic
}

func (PostCompileEvent) Point() Point { return PostCompile }

type PreLinkEvent struct {
	StepID  uint64
	Package string
}

func (PreLinkEvent) Point() Point { return PreLink }

type PostLinkEvent struct {
	StepID   uint64
	Package  string
	Artifact string
	CacheHit bool
	Success  bool
	Duration time.Duration
}

func (PostLinkEvent) Point() Point { return PostLink }

// StepFailure summarizes one failed step for the build summary.
type StepFailure struct {
	StepID  uint64
	Package string
	Detail  string
}

type PostBuildEvent struct {
	Success      bool
	Cancelled    bool
	Duration     time.Duration
	CacheHits    int
	CacheMisses  int
	Failures     []StepFailure
	SkippedSteps int
}

func (PostBuildEvent) Point() Point { return PostBuild }
