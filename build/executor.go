// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build walks a build plan to completion: it arbitrates
// concurrency, consults the cache before every toolchain invocation,
// runs hooks at the defined points, and reports a summary.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/igutekunst/clydepm/cache"
	"github.com/igutekunst/clydepm/hooks"
	fsutil "github.com/igutekunst/clydepm/internal/fs"
	"github.com/igutekunst/clydepm/plan"
	"github.com/igutekunst/clydepm/toolchain"
)

// Options tune execution.
type Options struct {
	// Parallelism bounds concurrent compiler processes; defaults to
	// the hardware concurrency.
	Parallelism int
	// FailFast stops scheduling any new step after the first failure,
	// instead of only the failed package's dependents.
	FailFast bool
	// StepTimeout, when non-zero, terminates any single compile or
	// link child process that runs longer.
	StepTimeout time.Duration
}

// StepKind tags a report row.
type StepKind uint8

const (
	KindCompile StepKind = iota
	KindLink
)

func (k StepKind) String() string {
	if k == KindCompile {
		return "compile"
	}
	return "link"
}

// A StepReport records one step's outcome.
type StepReport struct {
	ID          uint64
	PackageID   string
	Kind        StepKind
	CacheHit    bool
	Skipped     bool
	Err         error
	Diagnostics []toolchain.Diagnostic
	Duration    time.Duration
}

// Summary is the final account of a build.
type Summary struct {
	Success     bool
	Cancelled   bool
	Duration    time.Duration
	CacheHits   int
	CacheMisses int
	Skipped     int
	Reports     []StepReport
	Failures    []hooks.StepFailure
	Timings     map[string]time.Duration
	// Artifacts maps package id to its produced artifact path.
	Artifacts map[string]string
}

// Executor drives plans. One Executor may run many plans serially; a
// single Execute call is itself concurrent internally.
type Executor struct {
	fsys   afero.Fs
	cache  *cache.Cache
	driver toolchain.Driver
	bus    *hooks.Bus
	log    *zap.Logger
	opts   Options
}

// NewExecutor wires an executor. bus may be nil; log may be nil.
func NewExecutor(fsys afero.Fs, c *cache.Cache, driver toolchain.Driver, bus *hooks.Bus, log *zap.Logger, opts Options) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	return &Executor{fsys: fsys, cache: c, driver: driver, bus: bus, log: log, opts: opts}
}

// pkgState is the per-package coordination record, in the style of a
// signal channel per prerequisite: done closes when the package
// reaches a terminal state; ok and artifactKey are valid only after.
type pkgState struct {
	done        chan struct{}
	ok          bool
	failedStep  string // package id that stopped it, for skip provenance
	artifactKey cache.Key
}

// run carries the shared state of one Execute call.
type run struct {
	exec     *Executor
	plan     *plan.BuildPlan
	states   map[string]*pkgState
	sem      *semaphore.Weighted
	met      *metrics
	failCtx  context.Context
	failNow  context.CancelFunc
	mu       sync.Mutex
	reports  []StepReport
	hookErr  error
}

func (r *run) record(rep StepReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

// hook publishes an event and trips the failure context when a
// critical subscriber rejects it.
func (r *run) hook(ev hooks.Event) {
	if err := r.exec.bus.Publish(ev); err != nil {
		r.mu.Lock()
		if r.hookErr == nil {
			r.hookErr = err
		}
		r.mu.Unlock()
		r.failNow()
	}
}

// Execute runs the plan. The returned error is non-nil only for
// infrastructure-level failures (a critical hook rejection); compile
// and link failures are reported in the Summary with Success=false.
//
// Cancellation is cooperative: in-flight compiler processes run to
// completion (killing a GCC-style tool mid-write leaves partial
// objects that would taint later cache queries), no further steps
// start, and the summary marks the build cancelled.
func (e *Executor) Execute(ctx context.Context, p *plan.BuildPlan) (*Summary, error) {
	e.bus.Freeze()
	start := time.Now()

	failCtx, failNow := context.WithCancel(ctx)
	defer failNow()
	r := &run{
		exec:    e,
		plan:    p,
		states:  make(map[string]*pkgState, len(p.Packages)),
		sem:     semaphore.NewWeighted(int64(e.opts.Parallelism)),
		met:     newMetrics(),
		failCtx: failCtx,
		failNow: failNow,
	}
	for _, pb := range p.Packages {
		r.states[pb.ID()] = &pkgState{done: make(chan struct{})}
	}

	r.hook(hooks.PreBuildEvent{Steps: p.Steps, Parallelism: e.opts.Parallelism})

	var wg sync.WaitGroup
	for _, pb := range p.Packages {
		pb := pb
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runPackage(pb)
		}()
	}
	wg.Wait()

	summary := r.summarize(ctx, time.Since(start))
	r.hook(hooks.PostBuildEvent{
		Success:      summary.Success,
		Cancelled:    summary.Cancelled,
		Duration:     summary.Duration,
		CacheHits:    summary.CacheHits,
		CacheMisses:  summary.CacheMisses,
		Failures:     summary.Failures,
		SkippedSteps: summary.Skipped,
	})
	return summary, r.hookErr
}

// runPackage waits for the package's direct dependencies, then
// compiles and links it. Terminal state is published by closing
// st.done.
func (r *run) runPackage(pb *plan.PackageBuild) {
	st := r.states[pb.ID()]
	defer close(st.done)

	// Readiness: every direct dependency linked. A failed dependency
	// marks this package, and transitively its dependers, skipped.
	var depKeys []cache.Key
	for _, depID := range pb.DirectDeps {
		dep := r.states[depID]
		<-dep.done
		if !dep.ok {
			because := dep.failedStep
			if because == "" {
				because = depID
			}
			st.failedStep = because
			r.skipPackage(pb, because)
			return
		}
		depKeys = append(depKeys, dep.artifactKey)
	}

	if r.failCtx.Err() != nil {
		r.skipPackage(pb, "")
		return
	}

	// Compile steps of one package are independent and unordered; they
	// share the global worker slots with every other ready package.
	var (
		cwg     sync.WaitGroup
		failedM sync.Mutex
		failed  bool
	)
	for _, cs := range pb.Compiles {
		if r.failCtx.Err() != nil {
			r.record(StepReport{ID: cs.ID, PackageID: pb.ID(), Kind: KindCompile, Skipped: true})
			continue
		}
		cs := cs
		// Acquiring a worker slot honors the failure context, so a
		// cancellation arriving mid-wait starts nothing new.
		if err := r.sem.Acquire(r.failCtx, 1); err != nil {
			r.record(StepReport{ID: cs.ID, PackageID: pb.ID(), Kind: KindCompile, Skipped: true})
			continue
		}
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			defer r.sem.Release(1)
			rep := r.runCompile(pb, cs)
			r.record(rep)
			if rep.Err != nil {
				failedM.Lock()
				failed = true
				failedM.Unlock()
				if r.exec.opts.FailFast {
					r.failNow()
				}
			}
		}()
	}
	cwg.Wait()

	if failed {
		st.failedStep = pb.ID()
		r.record(StepReport{ID: pb.Link.ID, PackageID: pb.ID(), Kind: KindLink, Skipped: true})
		return
	}
	if r.failCtx.Err() != nil {
		r.record(StepReport{ID: pb.Link.ID, PackageID: pb.ID(), Kind: KindLink, Skipped: true})
		return
	}

	key, rep := r.runLink(pb, depKeys)
	r.record(rep)
	if rep.Skipped {
		return
	}
	if rep.Err != nil {
		st.failedStep = pb.ID()
		if r.exec.opts.FailFast {
			r.failNow()
		}
		return
	}
	st.artifactKey = key
	st.ok = true
}

func (r *run) skipPackage(pb *plan.PackageBuild, because string) {
	for _, cs := range pb.Compiles {
		rep := StepReport{ID: cs.ID, PackageID: pb.ID(), Kind: KindCompile, Skipped: true}
		if because != "" {
			rep.Err = &SkippedError{PackageID: pb.ID(), Because: because}
		}
		r.record(rep)
	}
	rep := StepReport{ID: pb.Link.ID, PackageID: pb.ID(), Kind: KindLink, Skipped: true}
	if because != "" {
		rep.Err = &SkippedError{PackageID: pb.ID(), Because: because}
	}
	r.record(rep)
}

// stepCtx derives the context a child process runs under: never the
// cancellable build context (cancellation drains in-flight work), but
// bounded by the per-step timeout when configured.
func (r *run) stepCtx() (context.Context, context.CancelFunc) {
	if r.exec.opts.StepTimeout > 0 {
		return context.WithTimeout(context.Background(), r.exec.opts.StepTimeout)
	}
	return context.Background(), func() {}
}

func (r *run) runCompile(pb *plan.PackageBuild, cs *plan.CompileStep) StepReport {
	e := r.exec
	rep := StepReport{ID: cs.ID, PackageID: pb.ID(), Kind: KindCompile}
	r.hook(hooks.PreCompileEvent{StepID: cs.ID, Package: pb.ID(), Source: cs.Source})

	start := time.Now()
	if blob, ok := e.cache.GetObject(cs.Key); ok {
		var err error
		r.met.measure("cache", func() {
			err = fsutil.WriteFileAtomic(e.fsys, cs.Object, blob, 0o644)
		})
		if err == nil {
			rep.CacheHit = true
			rep.Duration = time.Since(start)
			r.hook(hooks.PostCompileEvent{
				StepID: cs.ID, Package: pb.ID(), Source: cs.Source,
				CacheHit: true, Success: true, Duration: rep.Duration,
			})
			return rep
		}
		e.log.Warn("materializing cached object failed, recompiling",
			zap.String("object", cs.Object), zap.Error(err))
	}

	cctx, cancel := r.stepCtx()
	defer cancel()
	var (
		res    toolchain.CompileResult
		runErr error
	)
	r.met.measure("compile", func() {
		res, runErr = e.driver.Compile(cctx, toolchain.CompileJob{
			Source:      cs.Source,
			Object:      cs.Object,
			Language:    cs.Language,
			Flags:       cs.Flags,
			IncludeDirs: cs.IncludeDirs,
			DepfilePath: cs.Depfile,
		})
	})
	rep.Duration = time.Since(start)
	rep.Diagnostics = res.Diagnostics

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		rep.Err = &StepTimeoutError{StepID: cs.ID, PackageID: pb.ID(), What: "compile"}
	case runErr != nil:
		rep.Err = runErr
	case res.Failed():
		rep.Err = &CompileFailedError{StepID: cs.ID, PackageID: pb.ID(), Source: cs.Source, Diagnostics: res.Diagnostics}
	default:
		if blob, err := afero.ReadFile(e.fsys, cs.Object); err == nil {
			if perr := e.cache.PutObject(cs.Key, blob); perr != nil {
				e.log.Warn("object cache write failed", zap.Error(perr))
			}
		}
	}

	r.hook(hooks.PostCompileEvent{
		StepID: cs.ID, Package: pb.ID(), Source: cs.Source,
		Success: rep.Err == nil, Duration: rep.Duration, Diagnostics: res.Diagnostics,
	})
	return rep
}

func (r *run) runLink(pb *plan.PackageBuild, depKeys []cache.Key) (cache.Key, StepReport) {
	e := r.exec
	ls := pb.Link
	rep := StepReport{ID: ls.ID, PackageID: pb.ID(), Kind: KindLink}
	r.hook(hooks.PreLinkEvent{StepID: ls.ID, Package: pb.ID()})

	var objKeys []cache.Key
	for _, cs := range pb.Compiles {
		objKeys = append(objKeys, cs.Key)
	}
	// The driver links through the compiler binary, so the compiler
	// identity doubles as the linker identity.
	key := cache.ArtifactKey(cache.ArtifactKeyInputs{
		ManifestCanonical: pb.Pkg.Manifest.Canonical(),
		ObjectKeys:        objKeys,
		LinkFlags:         ls.Flags,
		Linker:            r.plan.Compiler,
		DepArtifactKeys:   depKeys,
	})

	start := time.Now()
	if bundle, ok := e.cache.GetArtifact(key); ok {
		var err error
		r.met.measure("cache", func() {
			err = bundle.Extract(e.fsys, pb.OutputDir)
		})
		if err == nil {
			rep.CacheHit = true
			rep.Duration = time.Since(start)
			r.hook(hooks.PostLinkEvent{
				StepID: ls.ID, Package: pb.ID(), Artifact: ls.Artifact,
				CacheHit: true, Success: true, Duration: rep.Duration,
			})
			return key, rep
		}
		e.log.Warn("extracting cached artifact failed, relinking",
			zap.String("artifact", ls.Artifact), zap.Error(err))
	}

	lctx, cancel := r.stepCtx()
	defer cancel()
	// Links spawn a child process too; they share the worker slots.
	if err := r.sem.Acquire(r.failCtx, 1); err != nil {
		rep.Skipped = true
		return key, rep
	}
	defer r.sem.Release(1)
	var runErr error
	r.met.measure("link", func() {
		_, runErr = e.driver.Link(lctx, toolchain.LinkJob{
			Archive:  ls.Archive,
			Output:   ls.Artifact,
			Objects:  ls.Objects,
			Archives: ls.Archives,
			Flags:    ls.Flags,
			Language: ls.Language,
		})
	})
	rep.Duration = time.Since(start)

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		rep.Err = &StepTimeoutError{StepID: ls.ID, PackageID: pb.ID(), What: "link"}
	case runErr != nil:
		rep.Err = &LinkFailedError{StepID: ls.ID, PackageID: pb.ID(), cause: runErr}
	default:
		if bundle, err := r.bundleArtifact(pb); err != nil {
			e.log.Warn("assembling artifact bundle failed", zap.Error(err))
		} else if perr := e.cache.PutArtifact(key, bundle); perr != nil {
			e.log.Warn("artifact cache write failed", zap.Error(perr))
		}
	}

	r.hook(hooks.PostLinkEvent{
		StepID: ls.ID, Package: pb.ID(), Artifact: ls.Artifact,
		Success: rep.Err == nil, Duration: rep.Duration,
	})
	return key, rep
}

// bundleArtifact assembles the artifact-tier value: the artifact file
// plus the package's public headers, modes preserved.
func (r *run) bundleArtifact(pb *plan.PackageBuild) (*cache.ArtifactBundle, error) {
	e := r.exec
	b := &cache.ArtifactBundle{}
	add := func(name, path string) error {
		fi, err := e.fsys.Stat(path)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(e.fsys, path)
		if err != nil {
			return err
		}
		b.Files = append(b.Files, cache.BundleFile{Name: name, Mode: fi.Mode().Perm(), Body: data})
		return nil
	}
	if err := add(filepath.Base(pb.Link.Artifact), pb.Link.Artifact); err != nil {
		return nil, err
	}
	inc := pb.Pkg.IncludeDir()
	if ok, _ := afero.DirExists(e.fsys, inc); ok {
		err := afero.Walk(e.fsys, inc, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, rerr := filepath.Rel(inc, path)
			if rerr != nil {
				return rerr
			}
			return add(filepath.Join("include", rel), path)
		})
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *run) summarize(ctx context.Context, elapsed time.Duration) *Summary {
	s := &Summary{
		Success:   true,
		Cancelled: ctx.Err() != nil,
		Duration:  elapsed,
		Timings:   r.met.snapshot(),
		Artifacts: make(map[string]string),
		Reports:   r.reports,
	}
	for _, rep := range r.reports {
		switch {
		case rep.Skipped:
			s.Skipped++
			s.Success = false
		case rep.Err != nil:
			s.Success = false
			s.Failures = append(s.Failures, hooks.StepFailure{
				StepID: rep.ID, Package: rep.PackageID, Detail: rep.Err.Error(),
			})
		case rep.CacheHit:
			s.CacheHits++
		default:
			s.CacheMisses++
		}
	}
	if s.Cancelled {
		s.Success = false
	}
	for _, pb := range r.plan.Packages {
		if st := r.states[pb.ID()]; st.ok {
			s.Artifacts[pb.ID()] = pb.Link.Artifact
		}
	}
	return s
}

// Format renders a short human-readable report.
func (s *Summary) Format() string {
	var b strings.Builder
	switch {
	case s.Success:
		b.WriteString("build succeeded")
	case s.Cancelled:
		b.WriteString("build cancelled")
	default:
		b.WriteString("build failed")
	}
	fmt.Fprintf(&b, " in %s, cache %d hit(s) / %d miss(es)",
		s.Duration.Round(time.Millisecond), s.CacheHits, s.CacheMisses)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", %d step(s) skipped", s.Skipped)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n  %s: %s", f.Package, f.Detail)
	}
	return b.String()
}
