// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/cache"
	"github.com/igutekunst/clydepm/hooks"
	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/plan"
	"github.com/igutekunst/clydepm/resolve"
	"github.com/igutekunst/clydepm/toolchain"
)

var gcc = toolchain.CompilerInfo{Name: "cc", Version: "12.2.0", Target: "x86_64-linux-gnu", Family: "gcc"}

// fakeDriver stands in for the toolchain: it writes deterministic
// bytes where the compiler would, and fails where told to.
type fakeDriver struct {
	fsys afero.Fs

	mu       sync.Mutex
	compiles []string
	links    []string
	fail     map[string]bool // source suffix → fail its compile
	slow     time.Duration
}

func (d *fakeDriver) Probe(context.Context) (toolchain.CompilerInfo, error) { return gcc, nil }

func (d *fakeDriver) Compile(ctx context.Context, job toolchain.CompileJob) (toolchain.CompileResult, error) {
	if d.slow > 0 {
		select {
		case <-time.After(d.slow):
		case <-ctx.Done():
			return toolchain.CompileResult{}, ctx.Err()
		}
	}
	d.mu.Lock()
	d.compiles = append(d.compiles, job.Source)
	d.mu.Unlock()
	for suffix := range d.fail {
		if strings.HasSuffix(job.Source, suffix) {
			return toolchain.CompileResult{
				Diagnostics: []toolchain.Diagnostic{{
					File: job.Source, Line: 1, Column: 1,
					Severity: toolchain.SeverityError, Message: "expected ';' before '}' token",
				}},
			}, nil
		}
	}
	if err := afero.WriteFile(d.fsys, job.Object, []byte("OBJ:"+job.Source), 0o644); err != nil {
		return toolchain.CompileResult{}, err
	}
	return toolchain.CompileResult{Object: job.Object}, nil
}

func (d *fakeDriver) Link(ctx context.Context, job toolchain.LinkJob) (toolchain.LinkResult, error) {
	d.mu.Lock()
	d.links = append(d.links, job.Output)
	d.mu.Unlock()
	var b strings.Builder
	b.WriteString("ART:")
	for _, o := range job.Objects {
		data, err := afero.ReadFile(d.fsys, o)
		if err != nil {
			return toolchain.LinkResult{}, err
		}
		b.Write(data)
	}
	for _, a := range job.Archives {
		data, err := afero.ReadFile(d.fsys, a)
		if err != nil {
			return toolchain.LinkResult{}, err
		}
		b.Write(data)
	}
	if err := afero.WriteFile(d.fsys, job.Output, []byte(b.String()), 0o755); err != nil {
		return toolchain.LinkResult{}, err
	}
	return toolchain.LinkResult{Artifact: job.Output}, nil
}

func (d *fakeDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.compiles), len(d.links)
}

type noRegistry struct{}

func (noRegistry) ListVersions(context.Context, string) ([]manifest.Version, error) {
	return nil, fmt.Errorf("no registry")
}
func (noRegistry) Fetch(context.Context, string, manifest.Version) (io.ReadCloser, error) {
	return nil, fmt.Errorf("no registry")
}
func (noRegistry) FetchRef(context.Context, string, string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("no registry")
}

func fixturePlan(t *testing.T, fsys afero.Fs, files map[string]string) *plan.BuildPlan {
	t.Helper()
	for p, body := range files {
		if err := afero.WriteFile(fsys, p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := resolve.LoadPackage(fsys, "/proj")
	if err != nil {
		t.Fatalf("LoadPackage: %s", err)
	}
	r := resolve.NewResolver(fsys, noRegistry{}, resolve.NewStore(fsys, "/cache/packages"), nil, nil)
	g, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	p, err := plan.Plan(context.Background(), fsys, g, gcc, nil, nil, plan.Options{})
	if err != nil {
		t.Fatalf("Plan: %s", err)
	}
	return p
}

func helloFiles() map[string]string {
	return map[string]string{
		"/proj/package.yml": "name: hello\nversion: 0.1.0\ntype: application\nlanguage: c\nsources: [src/main.c]\n",
		"/proj/src/main.c":  "int main(){return 0;}\n",
	}
}

func appLibFiles(brokenLib bool) map[string]string {
	asrc := "int a(void){return 1;}\n"
	if brokenLib {
		asrc = "int a(void){return 1}\n"
	}
	return map[string]string{
		"/proj/package.yml": "name: app\nversion: 1.0.0\ntype: application\nlanguage: c\nsources: [src/main.c]\nrequires:\n  liba: {path: /libs/liba}\n  libb: {path: /libs/libb}\n",
		"/proj/src/main.c":  "int main(){return 0;}\n",
		"/libs/liba/package.yml":      "name: liba\nversion: 1.0.0\ntype: library\nlanguage: c\nsources: [src/a.c]\n",
		"/libs/liba/src/a.c":          asrc,
		"/libs/liba/include/liba/a.h": "int a(void);\n",
		"/libs/libb/package.yml":      "name: libb\nversion: 1.0.0\ntype: library\nlanguage: c\nsources: [src/b.c]\n",
		"/libs/libb/src/b.c":          "int b(void){return 2;}\n",
		"/libs/libb/include/libb/b.h": "int b(void);\n",
	}
}

func testExecutor(t *testing.T, fsys afero.Fs, driver toolchain.Driver, bus *hooks.Bus, opts Options) *Executor {
	t.Helper()
	c, err := cache.Open(fsys, "/cache", nil)
	if err != nil {
		t.Fatalf("cache.Open: %s", err)
	}
	return NewExecutor(fsys, c, driver, bus, nil, opts)
}

func TestExecuteSinglePackage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, helloFiles())
	driver := &fakeDriver{fsys: fsys}
	e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 2})

	s, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if !s.Success {
		t.Fatalf("summary: %s", s.Format())
	}
	if got := s.Artifacts["hello@0.1.0"]; got != "/proj/.build/hello" {
		t.Errorf("artifact = %q", got)
	}
	if ok, _ := afero.Exists(fsys, "/proj/.build/hello"); !ok {
		t.Errorf("executable missing")
	}
	if c, l := driver.counts(); c != 1 || l != 1 {
		t.Errorf("driver ran %d compiles %d links, want 1 and 1", c, l)
	}
}

func TestExecuteWarmBuildSkipsToolchain(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, helloFiles())
	driver := &fakeDriver{fsys: fsys}
	e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 2})

	if s, err := e.Execute(context.Background(), p); err != nil || !s.Success {
		t.Fatalf("cold build: %v %s", err, s.Format())
	}
	cold, _ := afero.ReadFile(fsys, "/proj/.build/hello")

	// Recompute the plan the way a second invocation would.
	p2 := fixturePlan(t, fsys, nil)
	e2 := testExecutor(t, fsys, driver, nil, Options{Parallelism: 2})
	s, err := e2.Execute(context.Background(), p2)
	if err != nil || !s.Success {
		t.Fatalf("warm build: %v %s", err, s.Format())
	}
	if c, l := driver.counts(); c != 1 || l != 1 {
		t.Errorf("warm build must not invoke the toolchain (ran %d compiles %d links)", c, l)
	}
	if s.CacheHits != 2 || s.CacheMisses != 0 {
		t.Errorf("warm build hits/misses = %d/%d, want 2/0", s.CacheHits, s.CacheMisses)
	}
	warm, _ := afero.ReadFile(fsys, "/proj/.build/hello")
	if string(cold) != string(warm) {
		t.Errorf("warm artifact differs from cold artifact")
	}
}

func TestExecuteFailureContainment(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, appLibFiles(true))
	driver := &fakeDriver{fsys: fsys, fail: map[string]bool{"a.c": true}}
	e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 2})

	s, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if s.Success {
		t.Fatalf("build must fail")
	}
	if len(s.Failures) != 1 {
		t.Fatalf("failures = %v, want exactly the liba compile", s.Failures)
	}
	if !strings.Contains(s.Failures[0].Detail, "a.c") {
		t.Errorf("failure detail = %q", s.Failures[0].Detail)
	}
	// The independent library still built; the app was skipped.
	if _, ok := s.Artifacts["libb@1.0.0"]; !ok {
		t.Errorf("independent package should continue, artifacts = %v", s.Artifacts)
	}
	if _, ok := s.Artifacts["app@1.0.0"]; ok {
		t.Errorf("depender of the failed package must not link")
	}
	for _, rep := range s.Reports {
		if rep.PackageID == "app@1.0.0" && !rep.Skipped {
			t.Errorf("app step %d ran despite failed dependency", rep.ID)
		}
	}
}

func TestExecuteFailFast(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, appLibFiles(true))
	driver := &fakeDriver{fsys: fsys, fail: map[string]bool{"a.c": true}, slow: 10 * time.Millisecond}
	e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 1, FailFast: true})

	s, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if s.Success {
		t.Fatalf("build must fail")
	}
	if _, ok := s.Artifacts["app@1.0.0"]; ok {
		t.Errorf("fail_fast build should not produce the app")
	}
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, helloFiles())
	driver := &fakeDriver{fsys: fsys}
	e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := e.Execute(ctx, p)
	if err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if !s.Cancelled || s.Success {
		t.Errorf("summary should report cancellation: %s", s.Format())
	}
	if c, _ := driver.counts(); c != 0 {
		t.Errorf("no step may start after cancellation, ran %d compiles", c)
	}
}

func TestExecuteHookOrdering(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, appLibFiles(false))
	driver := &fakeDriver{fsys: fsys}

	bus := hooks.NewBus(nil)
	var mu sync.Mutex
	var events []hooks.Event
	bus.Subscribe(func(ev hooks.Event) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	})

	e := testExecutor(t, fsys, driver, bus, Options{Parallelism: 4})
	if s, err := e.Execute(context.Background(), p); err != nil || !s.Success {
		t.Fatalf("Execute: %v", err)
	}

	// Per package: every PostCompile precedes the PreLink; every Post
	// follows its Pre; the stream starts PreBuild and ends PostBuild.
	if events[0].Point() != hooks.PreBuild || events[len(events)-1].Point() != hooks.PostBuild {
		t.Fatalf("stream must be bracketed by PreBuild/PostBuild")
	}
	lastCompile := map[string]int{}
	preLink := map[string]int{}
	for i, ev := range events {
		switch e := ev.(type) {
		case hooks.PostCompileEvent:
			lastCompile[e.Package] = i
		case hooks.PreLinkEvent:
			preLink[e.Package] = i
		}
	}
	for pkg, li := range preLink {
		if ci, ok := lastCompile[pkg]; ok && ci > li {
			t.Errorf("%s: PostCompile at %d after PreLink at %d", pkg, ci, li)
		}
	}
}

func TestExecuteCriticalHookAborts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, helloFiles())
	driver := &fakeDriver{fsys: fsys}

	bus := hooks.NewBus(nil)
	bus.Subscribe(func(ev hooks.Event) error {
		if ev.Point() == hooks.PreCompile {
			return fmt.Errorf("policy gate rejected the build")
		}
		return nil
	}, hooks.Critical())

	e := testExecutor(t, fsys, driver, bus, Options{Parallelism: 1})
	_, err := e.Execute(context.Background(), p)
	if err == nil {
		t.Fatalf("critical hook failure must abort the build")
	}
}

func TestExecuteParallelSharedCache(t *testing.T) {
	// Two executors over the same cache and plan: neither corrupts the
	// other; the artifacts agree.
	fsys := afero.NewMemMapFs()
	p := fixturePlan(t, fsys, appLibFiles(false))

	var wg sync.WaitGroup
	outs := make([]*Summary, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			driver := &fakeDriver{fsys: fsys}
			e := testExecutor(t, fsys, driver, nil, Options{Parallelism: 4})
			s, err := e.Execute(context.Background(), p)
			if err != nil {
				t.Errorf("Execute: %s", err)
				return
			}
			outs[i] = s
		}()
	}
	wg.Wait()
	for i, s := range outs {
		if s == nil || !s.Success {
			t.Fatalf("run %d did not succeed", i)
		}
	}
	bin, err := afero.ReadFile(fsys, "/proj/.build/app")
	if err != nil {
		t.Fatalf("artifact missing: %s", err)
	}
	if !strings.HasPrefix(string(bin), "ART:") {
		t.Errorf("artifact corrupted: %q", bin)
	}
}
