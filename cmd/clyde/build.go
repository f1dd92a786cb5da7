// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/igutekunst/clydepm"
	"github.com/igutekunst/clydepm/build"
	"github.com/igutekunst/clydepm/plan"
	"github.com/igutekunst/clydepm/toolchain"
)

type buildCommand struct {
	jobs     int
	failFast bool
	timeout  time.Duration
	compiler string
	traits   traitFlags
}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) Args() string      { return "[path]" }
func (c *buildCommand) ShortHelp() string { return "Resolve, plan, and build the project" }
func (c *buildCommand) LongHelp() string {
	return `Build resolves the project's dependency graph, computes a build plan,
and drives it through the compiler, consulting the object and artifact
caches before every toolchain invocation.`
}

func (c *buildCommand) Register(fs *flag.FlagSet) {
	fs.IntVar(&c.jobs, "j", runtime.NumCPU(), "number of parallel compiler processes")
	fs.BoolVar(&c.failFast, "fail-fast", false, "stop scheduling new steps after the first failure")
	fs.DurationVar(&c.timeout, "step-timeout", 0, "per-step timeout (0 disables)")
	fs.StringVar(&c.compiler, "cc", "", "compiler binary to drive (default: cc)")
	fs.Var(&c.traits, "trait", "key=value trait selecting variant flags (repeatable)")
}

func (c *buildCommand) Run(args []string) error {
	log := newLogger()
	ctx, err := clydepm.NewContext(log)
	if err != nil {
		return err
	}

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	root, err := ctx.LoadProject(path)
	if err != nil {
		return err
	}

	// Cancellation is cooperative: first signal drains in-flight
	// compiles, second signal is the default handler.
	runCtx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		signal.Stop(sig)
	}()
	defer cancel()

	reg, err := registryFromEnv(ctx.Fs)
	if err != nil {
		return err
	}
	graph, err := ctx.Resolver(reg).Resolve(runCtx, root)
	if err != nil {
		return err
	}

	driver := &toolchain.GccDriver{Binary: c.compiler}
	info, err := driver.Probe(runCtx)
	if err != nil {
		return err
	}

	cacheStore, err := ctx.OpenCache()
	if err != nil {
		return err
	}
	p, err := plan.Plan(runCtx, ctx.Fs, graph, info, ctx.Bus, log.Named("plan"), plan.Options{
		Traits: c.traits.m,
	})
	if err != nil {
		return err
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	exec := build.NewExecutor(ctx.Fs, cacheStore, driver, ctx.Bus, log.Named("build"), build.Options{
		Parallelism: c.jobs,
		FailFast:    c.failFast,
		StepTimeout: c.timeout,
	})
	summary, err := exec.Execute(runCtx, p)
	if err != nil {
		return err
	}
	fmt.Println(summary.Format())
	if !summary.Success {
		return &buildFailedError{summary: summary}
	}
	return nil
}

// traitFlags accumulates repeated -trait key=value arguments.
type traitFlags struct{ m map[string]string }

func (t *traitFlags) String() string {
	var parts []string
	for k, v := range t.m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (t *traitFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("trait %q is not of the form key=value", s)
	}
	if t.m == nil {
		t.m = make(map[string]string)
	}
	t.m[k] = v
	return nil
}
