// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command clyde is a thin front-end over the build core: it resolves,
// plans, and executes builds of C and C++ packages described by
// package.yml manifests.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/igutekunst/clydepm/build"
	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/plan"
	"github.com/igutekunst/clydepm/resolve"
	"github.com/igutekunst/clydepm/toolchain"
)

// Exit codes of the tool.
const (
	exitSuccess      = 0
	exitGeneric      = 1
	exitBadInput     = 2
	exitBuildFailed  = 3
	exitResolveError = 4
)

type command interface {
	Name() string           // "build"
	Args() string           // "[path]"
	ShortHelp() string      // "Build the current project"
	LongHelp() string
	Register(*flag.FlagSet) // command-specific flags
	Run([]string) error
}

var verbose = flag.Bool("v", false, "enable verbose logging")

func main() {
	commands := []command{
		&buildCommand{},
		&resolveCommand{},
		&cacheCommand{},
		&versionCommand{},
	}

	usage := func() {
		fmt.Fprintln(os.Stderr, "Usage: clyde <command>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr)
		w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
		}
		w.Flush()
		fmt.Fprintln(os.Stderr)
	}

	if len(os.Args) <= 1 || isHelpArg(os.Args[1]) {
		usage()
		os.Exit(exitBadInput)
	}

	for _, cmd := range commands {
		if os.Args[1] != cmd.Name() {
			continue
		}
		fs := flag.NewFlagSet(cmd.Name(), flag.ExitOnError)
		fs.BoolVar(verbose, "v", false, "enable verbose logging")
		cmd.Register(fs)
		fs.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: clyde %s %s\n\n%s\n", cmd.Name(), cmd.Args(), strings.TrimSpace(cmd.LongHelp()))
		}
		if err := fs.Parse(os.Args[2:]); err != nil {
			os.Exit(exitBadInput)
		}
		if err := cmd.Run(fs.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(exitCodeFor(err))
		}
		return
	}

	fmt.Fprintf(os.Stderr, "clyde: no such command %q\n", os.Args[1])
	usage()
	os.Exit(exitBadInput)
}

func isHelpArg(a string) bool {
	a = strings.ToLower(a)
	return a == "-h" || a == "--help" || a == "help"
}

// exitCodeFor maps the error taxonomy onto the documented exit codes.
// Typed errors may arrive wrapped with context; the first one in the
// chain that the taxonomy knows decides.
func exitCodeFor(err error) int {
	for ; err != nil; err = errors.Unwrap(err) {
		switch err.(type) {
		case *manifest.ManifestError, *manifest.ConstraintParseError, *manifest.VersionParseError:
			return exitBadInput
		case *resolve.NoCompatibleVersionError, *resolve.VersionConflictError,
			*resolve.CircularDependencyError, *resolve.FetchFailedError:
			return exitResolveError
		case *plan.PlanError:
			return exitBuildFailed
		case *build.CompileFailedError, *build.LinkFailedError, *build.StepTimeoutError:
			return exitBuildFailed
		case *toolchain.ProbeError, *toolchain.InvocationError:
			return exitGeneric
		case *buildFailedError:
			return exitBuildFailed
		}
	}
	return exitGeneric
}

// buildFailedError wraps an unsuccessful summary so Run can signal it
// through the error return.
type buildFailedError struct{ summary *build.Summary }

func (e *buildFailedError) Error() string { return e.summary.Format() }

func newLogger() *zap.Logger {
	if !*verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
