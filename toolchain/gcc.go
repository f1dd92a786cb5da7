// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toolchain

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/igutekunst/clydepm/manifest"
)

// GccDriver drives a GCC-compatible compiler (gcc or clang) through
// its command line, and `ar` for static archives.
type GccDriver struct {
	// Binary is the compiler to invoke; defaults to "cc".
	Binary string
	// Ar is the archiver; defaults to "ar".
	Ar string

	probeOnce sync.Once
	info      CompilerInfo
	probeErr  error
}

var _ Driver = (*GccDriver)(nil)

func (d *GccDriver) binary() string {
	if d.Binary == "" {
		return "cc"
	}
	return d.Binary
}

func (d *GccDriver) archiver() string {
	if d.Ar == "" {
		return "ar"
	}
	return d.Ar
}

// Probe interrogates the compiler once per process: its version, its
// target triple, and which flag family it speaks. A probe failure is
// fatal to the build and is returned on every subsequent call.
func (d *GccDriver) Probe(ctx context.Context) (CompilerInfo, error) {
	d.probeOnce.Do(func() {
		d.info, d.probeErr = d.probe(ctx)
	})
	return d.info, d.probeErr
}

func (d *GccDriver) probe(ctx context.Context) (CompilerInfo, error) {
	version, err := d.capture(ctx, "-dumpversion")
	if err != nil {
		return CompilerInfo{}, &ProbeError{Binary: d.binary(), cause: err}
	}
	target, err := d.capture(ctx, "-dumpmachine")
	if err != nil {
		return CompilerInfo{}, &ProbeError{Binary: d.binary(), cause: err}
	}
	banner, err := d.capture(ctx, "--version")
	if err != nil {
		return CompilerInfo{}, &ProbeError{Binary: d.binary(), cause: err}
	}
	family := "gcc"
	if strings.Contains(strings.ToLower(banner), "clang") {
		family = "clang"
	}
	return CompilerInfo{
		Name:    d.binary(),
		Version: strings.TrimSpace(version),
		Target:  strings.TrimSpace(target),
		Family:  family,
	}, nil
}

func (d *GccDriver) capture(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary(), args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "%s %s", d.binary(), strings.Join(args, " "))
	}
	return out.String(), nil
}

func languageFlag(l manifest.Language) string {
	if l == manifest.Cpp {
		return "c++"
	}
	return "c"
}

// Compile runs one translation unit. A non-zero compiler exit with
// parseable error diagnostics is a compile failure, reported through
// the result; only invocation-level problems (missing binary, signal,
// context cancellation) surface as errors.
func (d *GccDriver) Compile(ctx context.Context, job CompileJob) (CompileResult, error) {
	if err := os.MkdirAll(filepath.Dir(job.Object), 0o755); err != nil {
		return CompileResult{}, errors.Wrap(err, "creating object directory")
	}

	args := []string{"-x", languageFlag(job.Language), "-c"}
	for _, dir := range job.IncludeDirs {
		args = append(args, "-I", dir)
	}
	args = append(args, job.Flags...)
	if job.DepfilePath != "" {
		args = append(args, "-MMD", "-MF", job.DepfilePath)
	}
	args = append(args, "-o", job.Object, job.Source)

	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary(), args...)
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	res := CompileResult{
		Object:      job.Object,
		Diagnostics: ParseDiagnostics(stderr.String()),
		Duration:    time.Since(start),
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exit *exec.ExitError
		if errors.As(runErr, &exit) && exit.ProcessState.Exited() {
			if !res.Failed() {
				// The compiler exited non-zero without a parseable
				// error line; keep its words rather than guessing.
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					File:     job.Source,
					Severity: SeverityError,
					Message:  strings.TrimSpace(stderr.String()),
				})
			}
			return res, nil
		}
		return res, &InvocationError{Binary: d.binary(), cause: runErr}
	}
	return res, nil
}

// Link produces the artifact: `ar rcs` for archives, the compiler
// driver for executables.
func (d *GccDriver) Link(ctx context.Context, job LinkJob) (LinkResult, error) {
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return LinkResult{}, errors.Wrap(err, "creating artifact directory")
	}

	var cmd *exec.Cmd
	if job.Archive {
		// ar appends into an existing archive; start clean.
		if err := os.Remove(job.Output); err != nil && !os.IsNotExist(err) {
			return LinkResult{}, errors.Wrap(err, "removing stale archive")
		}
		args := append([]string{"rcs", job.Output}, job.Objects...)
		cmd = exec.CommandContext(ctx, d.archiver(), args...)
	} else {
		args := append([]string{"-o", job.Output}, job.Objects...)
		args = append(args, job.Archives...)
		args = append(args, job.Flags...)
		cmd = exec.CommandContext(ctx, d.binary(), args...)
	}

	start := time.Now()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	res := LinkResult{
		Artifact: job.Output,
		Output:   stderr.String(),
		Duration: time.Since(start),
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exit *exec.ExitError
		if errors.As(runErr, &exit) && exit.ProcessState.Exited() {
			return res, &LinkFailedError{Artifact: job.Output, Output: stderr.String()}
		}
		return res, &InvocationError{Binary: cmd.Path, cause: runErr}
	}
	return res, nil
}
