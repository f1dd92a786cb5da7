// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan turns a resolved dependency graph into an ordered build
// plan: one compile step per source file, one link step per package,
// output locations beneath the root's .build directory, and
// precomputed object cache keys.
package plan

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/igutekunst/clydepm/cache"
	"github.com/igutekunst/clydepm/hooks"
	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/resolve"
	"github.com/igutekunst/clydepm/toolchain"
)

// A CompileStep compiles one translation unit into one object file.
type CompileStep struct {
	ID          uint64
	PackageID   string
	Source      string
	Object      string
	Depfile     string
	Language    manifest.Language
	Flags       []string
	IncludeDirs []string
	Traits      map[string]string
	// Key is the object-tier cache key, precomputed from the inputs
	// visible at plan time.
	Key cache.Key
}

// A LinkStep produces a package's artifact: a static archive for
// libraries, an executable for applications.
type LinkStep struct {
	ID        uint64
	PackageID string
	Archive   bool
	Artifact  string
	Objects   []string
	// Archives lists the transitive library archives an application
	// links, topologically ordered.
	Archives []string
	Flags    []string
	Language manifest.Language
}

// A PackageBuild groups everything the executor needs for one package.
type PackageBuild struct {
	Node      resolve.NodeID
	Pkg       *resolve.Package
	OutputDir string
	Compiles  []*CompileStep
	Link      *LinkStep
	// DirectDeps lists the package ids of direct dependencies, used
	// for failure containment and artifact-key derivation.
	DirectDeps []string
}

// ID returns the package identity (name@version).
func (pb *PackageBuild) ID() string { return pb.Pkg.ID() }

// A BuildPlan is the ordered output of planning. Packages are in
// dependency-first topological order; within one package the compile
// steps may run in any order but all precede the link step.
type BuildPlan struct {
	Packages []*PackageBuild
	ByID     map[string]*PackageBuild
	Compiler toolchain.CompilerInfo
	Steps    int
	Warnings []string
}

// Options adjust planning.
type Options struct {
	// Traits are caller-supplied key/values overlaid on every
	// package's own traits when selecting variants.
	Traits map[string]string
	// Layout overrides the output root; default <root-pkg>/.build.
	Layout string
}

// Plan computes the build plan for g under the probed compiler. The
// returned plan is self-contained; the graph is not retained.
func Plan(ctx context.Context, fsys afero.Fs, g *resolve.Graph, info toolchain.CompilerInfo, bus *hooks.Bus, log *zap.Logger, opts Options) (*BuildPlan, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := bus.Publish(hooks.PrePlanEvent{Packages: g.Len()}); err != nil {
		return nil, err
	}
	if !SupportedFamily(info.Family) {
		return nil, &PlanError{Kind: UnsupportedCompilerFamily, Detail: info.String()}
	}

	layout := opts.Layout
	if layout == "" {
		layout = filepath.Join(g.Root().Root, ".build")
	}

	p := &BuildPlan{
		ByID:     make(map[string]*PackageBuild),
		Compiler: info,
	}
	var stepID uint64
	nextID := func() uint64 { stepID++; return stepID }

	order := g.TopoOrder()
	var orderIDs []string
	for _, node := range order {
		orderIDs = append(orderIDs, g.Package(node).ID())
	}
	if err := bus.Publish(hooks.BuildOrderComputedEvent{Order: orderIDs}); err != nil {
		return nil, err
	}

	for _, node := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkg := g.Package(node)
		pb := &PackageBuild{
			Node:      node,
			Pkg:       pkg,
			OutputDir: outputDir(layout, g, node),
		}
		for _, depID := range g.Dependencies(node) {
			pb.DirectDeps = append(pb.DirectDeps, g.Package(depID).ID())
		}

		includes, err := includeOrder(fsys, g, node)
		if err != nil {
			return nil, err
		}
		p.Warnings = append(p.Warnings, hygieneWarnings(fsys, pkg)...)

		traits := mergedTraits(pkg.Manifest, opts.Traits)
		depCompile, depLink := inducedFlags(g, node, info.Family)
		cflags := compileFlags(info.Family, pkg.Manifest, traits, depCompile)

		sources, err := expandSources(fsys, pkg.Root, pkg.Manifest.Sources)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return nil, &PlanError{Kind: EmptySources, Package: pkg.ID(),
				Detail: "globs " + strings.Join(pkg.Manifest.Sources, ", ") + " matched no files"}
		}

		objDir := filepath.Join(pb.OutputDir, "obj")
		for _, src := range sources {
			rel, err := filepath.Rel(pkg.Root, src)
			if err != nil {
				return nil, err
			}
			step := &CompileStep{
				ID:          nextID(),
				PackageID:   pkg.ID(),
				Source:      src,
				Object:      filepath.Join(objDir, rel+".o"),
				Depfile:     filepath.Join(objDir, rel+".d"),
				Language:    pkg.Manifest.Language,
				Flags:       cflags,
				IncludeDirs: includes,
				Traits:      traits,
			}
			key, err := objectKey(fsys, step, info)
			if err != nil {
				return nil, err
			}
			step.Key = key
			pb.Compiles = append(pb.Compiles, step)
		}

		pb.Link = &LinkStep{
			ID:        nextID(),
			PackageID: pkg.ID(),
			Language:  pkg.Manifest.Language,
		}
		for _, cs := range pb.Compiles {
			pb.Link.Objects = append(pb.Link.Objects, cs.Object)
		}
		if pkg.Manifest.Type == manifest.Library {
			pb.Link.Archive = true
			pb.Link.Artifact = filepath.Join(pb.OutputDir, "lib"+bareName(pkg.Name())+".a")
		} else {
			pb.Link.Artifact = filepath.Join(pb.OutputDir, bareName(pkg.Name()))
			pb.Link.Flags = linkFlags(info.Family, pkg.Manifest, traits, depLink)
			// Archives are scanned once, left to right, so each library
			// must precede the libraries it depends on: walk the
			// dependency-first order backwards.
			transitive := map[resolve.NodeID]bool{}
			for _, depID := range g.TransitiveDependencies(node) {
				transitive[depID] = true
			}
			for i := len(order) - 1; i >= 0; i-- {
				depID := order[i]
				dep := g.Package(depID)
				if !transitive[depID] || dep.Manifest.Type != manifest.Library {
					continue
				}
				depDir := outputDir(layout, g, depID)
				pb.Link.Archives = append(pb.Link.Archives,
					filepath.Join(depDir, "lib"+bareName(dep.Name())+".a"))
			}
		}

		p.Packages = append(p.Packages, pb)
		p.ByID[pkg.ID()] = pb
		p.Steps += len(pb.Compiles) + 1
	}

	log.Debug("plan computed",
		zap.Int("packages", len(p.Packages)),
		zap.Int("steps", p.Steps),
		zap.Int("warnings", len(p.Warnings)))
	if err := bus.Publish(hooks.PostPlanEvent{
		CompileSteps: p.Steps - len(p.Packages),
		LinkSteps:    len(p.Packages),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// outputDir assigns build locations: the root package builds directly
// beneath the layout root, dependencies beneath deps/<name>.
func outputDir(layout string, g *resolve.Graph, node resolve.NodeID) string {
	if node == g.RootID() {
		return layout
	}
	return filepath.Join(layout, "deps", filepath.FromSlash(g.Package(node).Name()))
}

// bareName strips an @org/ prefix for artifact file names.
func bareName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// inducedFlags derives the flags a package inherits from its
// dependency closure. A C application linking C++ archives needs the
// C++ runtime on GCC-compatible toolchains.
func inducedFlags(g *resolve.Graph, node resolve.NodeID, family string) (compile, link []string) {
	p := g.Package(node)
	if p.Manifest.Language == manifest.Cpp {
		return nil, nil
	}
	for _, depID := range g.TransitiveDependencies(node) {
		if g.Package(depID).Manifest.Language == manifest.Cpp {
			if family == "gcc" || family == "clang" {
				link = []string{"-lstdc++"}
			}
			break
		}
	}
	return nil, link
}

// objectKey derives the step's object cache key from the bytes visible
// at plan time, using the accurate depfile closure when a prior
// compile left one, and the conservative all-headers closure
// otherwise.
func objectKey(fsys afero.Fs, step *CompileStep, info toolchain.CompilerInfo) (cache.Key, error) {
	src, err := afero.ReadFile(fsys, step.Source)
	if err != nil {
		return cache.Key{}, err
	}
	headers, err := cache.HeaderClosure(fsys, step.Depfile, step.IncludeDirs)
	if err != nil {
		return cache.Key{}, err
	}
	normDirs := make([]string, len(step.IncludeDirs))
	for i, d := range step.IncludeDirs {
		normDirs[i] = filepath.ToSlash(filepath.Clean(d))
	}
	return cache.ObjectKey(cache.ObjectKeyInputs{
		SourceBytes: src,
		IncludeDirs: normDirs,
		Headers:     headers,
		Compiler:    info,
		Flags:       step.Flags,
		Language:    step.Language,
		Traits:      step.Traits,
	}), nil
}
