// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/resolve"
)

// includeOrder computes a package's resolved include path list: its
// own public and private include directories first, then the public
// include directory of each transitive dependency in graph order:
// direct dependencies before transitive ones, deduplicated by first
// occurrence.
//
// A library dependency missing its public include directory is a
// fatal plan error; the package's own directories are optional except
// for libraries, which must export something.
func includeOrder(fsys afero.Fs, g *resolve.Graph, id resolve.NodeID) ([]string, error) {
	p := g.Package(id)
	var dirs []string
	seen := map[string]bool{}
	add := func(d string) {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	ownInclude := p.IncludeDir()
	ownOK, err := afero.DirExists(fsys, ownInclude)
	if err != nil {
		return nil, err
	}
	if ownOK {
		add(ownInclude)
	} else if p.Manifest.Type == manifest.Library {
		return nil, &PlanError{Kind: MissingIncludeDirectory, Package: p.ID(),
			Detail: fmt.Sprintf("library exports no %s directory", ownInclude)}
	}
	if ok, _ := afero.DirExists(fsys, p.PrivateIncludeDir()); ok {
		add(p.PrivateIncludeDir())
	}

	for _, depID := range g.TransitiveDependencies(id) {
		dep := g.Package(depID)
		inc := dep.IncludeDir()
		ok, err := afero.DirExists(fsys, inc)
		if err != nil {
			return nil, err
		}
		if !ok {
			if dep.Manifest.Type == manifest.Library {
				return nil, &PlanError{Kind: MissingIncludeDirectory, Package: p.ID(),
					Detail: fmt.Sprintf("dependency %s exports no %s directory", dep.ID(), inc)}
			}
			continue
		}
		add(inc)
	}
	return dirs, nil
}

// hygieneWarnings checks that the package's public headers are
// namespaced beneath include/<name>/. Violations are reported, never
// fatal: the consumer-side include order still works, it is the
// package's own users who risk collisions.
func hygieneWarnings(fsys afero.Fs, p *resolve.Package) []string {
	inc := p.IncludeDir()
	entries, err := afero.ReadDir(fsys, inc)
	if err != nil {
		return nil
	}
	expected := filepath.FromSlash(p.Name())
	var warnings []string
	for _, e := range entries {
		if e.IsDir() && e.Name() == firstComponent(expected) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"%s: public header %q is not namespaced under include/%s/",
			p.ID(), e.Name(), p.Name()))
	}
	return warnings
}

func firstComponent(path string) string {
	for i := 0; i < len(path); i++ {
		if os.IsPathSeparator(path[i]) {
			return path[:i]
		}
	}
	return path
}
