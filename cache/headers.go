// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// headerExts are the extensions swept by the conservative strategy.
var headerExts = map[string]bool{
	".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".inc": true,
}

// HeaderClosure resolves the header set participating in an object
// key. Two strategies:
//
// Accurate: when a depfile from a previous compile of this unit
// exists, its entries (filtered to the visible include directories)
// are the exact transitive closure, and the second build's lookup is
// promoted to the accurate key.
//
// Conservative: with no depfile (always the case on a first build),
// every header beneath every visible include directory participates.
// Over-approximate, but never stale.
//
// Paths are recorded relative to their include directory, prefixed by
// its position in the include order, so keys do not depend on where a
// build tree happens to live.
func HeaderClosure(fsys afero.Fs, depfile string, includeDirs []string) ([]HeaderInput, error) {
	if depfile != "" {
		if data, err := afero.ReadFile(fsys, depfile); err == nil {
			return closureFromDepfile(fsys, data, includeDirs)
		}
	}
	return closureFromSweep(fsys, includeDirs)
}

func closureFromDepfile(fsys afero.Fs, data []byte, includeDirs []string) ([]HeaderInput, error) {
	var out []HeaderInput
	for _, dep := range ParseDepfile(data) {
		norm, ok := normalizeHeaderPath(dep, includeDirs)
		if !ok {
			// Outside the project and its dependencies: system headers
			// are covered by the compiler identity in the key.
			continue
		}
		content, err := afero.ReadFile(fsys, dep)
		if err != nil {
			return nil, err
		}
		out = append(out, HeaderInput{Path: norm, Content: content})
	}
	sortHeaders(out)
	return out, nil
}

func closureFromSweep(fsys afero.Fs, includeDirs []string) ([]HeaderInput, error) {
	var out []HeaderInput
	for i, dir := range includeDirs {
		prefix := shardPrefix(i)
		err := afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() || !headerExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, rerr := filepath.Rel(dir, path)
			if rerr != nil {
				return rerr
			}
			content, rerr := afero.ReadFile(fsys, path)
			if rerr != nil {
				return rerr
			}
			out = append(out, HeaderInput{Path: prefix + filepath.ToSlash(rel), Content: content})
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	sortHeaders(out)
	return out, nil
}

func normalizeHeaderPath(path string, includeDirs []string) (string, bool) {
	clean := filepath.Clean(path)
	for i, dir := range includeDirs {
		rel, err := filepath.Rel(dir, clean)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return shardPrefix(i) + filepath.ToSlash(rel), true
	}
	return "", false
}

func shardPrefix(i int) string {
	return "i" + strconv.Itoa(i) + ":"
}

func sortHeaders(hs []HeaderInput) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Path < hs[j].Path })
}
