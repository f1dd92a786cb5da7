// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clydepm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/resolve"
)

var errProjectNotFound = fmt.Errorf("could not find a %s in this or any parent directory", manifest.ManifestName)

// findProjectRoot searches from the starting directory upwards for a
// manifest file until the filesystem root.
func findProjectRoot(fsys afero.Fs, from string) (string, error) {
	for {
		for _, name := range []string{manifest.ManifestName, manifest.AltManifestName} {
			_, err := fsys.Stat(filepath.Join(from, name))
			if err == nil {
				return from, nil
			}
			if !os.IsNotExist(err) {
				return "", err
			}
		}
		parent := filepath.Dir(from)
		if parent == from {
			return "", errProjectNotFound
		}
		from = parent
	}
}

// LoadProject locates and loads the root package. With an empty path
// the search starts at the working directory and walks upward.
func (c *Ctx) LoadProject(path string) (*resolve.Package, error) {
	from := path
	if from == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		from = wd
	}
	abs, err := filepath.Abs(from)
	if err != nil {
		return nil, err
	}
	root, err := findProjectRoot(c.Fs, abs)
	if err != nil {
		return nil, err
	}
	pkg, err := resolve.LoadPackage(c.Fs, root)
	if err != nil {
		return nil, err
	}
	for _, w := range pkg.Manifest.Warnings {
		c.Log.Warn(w)
	}
	return pkg, nil
}
