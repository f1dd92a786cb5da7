// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/resolve"
)

// registryFromEnv builds the registry capability for this invocation.
// The hosted registry client lives outside the core; what the tool
// ships is a directory-backed registry (CLYDE_REGISTRY pointing at a
// tree of <name>/<version>.tar.gz release tarballs), which is also
// what integration environments use.
func registryFromEnv(fsys afero.Fs) (resolve.Registry, error) {
	dir := os.Getenv("CLYDE_REGISTRY")
	return &dirRegistry{fsys: fsys, dir: dir}, nil
}

// dirRegistry serves releases from a local directory tree.
type dirRegistry struct {
	fsys afero.Fs
	dir  string
}

func (r *dirRegistry) path(name string) string {
	return filepath.Join(r.dir, filepath.FromSlash(name))
}

func (r *dirRegistry) ListVersions(_ context.Context, name string) ([]manifest.Version, error) {
	if r.dir == "" {
		return nil, fmt.Errorf("no registry configured; set CLYDE_REGISTRY or use path: requirements")
	}
	entries, err := afero.ReadDir(r.fsys, r.path(name))
	if err != nil {
		return nil, fmt.Errorf("package %q is not in the registry", name)
	}
	var out []manifest.Version
	for _, e := range entries {
		base := e.Name()
		if e.IsDir() || !strings.HasSuffix(base, ".tar.gz") {
			continue
		}
		v, err := manifest.ParseVersion(strings.TrimSuffix(base, ".tar.gz"))
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *dirRegistry) Fetch(_ context.Context, name string, version manifest.Version) (io.ReadCloser, error) {
	if r.dir == "" {
		return nil, fmt.Errorf("no registry configured; set CLYDE_REGISTRY or use path: requirements")
	}
	return r.fsys.Open(filepath.Join(r.path(name), version.String()+".tar.gz"))
}

func (r *dirRegistry) FetchRef(_ context.Context, name, ref string) (io.ReadCloser, error) {
	if r.dir == "" {
		return nil, fmt.Errorf("no registry configured; set CLYDE_REGISTRY or use path: requirements")
	}
	return r.fsys.Open(filepath.Join(r.path(name), "refs", ref+".tar.gz"))
}
