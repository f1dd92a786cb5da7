// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	fsutil "github.com/igutekunst/clydepm/internal/fs"
	"github.com/igutekunst/clydepm/manifest"
)

// Registry is the package source capability. The core treats it as a
// black box returning package sources; authentication, discovery, and
// transport live behind it.
type Registry interface {
	// ListVersions enumerates the published versions of name.
	ListVersions(ctx context.Context, name string) ([]manifest.Version, error)
	// Fetch returns a gzipped tarball of the package's source tree.
	Fetch(ctx context.Context, name string, version manifest.Version) (io.ReadCloser, error)
	// FetchRef returns a tarball of the tree pinned at an opaque ref,
	// for git: constraints.
	FetchRef(ctx context.Context, name, ref string) (io.ReadCloser, error)
}

// refSanitizer folds ref strings into safe path components.
var refSanitizer = strings.NewReplacer("/", "-", ":", "-", "\\", "-", " ", "-")

// Store materializes fetched packages beneath the cache's packages/
// directory. Extraction goes to a unique temp directory first and is
// renamed into place, so two concurrent builds materializing the same
// package race benignly.
type Store struct {
	fsys afero.Fs
	root string // <cache-root>/packages
}

// NewStore returns a Store rooted at root on fsys.
func NewStore(fsys afero.Fs, root string) *Store {
	return &Store{fsys: fsys, root: root}
}

// Dir returns the store path for (name, version) without checking
// whether it is materialized.
func (s *Store) Dir(name string, version manifest.Version) string {
	return filepath.Join(s.root, filepath.FromSlash(name), version.String())
}

// RefDir returns the store path for a ref-pinned fetch.
func (s *Store) RefDir(name, ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(name), "git-"+refSanitizer.Replace(ref))
}

// Materialize extracts a fetched tarball into dst unless something is
// already there, and returns the package root.
func (s *Store) Materialize(dst string, rc io.ReadCloser) (string, error) {
	defer rc.Close()
	if ok, err := fsutil.IsDir(s.fsys, dst); err != nil {
		return "", err
	} else if ok {
		// Another build won the race; their bytes are ours.
		io.Copy(io.Discard, rc)
		return dst, nil
	}

	tmp, err := afero.TempDir(s.fsys, s.root, ".fetch")
	if err != nil {
		return "", errors.Wrap(err, "creating extraction dir")
	}
	if err := extractTarball(s.fsys, tmp, rc); err != nil {
		s.fsys.RemoveAll(tmp)
		return "", err
	}
	if err := fsutil.RenameDirInto(s.fsys, tmp, dst); err != nil {
		s.fsys.RemoveAll(tmp)
		return "", errors.Wrapf(err, "installing package at %s", dst)
	}
	return dst, nil
}

func extractTarball(fsys afero.Fs, dst string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "opening tarball")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tarball")
		}
		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if name == "." {
			continue
		}
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return errors.Errorf("tarball entry escapes package root: %q", hdr.Name)
		}
		target := filepath.Join(dst, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			if err := fsutil.EnsureDir(fsys, filepath.Dir(target)); err != nil {
				return err
			}
			mode := hdr.FileInfo().Mode().Perm()
			if err := afero.WriteFile(fsys, target, data, mode); err != nil {
				return err
			}
		default:
			// Links and specials are dropped; package trees are plain
			// files and directories.
		}
	}
}
