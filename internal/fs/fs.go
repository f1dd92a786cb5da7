// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fs provides filesystem helpers shared by the cache and
// resolver, written against afero so callers can run on an in-memory
// filesystem in tests.
package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// IsDir is true if name exists and is a directory.
func IsDir(fsys afero.Fs, name string) (bool, error) {
	fi, err := fsys.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, errors.Errorf("%q is not a directory", name)
	}
	return true, nil
}

// IsRegular is true if name exists and is a regular file.
func IsRegular(fsys afero.Fs, name string) (bool, error) {
	fi, err := fsys.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if fi.IsDir() {
		return false, errors.Errorf("%q is a directory, should be a file", name)
	}
	return true, nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(fsys afero.Fs, dir string) error {
	return fsys.MkdirAll(dir, 0o755)
}

// WriteFileAtomic writes data to path by writing a uniquely named
// sibling temp file and renaming it into place. The rename makes
// concurrent writers of identical content race benignly: the loser
// replaces the winner's byte-identical file.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(fsys, dir); err != nil {
		return err
	}
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Chmod(tmpName, mode); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	return nil
}

// RenameDirInto renames src onto dst, treating an already-present dst
// as success: the content under a given key is immutable, so whoever
// got there first wrote the same bytes.
func RenameDirInto(fsys afero.Fs, src, dst string) error {
	if err := EnsureDir(fsys, filepath.Dir(dst)); err != nil {
		return err
	}
	if err := fsys.Rename(src, dst); err != nil {
		if ok, derr := IsDir(fsys, dst); derr == nil && ok {
			fsys.RemoveAll(src)
			return nil
		}
		return err
	}
	return nil
}

// CopyFile copies a single regular file, preserving its mode.
func CopyFile(fsys afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fsys, src)
	if err != nil {
		return err
	}
	fi, err := fsys.Stat(src)
	if err != nil {
		return err
	}
	if err := EnsureDir(fsys, filepath.Dir(dst)); err != nil {
		return err
	}
	return afero.WriteFile(fsys, dst, data, fi.Mode().Perm())
}

// CopyDir recursively copies the tree rooted at src beneath dst.
func CopyDir(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsys.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			// Symlinks and specials have no place in a package tree.
			return fmt.Errorf("%s: unsupported file type %s", path, info.Mode())
		}
		return CopyFile(fsys, path, target)
	})
}
