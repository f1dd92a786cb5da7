// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"io"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// lockCacheRoot takes the exclusive process lock guarding deletion.
// Reads and writes are lock-free (rename-atomic); only eviction needs
// to exclude other processes. Swapped out in tests running on an
// in-memory filesystem.
var lockCacheRoot = func(root string) (io.Closer, error) {
	fl := flock.New(filepath.Join(root, ".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("cache at %s is locked by another process", root)
	}
	return lockCloser{fl}, nil
}

type lockCloser struct{ fl *flock.Flock }

func (l lockCloser) Close() error { return l.fl.Unlock() }

// Evict removes every entry matching predicate (nil matches all) and
// reports how many were removed. The cache root is exclusively locked
// for the duration.
func (c *Cache) Evict(predicate func(Entry) bool) (int, error) {
	unlock, err := lockCacheRoot(c.root)
	if err != nil {
		return 0, err
	}
	defer unlock.Close()

	entries, err := c.Enumerate(predicate)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := c.fsys.Remove(e.Path); err != nil {
			return removed, errors.Wrapf(err, "evicting %s", e.Path)
		}
		removed++
	}
	c.writeIndex()
	return removed, nil
}
