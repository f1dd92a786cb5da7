// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clydepm ties the pipeline together: manifest parsing,
// dependency resolution, build planning, cached compilation, and
// execution, behind a small tool context.
package clydepm

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/igutekunst/clydepm/cache"
	"github.com/igutekunst/clydepm/hooks"
	"github.com/igutekunst/clydepm/resolve"
)

// cacheDirName is the directory beneath the user cache root holding
// everything this tool stores.
const cacheDirName = "clydepm"

// Ctx defines the supporting context of the tool: filesystem, cache
// location, logging, and the hook bus shared across one invocation.
type Ctx struct {
	Fs        afero.Fs
	CacheRoot string
	Log       *zap.Logger
	Bus       *hooks.Bus
}

// NewContext discovers the environment. The cache root honors
// CLYDE_CACHE_ROOT, then XDG_CACHE_HOME, then the platform user cache
// directory.
func NewContext(log *zap.Logger) (*Ctx, error) {
	if log == nil {
		log = zap.NewNop()
	}
	root := os.Getenv("CLYDE_CACHE_ROOT")
	if root == "" {
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			root = filepath.Join(xdg, cacheDirName)
		}
	}
	if root == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "locating user cache directory")
		}
		root = filepath.Join(base, cacheDirName)
	}
	return &Ctx{
		Fs:        afero.NewOsFs(),
		CacheRoot: root,
		Log:       log,
		Bus:       hooks.NewBus(log),
	}, nil
}

// OpenCache prepares the two-tier cache beneath the context's root.
func (c *Ctx) OpenCache() (*cache.Cache, error) {
	return cache.Open(c.Fs, c.CacheRoot, c.Log.Named("cache"))
}

// PackageStore returns the materialized-package store shared by the
// resolver and the cache layout.
func (c *Ctx) PackageStore() *resolve.Store {
	return resolve.NewStore(c.Fs, filepath.Join(c.CacheRoot, "packages"))
}

// Resolver wires a resolver against the given registry.
func (c *Ctx) Resolver(reg resolve.Registry) *resolve.Resolver {
	return resolve.NewResolver(c.Fs, reg, c.PackageStore(), c.Bus, c.Log.Named("resolve"))
}
