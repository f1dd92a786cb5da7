// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve turns a root manifest into a fully materialized
// dependency graph by fetching and recursively resolving requirements.
package resolve

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/manifest"
)

// Origin records where a resolved package's sources came from.
type Origin uint8

const (
	// OriginLocal packages live at a user-provided path and are never
	// copied.
	OriginLocal Origin = iota
	// OriginRemote packages were fetched from the registry into the
	// package store.
	OriginRemote
	// OriginGitRef packages were fetched pinned to an opaque ref.
	OriginGitRef
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginGitRef:
		return "git"
	}
	return fmt.Sprintf("Origin(%d)", uint8(o))
}

// A Package is a manifest plus the filesystem root holding its
// sources. Constructed by the resolver exactly once per (name,
// version) per resolution.
type Package struct {
	Manifest *manifest.Manifest
	Root     string
	Origin   Origin
	Ref      string // pinned ref for OriginGitRef packages
}

// Name returns the manifest name.
func (p *Package) Name() string { return p.Manifest.Name }

// Version returns the manifest version.
func (p *Package) Version() manifest.Version { return p.Manifest.Version }

// ID renders the package's (name, version) identity.
func (p *Package) ID() string {
	return p.Manifest.Name + "@" + p.Manifest.Version.String()
}

// IncludeDir returns the package's public header directory.
func (p *Package) IncludeDir() string { return filepath.Join(p.Root, "include") }

// PrivateIncludeDir returns the package's private header directory.
func (p *Package) PrivateIncludeDir() string {
	return filepath.Join(p.Root, "private_include")
}

// LoadPackage reads a package rooted at dir: package.yml primary,
// config.yaml accepted as the historical alias. When both are present
// package.yml wins and the alias is recorded as a manifest warning.
func LoadPackage(fsys afero.Fs, dir string) (*Package, error) {
	primary := filepath.Join(dir, manifest.ManifestName)
	alt := filepath.Join(dir, manifest.AltManifestName)

	path := primary
	havePrimary, err := afero.Exists(fsys, primary)
	if err != nil {
		return nil, err
	}
	haveAlt, err := afero.Exists(fsys, alt)
	if err != nil {
		return nil, err
	}
	switch {
	case havePrimary:
	case haveAlt:
		path = alt
	default:
		return nil, errors.Errorf("no %s or %s in %s", manifest.ManifestName, manifest.AltManifestName, dir)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if havePrimary && haveAlt {
		m.Warnings = append(m.Warnings, fmt.Sprintf("both %s and %s present; using %s",
			manifest.ManifestName, manifest.AltManifestName, manifest.ManifestName))
	}
	return &Package{Manifest: m, Root: dir, Origin: OriginLocal}, nil
}
