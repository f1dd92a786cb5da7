// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache implements the content-addressed two-tier build cache:
// compiled objects and linked artifacts, keyed by SHA-256 over a
// versioned canonical serialization of their inputs.
//
// Writes go to a unique temp name and are renamed onto the final path,
// so concurrent builds producing the same key race benignly: the
// loser's rename replaces the winner's byte-identical file. Reads are
// lock-free.
package cache

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	fsutil "github.com/igutekunst/clydepm/internal/fs"
)

const (
	objectsDir   = "objects"
	artifactsDir = "artifacts"
	packagesDir  = "packages"
	indexName    = "index.json"
)

// Cache is the on-disk store. Methods classify their own failures; no
// cache operation fails a build.
type Cache struct {
	fsys afero.Fs
	root string
	log  *zap.Logger
}

// Open prepares the cache layout beneath root.
func Open(fsys afero.Fs, root string, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, d := range []string{objectsDir, artifactsDir, packagesDir} {
		if err := fsutil.EnsureDir(fsys, filepath.Join(root, d)); err != nil {
			return nil, errors.Wrapf(err, "preparing cache at %s", root)
		}
	}
	return &Cache{fsys: fsys, root: root, log: log}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// PackagesDir returns the materialized-package store directory, shared
// with the resolver.
func (c *Cache) PackagesDir() string { return filepath.Join(c.root, packagesDir) }

// shard lays out entries as <tier>/<aa>/<rest-of-hash><ext>.
func (c *Cache) shard(tier string, k Key, ext string) string {
	hexed := k.String()
	return filepath.Join(c.root, tier, hexed[:2], hexed[2:]+ext)
}

// ObjectPath returns the object file location for k, whether or not it
// is present.
func (c *Cache) ObjectPath(k Key) string { return c.shard(objectsDir, k, ".o") }

// GetObject retrieves a cached object. Read failures are downgraded to
// a miss and logged.
func (c *Cache) GetObject(k Key) ([]byte, bool) {
	path := c.ObjectPath(k)
	data, err := afero.ReadFile(c.fsys, path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("object cache read failed, treating as miss",
				zap.String("key", k.String()), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// PutObject stores object bytes under k. Errors are returned for
// logging but must not fail the build.
func (c *Cache) PutObject(k Key, data []byte) error {
	if err := fsutil.WriteFileAtomic(c.fsys, c.ObjectPath(k), data, 0o644); err != nil {
		return &CacheError{Class: WriteFailure, Key: k, cause: err}
	}
	c.writeIndex()
	return nil
}

// A BundleFile is one entry of an artifact bundle, mode preserved.
type BundleFile struct {
	Name string
	Mode os.FileMode
	Body []byte
}

// An ArtifactBundle is the artifact-tier value: the linked artifact
// plus the package's public headers.
type ArtifactBundle struct {
	Files []BundleFile
}

// ArtifactPath returns the bundle location for k.
func (c *Cache) ArtifactPath(k Key) string { return c.shard(artifactsDir, k, ".tar") }

// GetArtifact retrieves and decodes a cached bundle. A bundle that
// fails to parse is purged and reported as a miss.
func (c *Cache) GetArtifact(k Key) (*ArtifactBundle, bool) {
	path := c.ArtifactPath(k)
	data, err := afero.ReadFile(c.fsys, path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("artifact cache read failed, treating as miss",
				zap.String("key", k.String()), zap.Error(err))
		}
		return nil, false
	}
	bundle, err := decodeBundle(data)
	if err != nil {
		c.log.Warn("purging corrupt artifact cache entry",
			zap.String("key", k.String()), zap.Error(err))
		c.fsys.Remove(path)
		return nil, false
	}
	return bundle, true
}

// PutArtifact stores a bundle under k.
func (c *Cache) PutArtifact(k Key, bundle *ArtifactBundle) error {
	data, err := encodeBundle(bundle)
	if err != nil {
		return &CacheError{Class: WriteFailure, Key: k, cause: err}
	}
	if err := fsutil.WriteFileAtomic(c.fsys, c.ArtifactPath(k), data, 0o644); err != nil {
		return &CacheError{Class: WriteFailure, Key: k, cause: err}
	}
	c.writeIndex()
	return nil
}

func encodeBundle(b *ArtifactBundle) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range b.Files {
		if err := tw.WriteHeader(&tar.Header{
			Name:     filepath.ToSlash(f.Name),
			Mode:     int64(f.Mode.Perm()),
			Size:     int64(len(f.Body)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(f.Body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBundle(data []byte) (*ArtifactBundle, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	var b ArtifactBundle
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		b.Files = append(b.Files, BundleFile{
			Name: filepath.FromSlash(hdr.Name),
			Mode: os.FileMode(hdr.Mode).Perm(),
			Body: body,
		})
	}
	if len(b.Files) == 0 {
		return nil, errors.New("bundle holds no files")
	}
	return &b, nil
}

// Extract writes a bundle's files beneath dir.
func (b *ArtifactBundle) Extract(fsys afero.Fs, dir string) error {
	for _, f := range b.Files {
		target := filepath.Join(dir, f.Name)
		if err := fsutil.WriteFileAtomic(fsys, target, f.Body, f.Mode); err != nil {
			return err
		}
	}
	return nil
}

// Tier names one of the two cache tiers.
type Tier uint8

const (
	ObjectTier Tier = iota
	ArtifactTier
)

func (t Tier) String() string {
	if t == ObjectTier {
		return "object"
	}
	return "artifact"
}

// An Entry describes one cache file for enumeration and eviction.
type Entry struct {
	Tier Tier
	Key  Key
	Size int64
	Path string
}

// Enumerate lists entries matching filter (nil matches everything),
// sorted by key within each tier.
func (c *Cache) Enumerate(filter func(Entry) bool) ([]Entry, error) {
	var out []Entry
	for _, tier := range []Tier{ObjectTier, ArtifactTier} {
		dir := filepath.Join(c.root, objectsDir)
		ext := ".o"
		if tier == ArtifactTier {
			dir = filepath.Join(c.root, artifactsDir)
			ext = ".tar"
		}
		err := afero.Walk(c.fsys, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return err
			}
			shardName := filepath.Base(filepath.Dir(path))
			base := filepath.Base(path)
			if filepath.Ext(base) != ext {
				return nil
			}
			k, kerr := ParseKey(shardName + base[:len(base)-len(ext)])
			if kerr != nil {
				return nil
			}
			e := Entry{Tier: tier, Key: k, Size: info.Size(), Path: path}
			if filter == nil || filter(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// index is the summary written to index.json after mutations.
type index struct {
	Format    int    `json:"format"`
	Objects   int    `json:"objects"`
	Artifacts int    `json:"artifacts"`
	Updated   string `json:"updated"`
}

// writeIndex refreshes index.json. Best effort: a failed index write
// never surfaces past a log line.
func (c *Cache) writeIndex() {
	entries, err := c.Enumerate(nil)
	if err != nil {
		c.log.Debug("index refresh skipped", zap.Error(err))
		return
	}
	idx := index{Format: int(keyFormatVersion), Updated: time.Now().UTC().Format(time.RFC3339)}
	for _, e := range entries {
		if e.Tier == ObjectTier {
			idx.Objects++
		} else {
			idx.Artifacts++
		}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return
	}
	if err := fsutil.WriteFileAtomic(c.fsys, filepath.Join(c.root, indexName), data, 0o644); err != nil {
		c.log.Debug("index write failed", zap.Error(err))
	}
}
