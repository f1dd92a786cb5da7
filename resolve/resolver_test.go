// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/spf13/afero"

	"github.com/igutekunst/clydepm/hooks"
	"github.com/igutekunst/clydepm/manifest"
)

// memRegistry is the in-memory Registry fake: a map from name to
// version to the files of that release.
type memRegistry struct {
	pkgs   map[string]map[string]map[string]string
	refs   map[string]map[string]map[string]string // name → ref → files
	fetched []string                               // name@version fetch log
}

func (r *memRegistry) ListVersions(_ context.Context, name string) ([]manifest.Version, error) {
	rel, ok := r.pkgs[name]
	if !ok {
		return nil, fmt.Errorf("unknown package %q", name)
	}
	var vs []manifest.Version
	for s := range rel {
		vs = append(vs, manifest.MustParseVersion(s))
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].String() < vs[j].String() })
	return vs, nil
}

func (r *memRegistry) Fetch(_ context.Context, name string, version manifest.Version) (io.ReadCloser, error) {
	files, ok := r.pkgs[name][version.String()]
	if !ok {
		return nil, fmt.Errorf("no such release %s@%s", name, version)
	}
	r.fetched = append(r.fetched, name+"@"+version.String())
	return io.NopCloser(bytes.NewReader(mkTarball(files))), nil
}

func (r *memRegistry) FetchRef(_ context.Context, name, ref string) (io.ReadCloser, error) {
	files, ok := r.refs[name][ref]
	if !ok {
		return nil, fmt.Errorf("no such ref %s@%s", name, ref)
	}
	return io.NopCloser(bytes.NewReader(mkTarball(files))), nil
}

func mkTarball(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	var names []string
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		body := files[n]
		tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg})
		tw.Write([]byte(body))
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func libManifest(name, version string, requires map[string]string) string {
	doc := fmt.Sprintf("name: %s\nversion: %s\ntype: library\n", name, version)
	if len(requires) > 0 {
		doc += "requires:\n"
		var names []string
		for n := range requires {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			doc += fmt.Sprintf("  %s: %q\n", n, requires[n])
		}
	}
	return doc
}

func testResolver(t *testing.T, reg Registry) (*Resolver, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store := NewStore(fsys, "/cache/packages")
	return NewResolver(fsys, reg, store, hooks.NewBus(nil), nil), fsys
}

func rootPackage(t *testing.T, fsys afero.Fs, doc string) *Package {
	t.Helper()
	if err := afero.WriteFile(fsys, "/proj/package.yml", []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPackage(fsys, "/proj")
	if err != nil {
		t.Fatalf("LoadPackage: %s", err)
	}
	return p
}

func TestResolveSinglePackage(t *testing.T) {
	r, fsys := testResolver(t, &memRegistry{})
	root := rootPackage(t, fsys, "name: hello\nversion: 0.1.0\ntype: application\nlanguage: c\nsources: [src/main.c]\n")
	g, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	if g.Len() != 1 || g.EdgeCount() != 0 {
		t.Errorf("graph = %d vertices %d edges, want 1 and 0", g.Len(), g.EdgeCount())
	}
	if g.Root().Name() != "hello" {
		t.Errorf("root = %s", g.Root().Name())
	}
}

func TestResolveDiamond(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"liba": {"1.0.0": {"package.yml": libManifest("liba", "1.0.0", map[string]string{"libc": "^1.0.0"})}},
		"libb": {"1.0.0": {"package.yml": libManifest("libb", "1.0.0", map[string]string{"libc": "^1.0.0"})}},
		"libc": {
			"1.0.0": {"package.yml": libManifest("libc", "1.0.0", nil)},
			"1.1.0": {"package.yml": libManifest("libc", "1.1.0", nil)},
		},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"liba": "=1.0.0", "libb": "=1.0.0"}))

	g, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	if g.Len() != 4 {
		t.Errorf("vertex count = %d, want 4 (libc deduplicated)", g.Len())
	}
	if g.EdgeCount() != 4 {
		t.Errorf("edge count = %d, want 4", g.EdgeCount())
	}
	if _, ok := g.Lookup("libc", "1.1.0"); !ok {
		t.Errorf("resolver should select the greatest admitted version libc@1.1.0")
	}
	if _, ok := g.Lookup("libc", "1.0.0"); ok {
		t.Errorf("libc@1.0.0 should not appear in the graph")
	}
}

func TestResolveDeterminism(t *testing.T) {
	mk := func() (*Graph, error) {
		reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
			"liba": {"1.0.0": {"package.yml": libManifest("liba", "1.0.0", map[string]string{"libc": "^1.0.0"})}},
			"libb": {"1.0.0": {"package.yml": libManifest("libb", "1.0.0", map[string]string{"libc": "~1.1.0"})}},
			"libc": {
				"1.0.0": {"package.yml": libManifest("libc", "1.0.0", nil)},
				"1.1.0": {"package.yml": libManifest("libc", "1.1.0", nil)},
				"1.1.5": {"package.yml": libManifest("libc", "1.1.5", nil)},
			},
		}}
		r, fsys := testResolver(t, reg)
		root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"libb": "=1.0.0", "liba": "=1.0.0"}))
		return r.Resolve(context.Background(), root)
	}
	a, err := mk()
	if err != nil {
		t.Fatalf("first run: %s", err)
	}
	b, err := mk()
	if err != nil {
		t.Fatalf("second run: %s", err)
	}
	av, bv := graphSignature(a), graphSignature(b)
	if av != bv {
		t.Errorf("resolution not deterministic:\n%s\nvs\n%s", av, bv)
	}
}

func graphSignature(g *Graph) string {
	var lines []string
	for id := 0; id < g.Len(); id++ {
		p := g.Package(NodeID(id))
		for _, d := range g.Dependencies(NodeID(id)) {
			lines = append(lines, p.ID()+" -> "+g.Package(d).ID())
		}
		lines = append(lines, p.ID())
	}
	sort.Strings(lines)
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestResolveVersionConflict(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"liba": {"1.0.0": {"package.yml": libManifest("liba", "1.0.0", map[string]string{"libx": "=1.0.0"})}},
		"libb": {"1.0.0": {"package.yml": libManifest("libb", "1.0.0", map[string]string{"libx": "=2.0.0"})}},
		"libx": {
			"1.0.0": {"package.yml": libManifest("libx", "1.0.0", nil)},
			"2.0.0": {"package.yml": libManifest("libx", "2.0.0", nil)},
		},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"liba": "=1.0.0", "libb": "=1.0.0"}))

	_, err := r.Resolve(context.Background(), root)
	vc, ok := err.(*VersionConflictError)
	if !ok {
		t.Fatalf("err = %v (%T), want *VersionConflictError", err, err)
	}
	if vc.Name != "libx" {
		t.Errorf("conflict name = %s, want libx", vc.Name)
	}
	if len(vc.Origins) < 2 {
		t.Errorf("conflict should carry both origins, got %v", vc.Origins)
	}
}

func TestResolveNoCompatibleVersion(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"libx": {"1.0.0": {"package.yml": libManifest("libx", "1.0.0", nil)}},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"libx": "^2.0.0"}))

	_, err := r.Resolve(context.Background(), root)
	nc, ok := err.(*NoCompatibleVersionError)
	if !ok {
		t.Fatalf("err = %v (%T), want *NoCompatibleVersionError", err, err)
	}
	if len(nc.Available) != 1 || nc.Available[0] != "1.0.0" {
		t.Errorf("available = %v", nc.Available)
	}
}

func TestResolveCycle(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"libp": {"1.0.0": {"package.yml": libManifest("libp", "1.0.0", map[string]string{"libq": "=1.0.0"})}},
		"libq": {"1.0.0": {"package.yml": libManifest("libq", "1.0.0", map[string]string{"libp": "=1.0.0"})}},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"libp": "=1.0.0"}))

	_, err := r.Resolve(context.Background(), root)
	cd, ok := err.(*CircularDependencyError)
	if !ok {
		t.Fatalf("err = %v (%T), want *CircularDependencyError", err, err)
	}
	want := []string{"app", "libp", "libq", "libp"}
	if len(cd.Path) != len(want) {
		t.Fatalf("path = %v, want %v", cd.Path, want)
	}
	for i := range want {
		if cd.Path[i] != want[i] {
			t.Errorf("path[%d] = %s, want %s", i, cd.Path[i], want[i])
		}
	}
}

func TestResolvePrefersStableOverPrerelease(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"libx": {
			"1.0.0":      {"package.yml": libManifest("libx", "1.0.0", nil)},
			"1.1.0-rc.1": {"package.yml": libManifest("libx", "1.1.0-rc.1", nil)},
		},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"libx": "^1.0.0"}))

	g, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	if _, ok := g.Lookup("libx", "1.0.0"); !ok {
		t.Errorf("caret must not select the pre-release; graph: %s", graphSignature(g))
	}
}

func TestResolveLocalPath(t *testing.T) {
	r, fsys := testResolver(t, &memRegistry{})
	if err := afero.WriteFile(fsys, "/libs/libz/package.yml",
		[]byte(libManifest("libz", "0.3.0", nil)), 0o644); err != nil {
		t.Fatal(err)
	}
	root := rootPackage(t, fsys, "name: app\nversion: 1.0.0\ntype: application\nrequires:\n  libz: {path: /libs/libz}\n")

	g, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	id, ok := g.Lookup("libz", "0.3.0")
	if !ok {
		t.Fatalf("libz missing from graph")
	}
	p := g.Package(id)
	if p.Origin != OriginLocal || p.Root != "/libs/libz" {
		t.Errorf("local package should be used in place, got origin=%s root=%s", p.Origin, p.Root)
	}
}

func TestResolveFetchesEachPackageOnce(t *testing.T) {
	reg := &memRegistry{pkgs: map[string]map[string]map[string]string{
		"liba": {"1.0.0": {"package.yml": libManifest("liba", "1.0.0", map[string]string{"libc": "^1.0.0"})}},
		"libb": {"1.0.0": {"package.yml": libManifest("libb", "1.0.0", map[string]string{"libc": "^1.0.0"})}},
		"libc": {"1.0.0": {"package.yml": libManifest("libc", "1.0.0", nil)}},
	}}
	r, fsys := testResolver(t, reg)
	root := rootPackage(t, fsys, libManifest("app", "1.0.0", map[string]string{"liba": "=1.0.0", "libb": "=1.0.0"}))
	if _, err := r.Resolve(context.Background(), root); err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	seen := map[string]int{}
	for _, f := range reg.fetched {
		seen[f]++
	}
	for f, n := range seen {
		if n != 1 {
			t.Errorf("%s fetched %d times", f, n)
		}
	}
}
