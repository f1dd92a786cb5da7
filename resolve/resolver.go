// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/igutekunst/clydepm/hooks"
	"github.com/igutekunst/clydepm/manifest"
)

// Resolver produces a fully materialized DependencyGraph rooted at a
// given package. It is deterministic: the same root manifest against
// the same registry snapshot yields an identical graph.
type Resolver struct {
	fsys  afero.Fs
	reg   Registry
	store *Store
	bus   *hooks.Bus
	log   *zap.Logger
}

// NewResolver wires a resolver. bus may be nil when no instrumentation
// is attached; log may be nil for silence.
func NewResolver(fsys afero.Fs, reg Registry, store *Store, bus *hooks.Bus, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{fsys: fsys, reg: reg, store: store, bus: bus, log: log}
}

// choice tracks the accumulated state for one package name.
type choice struct {
	constraint manifest.Constraint
	origins    []ConstraintOrigin
	selected   bool
	pkg        *Package
	node       NodeID
}

// workItem is one requirement waiting to be applied: the requirement
// itself, the node that introduced it, and the name chain from root.
type workItem struct {
	req    manifest.Requirement
	origin NodeID
	chain  []string
}

// Resolve materializes the transitive closure of root's requirements.
// Every failure is fatal and carries the requirement chain from the
// root, so callers can surface actionable diagnostics.
func (r *Resolver) Resolve(ctx context.Context, root *Package) (*Graph, error) {
	start := time.Now()
	if err := r.bus.Publish(hooks.PreResolutionEvent{Root: root.Name()}); err != nil {
		return nil, err
	}

	g := newGraph()
	rootID := g.addVertex(root)
	chosen := map[string]*choice{
		root.Name(): {
			constraint: manifest.Exact(root.Version()),
			selected:   true,
			pkg:        root,
			node:       rootID,
		},
	}

	var worklist []workItem
	enqueue := func(p *Package, node NodeID, chain []string) {
		for _, req := range p.Manifest.SortedRequirements() {
			worklist = append(worklist, workItem{req: req, origin: node, chain: chain})
		}
	}
	enqueue(root, rootID, []string{root.Name()})

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := item.req.Name
		originPkg := g.Package(item.origin)
		origin := ConstraintOrigin{
			Constraint: item.req.Constraint.String(),
			Origin:     originPkg.ID(),
			Chain:      item.chain,
		}
		r.bus.Publish(hooks.PackageDiscoveredEvent{
			Name:       name,
			Constraint: item.req.Constraint.String(),
			Origin:     originPkg.ID(),
		})

		ch, ok := chosen[name]
		if !ok {
			ch = &choice{constraint: manifest.Any()}
			chosen[name] = ch
		}

		merged := ch.constraint.Intersect(item.req.Constraint)
		if manifest.IsUnsatisfiable(merged) {
			return nil, &VersionConflictError{
				Name:    name,
				Chosen:  chosenVersionString(ch),
				Origins: append(ch.origins, origin),
			}
		}
		ch.constraint = merged
		ch.origins = append(ch.origins, origin)

		if ch.selected {
			// No backtracking: an already-selected version that the new
			// requirement rejects is a hard conflict. Surfacing both
			// origins beats searching; pinning is expected upstream.
			if !admits(item.req.Constraint, ch.pkg) {
				return nil, &VersionConflictError{
					Name:    name,
					Chosen:  ch.pkg.Version().String(),
					Origins: ch.origins,
				}
			}
		} else {
			pkg, err := r.selectAndMaterialize(ctx, name, ch, item)
			if err != nil {
				return nil, err
			}
			ch.pkg = pkg
			ch.node = g.addVertex(pkg)
			ch.selected = true
			enqueue(pkg, ch.node, append(append([]string(nil), item.chain...), name))
		}

		if cyclePath, err := g.addEdge(item.origin, ch.node); err != nil {
			return nil, &CircularDependencyError{Path: cycleErrorPath(g, item.chain, cyclePath)}
		}
	}

	r.log.Debug("resolution complete",
		zap.Int("packages", g.Len()),
		zap.Int("edges", g.EdgeCount()),
		zap.Duration("elapsed", time.Since(start)))
	if err := r.bus.Publish(hooks.PostResolutionEvent{
		Packages: g.Len(),
		Edges:    g.EdgeCount(),
		Duration: time.Since(start),
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func chosenVersionString(ch *choice) string {
	if ch.selected {
		return ch.pkg.Version().String()
	}
	return ""
}

// admits checks a single requirement against a selected package,
// honoring the non-semver variants: a git: constraint admits only the
// matching pinned ref, a local: constraint only the matching root.
func admits(c manifest.Constraint, p *Package) bool {
	if ref, ok := manifest.AsGitRef(c); ok {
		return p.Origin == OriginGitRef && p.Ref == ref
	}
	if path, ok := manifest.AsLocalPath(c); ok {
		return p.Origin == OriginLocal && p.Root == filepath.Clean(path)
	}
	return c.Matches(p.Version())
}

// selectAndMaterialize picks the version for a not-yet-chosen name and
// loads its package: local paths in place, git refs and registry
// versions through the store.
func (r *Resolver) selectAndMaterialize(ctx context.Context, name string, ch *choice, item workItem) (*Package, error) {
	fullChain := append(append([]string(nil), item.chain...), name)

	if path, ok := manifest.AsLocalPath(ch.constraint); ok {
		pkg, err := LoadPackage(r.fsys, filepath.Clean(path))
		if err != nil {
			return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
		}
		if pkg.Name() != name {
			return nil, &FetchFailedError{Name: name, Chain: fullChain,
				Cause: errors.Errorf("package at %s names itself %q", path, pkg.Name())}
		}
		r.bus.Publish(hooks.VersionSelectedEvent{Name: name, Version: pkg.Version().String(), Candidates: 1})
		return pkg, nil
	}

	if ref, ok := manifest.AsGitRef(ch.constraint); ok {
		dst := r.store.RefDir(name, ref)
		if ok, _ := afero.DirExists(r.fsys, dst); !ok {
			rc, err := r.reg.FetchRef(ctx, name, ref)
			if err != nil {
				return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
			}
			if _, err := r.store.Materialize(dst, rc); err != nil {
				return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
			}
			r.bus.Publish(hooks.PackageFetchedEvent{Name: name, Version: "git:" + ref, Path: dst})
		}
		pkg, err := LoadPackage(r.fsys, dst)
		if err != nil {
			return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
		}
		pkg.Origin = OriginGitRef
		pkg.Ref = ref
		r.bus.Publish(hooks.VersionSelectedEvent{Name: name, Version: pkg.Version().String(), Candidates: 1})
		return pkg, nil
	}

	candidates, err := r.reg.ListVersions(ctx, name)
	if err != nil {
		return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
	}
	best, found := pickVersion(ch.constraint, candidates)
	if !found {
		avail := make([]string, len(candidates))
		manifest.SortVersions(candidates)
		for i, v := range candidates {
			avail[i] = v.String()
		}
		return nil, &NoCompatibleVersionError{Name: name, Origins: ch.origins, Available: avail}
	}
	r.bus.Publish(hooks.VersionSelectedEvent{Name: name, Version: best.String(), Candidates: len(candidates)})

	dst := r.store.Dir(name, best)
	if ok, _ := afero.DirExists(r.fsys, dst); !ok {
		rc, err := r.reg.Fetch(ctx, name, best)
		if err != nil {
			return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
		}
		if _, err := r.store.Materialize(dst, rc); err != nil {
			return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
		}
		r.bus.Publish(hooks.PackageFetchedEvent{Name: name, Version: best.String(), Path: dst})
	}
	pkg, err := LoadPackage(r.fsys, dst)
	if err != nil {
		return nil, &FetchFailedError{Name: name, Chain: fullChain, Cause: err}
	}
	if pkg.Name() != name || !pkg.Version().Equal(best) {
		return nil, &FetchFailedError{Name: name, Chain: fullChain,
			Cause: errors.Errorf("registry delivered %s, expected %s@%s", pkg.ID(), name, best)}
	}
	pkg.Origin = OriginRemote
	return pkg, nil
}

// pickVersion selects the greatest candidate admitted by c. Among
// candidates of equal precedence, stable versions win over
// pre-releases, then the lexicographically greater full string.
func pickVersion(c manifest.Constraint, candidates []manifest.Version) (manifest.Version, bool) {
	var best manifest.Version
	found := false
	for _, v := range candidates {
		if !c.Matches(v) {
			continue
		}
		if !found || better(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

func better(a, b manifest.Version) bool {
	if c := a.Compare(b); c != 0 {
		return c > 0
	}
	aStable, bStable := a.Prerelease() == "", b.Prerelease() == ""
	if aStable != bStable {
		return aStable
	}
	return a.String() > b.String()
}

// cycleErrorPath renders the offending requirement cycle as names from
// the root, closing on the repeated vertex: [root, P, Q, P]. cycle is
// the existing dependency path from the new edge's target back to its
// origin.
func cycleErrorPath(g *Graph, chain []string, cycle []NodeID) []string {
	path := append([]string(nil), chain...)
	if len(cycle) == 0 {
		return path
	}
	target := g.Package(cycle[0]).Name()
	path = append(path, target)
	for _, seen := range chain {
		if seen == target {
			// The cycle lies entirely on the discovery chain; the
			// repeated target already closes it.
			return path
		}
	}
	// Otherwise walk the return route until it rejoins the chain.
	for _, id := range cycle[1:] {
		path = append(path, g.Package(id).Name())
	}
	return path
}
