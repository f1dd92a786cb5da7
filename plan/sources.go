// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// expandSources resolves a manifest's source globs against the package
// root. Patterns use doublestar syntax, including ** and {c,cc,cpp}
// brace sets. The result is sorted and deduplicated, as absolute
// paths.
func expandSources(fsys afero.Fs, root string, globs []string) ([]string, error) {
	scoped := afero.NewIOFS(afero.NewBasePathFs(fsys, root))
	seen := map[string]bool{}
	var out []string
	for _, g := range globs {
		matches, err := doublestar.Glob(scoped, filepath.ToSlash(g))
		if err != nil {
			return nil, errors.Wrapf(err, "glob %q", g)
		}
		for _, m := range matches {
			abs := filepath.Join(root, filepath.FromSlash(m))
			if fi, err := fsys.Stat(abs); err != nil || fi.IsDir() {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				out = append(out, abs)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
