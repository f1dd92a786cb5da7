// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"sort"

	"github.com/igutekunst/clydepm/manifest"
)

// familyDefaults are the global baseline flags per compiler family,
// prepended before any manifest or variant flags.
var familyDefaults = map[string][]string{
	"gcc":   {"-Wall"},
	"clang": {"-Wall"},
}

// SupportedFamily reports whether the planner knows the flag mapping
// for a probed compiler family.
func SupportedFamily(family string) bool {
	_, ok := familyDefaults[family]
	return ok
}

// mergedTraits overlays caller-supplied traits onto the package's own;
// the caller wins on collision.
func mergedTraits(m *manifest.Manifest, caller map[string]string) map[string]string {
	out := make(map[string]string, len(m.Traits)+len(caller))
	for k, v := range m.Traits {
		out[k] = v
	}
	for k, v := range caller {
		out[k] = v
	}
	return out
}

// traitActive decides whether the named variant's overlay applies.
func traitActive(traits map[string]string, name string) bool {
	v, ok := traits[name]
	return ok && v != "" && v != "false"
}

// activeVariants returns the applying variant names sorted, so overlay
// order is deterministic.
func activeVariants(m *manifest.Manifest, traits map[string]string) []string {
	var names []string
	for name := range m.Variants {
		if traitActive(traits, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// compileFlags concatenates, in order: family defaults, the manifest's
// family flags, overlays of active variants, and dependency-induced
// flags.
func compileFlags(family string, m *manifest.Manifest, traits map[string]string, depInduced []string) []string {
	out := append([]string(nil), familyDefaults[family]...)
	out = append(out, m.CFlags[family]...)
	for _, name := range activeVariants(m, traits) {
		out = append(out, m.Variants[name].CFlags[family]...)
	}
	return append(out, depInduced...)
}

// linkFlags collects linker flags the same way.
func linkFlags(family string, m *manifest.Manifest, traits map[string]string, depInduced []string) []string {
	out := append([]string(nil), m.LdFlags[family]...)
	for _, name := range activeVariants(m, traits) {
		out = append(out, m.Variants[name].LdFlags[family]...)
	}
	return append(out, depInduced...)
}
