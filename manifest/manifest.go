// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest implements the package description model: versions,
// version constraints, and the declarative manifest read from
// package.yml.
package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest file names, in precedence order. config.yaml is the
// historical name and is read identically.
const (
	ManifestName      = "package.yml"
	AltManifestName   = "config.yaml"
	DefaultSourceGlob = "src/**/*.{c,cc,cpp,cxx}"
)

// PackageType distinguishes what a package's link step produces.
type PackageType uint8

const (
	// Library packages archive their objects into a static library.
	Library PackageType = iota
	// Application packages link an executable.
	Application
)

func (t PackageType) String() string {
	switch t {
	case Library:
		return "library"
	case Application:
		return "application"
	}
	return fmt.Sprintf("PackageType(%d)", uint8(t))
}

// Language selects the compiler frontend for a package's sources.
type Language uint8

const (
	C Language = iota
	Cpp
)

func (l Language) String() string {
	switch l {
	case C:
		return "c"
	case Cpp:
		return "c++"
	}
	return fmt.Sprintf("Language(%d)", uint8(l))
}

// nameRx validates package names, optionally carrying an organization
// prefix of the form @org/name.
var nameRx = regexp.MustCompile(`^(@[a-z0-9_-]+/)?[a-z0-9_-]+$`)

// ValidName reports whether s is an acceptable package name.
func ValidName(s string) bool { return nameRx.MatchString(s) }

// A Requirement is a (name, constraint) pair from a manifest's requires
// block.
type Requirement struct {
	Name       string
	Constraint Constraint
}

// A Variant is a flag overlay merged into a package's effective flags
// when the trait sharing its name is active.
type Variant struct {
	CFlags  map[string][]string
	LdFlags map[string][]string
}

// A Manifest is the parsed, validated form of a package.yml. It is
// immutable once constructed; accessors return copies where the
// underlying data is mutable.
type Manifest struct {
	Name     string
	Version  Version
	Type     PackageType
	Language Language

	// Sources are glob patterns relative to the package root.
	Sources []string

	// CFlags and LdFlags are keyed by compiler family (gcc, clang, …).
	CFlags  map[string][]string
	LdFlags map[string][]string

	Traits   map[string]string
	Variants map[string]Variant

	// Requires maps dependency name to its version constraint.
	Requires map[string]Constraint

	// Warnings collects non-fatal observations from parsing: unknown
	// keys, deprecated spellings. Never treated as errors.
	Warnings []string
}

// rawManifest mirrors the YAML surface before validation. Requirement
// constraints decode from yaml.Node because their shape is polymorphic
// (a bare string, or a map carrying path:/git:).
type rawManifest struct {
	Name     string               `yaml:"name"`
	Version  string               `yaml:"version"`
	Type     string               `yaml:"type"`
	Language string               `yaml:"language"`
	Sources  []string             `yaml:"sources"`
	CFlags   map[string]string    `yaml:"cflags"`
	LdFlags  map[string]string    `yaml:"ldflags"`
	Traits   map[string]string    `yaml:"traits"`
	Requires map[string]yaml.Node `yaml:"requires"`
	Variants map[string]rawVariant `yaml:"variants"`
}

type rawVariant struct {
	CFlags  map[string]string `yaml:"cflags"`
	LdFlags map[string]string `yaml:"ldflags"`
}

var knownKeys = map[string]bool{
	"name": true, "version": true, "type": true, "language": true,
	"sources": true, "cflags": true, "ldflags": true, "traits": true,
	"requires": true, "variants": true,
}

// Parse reads a manifest document. Syntax errors, missing required
// fields, and malformed constraints produce a *ManifestError; unknown
// keys are preserved as warnings on the returned Manifest.
func Parse(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ManifestError{Kind: SyntaxError, cause: err}
	}

	var raw rawManifest
	if err := doc.Decode(&raw); err != nil {
		return nil, &ManifestError{Kind: SyntaxError, cause: err}
	}

	m := &Manifest{}
	if len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode {
		top := doc.Content[0]
		for i := 0; i+1 < len(top.Content); i += 2 {
			if k := top.Content[i].Value; !knownKeys[k] {
				m.Warnings = append(m.Warnings, fmt.Sprintf("unknown key %q ignored", k))
			}
		}
	}

	if raw.Name == "" {
		return nil, &ManifestError{Kind: MissingField, Field: "name"}
	}
	if !ValidName(raw.Name) {
		return nil, &ManifestError{Kind: InvalidField, Field: "name",
			cause: errors.Errorf("%q does not match %s", raw.Name, nameRx)}
	}
	m.Name = raw.Name

	if raw.Version == "" {
		return nil, &ManifestError{Kind: MissingField, Field: "version"}
	}
	v, err := ParseVersion(raw.Version)
	if err != nil {
		return nil, &ManifestError{Kind: InvalidField, Field: "version", cause: err}
	}
	m.Version = v

	switch strings.ToLower(raw.Type) {
	case "library":
		m.Type = Library
	case "application":
		m.Type = Application
	case "":
		return nil, &ManifestError{Kind: MissingField, Field: "type"}
	default:
		return nil, &ManifestError{Kind: InvalidField, Field: "type",
			cause: errors.Errorf("unknown package type %q", raw.Type)}
	}

	switch strings.ToLower(raw.Language) {
	case "c":
		m.Language = C
	case "cpp", "c++":
		m.Language = Cpp
	case "":
		// Inferred: applications default to C, libraries to C++.
		if m.Type == Application {
			m.Language = C
		} else {
			m.Language = Cpp
		}
	default:
		return nil, &ManifestError{Kind: InvalidField, Field: "language",
			cause: errors.Errorf("unknown language %q", raw.Language)}
	}

	m.Sources = raw.Sources
	if len(m.Sources) == 0 {
		m.Sources = []string{DefaultSourceGlob}
	}

	m.CFlags = splitFlagMap(raw.CFlags)
	m.LdFlags = splitFlagMap(raw.LdFlags)
	m.Traits = raw.Traits

	if len(raw.Variants) > 0 {
		m.Variants = make(map[string]Variant, len(raw.Variants))
		for name, rv := range raw.Variants {
			m.Variants[name] = Variant{
				CFlags:  splitFlagMap(rv.CFlags),
				LdFlags: splitFlagMap(rv.LdFlags),
			}
		}
	}

	if len(raw.Requires) > 0 {
		m.Requires = make(map[string]Constraint, len(raw.Requires))
		for name, node := range raw.Requires {
			if !ValidName(name) {
				return nil, &ManifestError{Kind: InvalidField, Field: "requires",
					cause: errors.Errorf("invalid requirement name %q", name)}
			}
			c, err := constraintFromNode(node)
			if err != nil {
				return nil, &ManifestError{Kind: MalformedConstraint, Field: "requires." + name, cause: err}
			}
			m.Requires[name] = c
		}
	}

	return m, nil
}

// constraintFromNode interprets the two surface forms of a requirement
// constraint: a plain string in the ParseConstraint grammar, or a map
// carrying a path: or git: key. The map form normalizes into the
// corresponding string-form variant.
func constraintFromNode(node yaml.Node) (Constraint, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		return ParseConstraint(s)
	case yaml.MappingNode:
		var form struct {
			Path string `yaml:"path"`
			Git  string `yaml:"git"`
		}
		if err := node.Decode(&form); err != nil {
			return nil, err
		}
		switch {
		case form.Path != "" && form.Git != "":
			return nil, errors.New("constraint may carry path: or git:, not both")
		case form.Path != "":
			return LocalPath(form.Path), nil
		case form.Git != "":
			return GitRef(form.Git), nil
		}
		return nil, errors.New("constraint map must carry path: or git:")
	}
	return nil, errors.New("constraint must be a string or a path:/git: map")
}

func splitFlagMap(in map[string]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for fam, s := range in {
		out[fam] = strings.Fields(s)
	}
	return out
}

// SortedRequirements returns the manifest's requirements ordered by
// name, for deterministic iteration.
func (m *Manifest) SortedRequirements() []Requirement {
	reqs := make([]Requirement, 0, len(m.Requires))
	for name, c := range m.Requires {
		reqs = append(reqs, Requirement{Name: name, Constraint: c})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Name < reqs[j].Name })
	return reqs
}

// Canonical renders a stable byte form of the manifest for cache key
// derivation: sorted keys, one field per line. The layout is part of
// the cache format and must not change without bumping the key
// version.
func (m *Manifest) Canonical() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "name %s\n", m.Name)
	fmt.Fprintf(&b, "version %s\n", m.Version)
	fmt.Fprintf(&b, "type %s\n", m.Type)
	fmt.Fprintf(&b, "language %s\n", m.Language)
	for _, g := range m.Sources {
		fmt.Fprintf(&b, "source %s\n", g)
	}
	writeSortedFlags(&b, "cflag", m.CFlags)
	writeSortedFlags(&b, "ldflag", m.LdFlags)
	for _, k := range sortedKeys(m.Traits) {
		fmt.Fprintf(&b, "trait %s=%s\n", k, m.Traits[k])
	}
	for _, r := range m.SortedRequirements() {
		fmt.Fprintf(&b, "require %s %s\n", r.Name, r.Constraint)
	}
	return []byte(b.String())
}

func writeSortedFlags(b *strings.Builder, tag string, m map[string][]string) {
	fams := make([]string, 0, len(m))
	for f := range m {
		fams = append(fams, f)
	}
	sort.Strings(fams)
	for _, f := range fams {
		fmt.Fprintf(b, "%s %s %s\n", tag, f, strings.Join(m[f], " "))
	}
}

func sortedKeys(m map[string]string) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
