// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"testing"
)

func mc(t *testing.T, s string) Constraint {
	t.Helper()
	c, err := ParseConstraint(s)
	if err != nil {
		t.Fatalf("ParseConstraint(%q): %s", s, err)
	}
	return c
}

func TestConstraintSatisfaction(t *testing.T) {
	cases := []struct {
		c       string
		admit   []string
		reject  []string
	}{
		{
			c:      "=1.2.3",
			admit:  []string{"1.2.3"},
			reject: []string{"1.2.2", "1.2.4", "1.2.3-rc.1", "2.0.0"},
		},
		{
			c:      "1.2.3", // bare version is exact
			admit:  []string{"1.2.3"},
			reject: []string{"1.2.4"},
		},
		{
			c:      "^1.2.3",
			admit:  []string{"1.2.3", "1.2.9", "1.9.0", "1.999.999"},
			reject: []string{"1.2.2", "2.0.0", "0.9.0", "2.0.0-alpha", "1.5.0-rc.1"},
		},
		{
			c:      "^0.2.3",
			admit:  []string{"0.2.3", "0.2.10"},
			reject: []string{"0.3.0", "0.2.2", "1.0.0"},
		},
		{
			c:      "~1.2.3",
			admit:  []string{"1.2.3", "1.2.10"},
			reject: []string{"1.3.0", "1.2.2", "2.0.0"},
		},
		{
			c:      ">=1.2.3",
			admit:  []string{"1.2.3", "1.3.0", "99.0.0"},
			reject: []string{"1.2.2", "1.2.3-rc.1"},
		},
		{
			c:      "<2.0.0",
			admit:  []string{"1.999.0", "0.0.1", "2.0.0-rc.1"},
			reject: []string{"2.0.0", "2.0.1"},
		},
		{
			c:      ">=1.2.0 <1.4.0",
			admit:  []string{"1.2.0", "1.3.9"},
			reject: []string{"1.1.9", "1.4.0", "1.4.1"},
		},
	}
	for _, tc := range cases {
		c := mc(t, tc.c)
		for _, v := range tc.admit {
			if !c.Matches(MustParseVersion(v)) {
				t.Errorf("%s should admit %s", tc.c, v)
			}
		}
		for _, v := range tc.reject {
			if c.Matches(MustParseVersion(v)) {
				t.Errorf("%s should reject %s", tc.c, v)
			}
		}
	}
}

func TestCaretPrereleaseAnchor(t *testing.T) {
	// A caret carrying a pre-release tag admits pre-releases on the
	// same triple, and nothing pre-release elsewhere.
	c := mc(t, "^1.2.3-rc.1")
	for _, v := range []string{"1.2.3-rc.1", "1.2.3-rc.2", "1.2.3", "1.5.0"} {
		if !c.Matches(MustParseVersion(v)) {
			t.Errorf("^1.2.3-rc.1 should admit %s", v)
		}
	}
	for _, v := range []string{"1.2.3-rc.0", "1.2.4-rc.1", "1.5.0-beta"} {
		if c.Matches(MustParseVersion(v)) {
			t.Errorf("^1.2.3-rc.1 should reject %s", v)
		}
	}
}

func TestConstraintIntersection(t *testing.T) {
	cases := []struct {
		a, b   string
		admit  []string
		reject []string
		empty  bool
	}{
		{a: "^1.0.0", b: "^1.2.0", admit: []string{"1.2.0", "1.9.9"}, reject: []string{"1.1.9", "2.0.0"}},
		{a: "^1.0.0", b: "~1.2.0", admit: []string{"1.2.5"}, reject: []string{"1.3.0"}},
		{a: "^1.0.0", b: "^2.0.0", empty: true},
		{a: "=1.0.0", b: "=2.0.0", empty: true},
		{a: "=1.2.0", b: "^1.0.0", admit: []string{"1.2.0"}, reject: []string{"1.2.1"}},
		{a: ">=1.0.0", b: "<2.0.0", admit: []string{"1.5.0"}, reject: []string{"2.0.0", "0.9.0"}},
		{a: ">=2.0.0", b: "<1.0.0", empty: true},
		{a: "git:abc123", b: "git:abc123", admit: nil, reject: []string{"1.0.0"}},
		{a: "git:abc123", b: "git:def456", empty: true},
		{a: "git:abc123", b: "^1.0.0", empty: true},
		{a: "local:../liba", b: "local:../liba", admit: nil},
		{a: "local:../liba", b: "local:../libb", empty: true},
	}
	for _, tc := range cases {
		got := Intersect(mc(t, tc.a), mc(t, tc.b))
		if tc.empty {
			if !IsUnsatisfiable(got) {
				t.Errorf("%s ∩ %s should be unsatisfiable, got %s", tc.a, tc.b, got)
			}
			continue
		}
		if IsUnsatisfiable(got) {
			t.Errorf("%s ∩ %s should be satisfiable", tc.a, tc.b)
			continue
		}
		for _, v := range tc.admit {
			if !got.Matches(MustParseVersion(v)) {
				t.Errorf("(%s ∩ %s) should admit %s", tc.a, tc.b, v)
			}
		}
		for _, v := range tc.reject {
			if got.Matches(MustParseVersion(v)) {
				t.Errorf("(%s ∩ %s) should reject %s", tc.a, tc.b, v)
			}
		}
	}
}

func TestIntersectionPreservesReleaseOnly(t *testing.T) {
	// The composition of two carets must not regress into admitting
	// arbitrary pre-releases by plain ordering.
	got := Intersect(mc(t, "^1.0.0"), mc(t, "^1.2.0"))
	if got.Matches(MustParseVersion("1.5.0-beta")) {
		t.Errorf("caret intersection should still exclude off-anchor pre-releases")
	}
	if !got.Matches(MustParseVersion("1.5.0")) {
		t.Errorf("caret intersection should admit in-range releases")
	}
}

func TestParseConstraintRejects(t *testing.T) {
	bad := []string{
		"",
		"local:",
		"git:",
		"<=1.0.0",
		">1.0.0",
		"^1.0",
		">=1.0.0 <=2.0.0",
		">=1.0.0 <2.0.0 <3.0.0",
		">=2.0.0 <1.0.0",
	}
	for _, in := range bad {
		if _, err := ParseConstraint(in); err == nil {
			t.Errorf("ParseConstraint(%q) unexpectedly succeeded", in)
		}
	}
}

func TestConstraintStringForms(t *testing.T) {
	for _, s := range []string{"=1.2.3", "^1.2.3", "~1.2.3", ">=1.2.3", "<1.2.3", "git:v2-branch", "local:../libfoo"} {
		if got := mc(t, s).String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}
