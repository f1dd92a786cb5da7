// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestParseDepfile(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{
			in:   "obj/main.o: src/main.c include/app/app.h \\\n deps/lib/include/lib/api.h\n",
			want: []string{"include/app/app.h", "deps/lib/include/lib/api.h"},
		},
		{
			in:   "obj/main.o: src/main.c",
			want: nil,
		},
		{
			in:   "obj/a.o: src/a.c inc/with\\ space.h\n\ninc/with\\ space.h:\n",
			want: []string{"inc/with space.h"},
		},
		{
			in:   "no colon here",
			want: nil,
		},
	}
	for _, tc := range cases {
		got := ParseDepfile([]byte(tc.in))
		if d := cmp.Diff(tc.want, got); d != "" {
			t.Errorf("ParseDepfile(%q) mismatch (-want +got):\n%s", tc.in, d)
		}
	}
}

func TestHeaderClosureConservative(t *testing.T) {
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/app/include/app/app.h":      "app",
		"/app/private_include/priv.h": "priv",
		"/deps/lib/include/lib/api.h": "api",
		"/deps/lib/include/readme.md": "not a header",
	}
	for p, body := range files {
		if err := afero.WriteFile(fsys, p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dirs := []string{"/app/include", "/app/private_include", "/deps/lib/include"}
	got, err := HeaderClosure(fsys, "", dirs)
	if err != nil {
		t.Fatalf("HeaderClosure: %s", err)
	}
	var paths []string
	for _, h := range got {
		paths = append(paths, h.Path)
	}
	want := []string{"i0:app/app.h", "i1:priv.h", "i2:lib/api.h"}
	if d := cmp.Diff(want, paths); d != "" {
		t.Errorf("conservative sweep mismatch (-want +got):\n%s", d)
	}
}

func TestHeaderClosureAccurate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/app/include/app/app.h", []byte("app"), 0o644)
	afero.WriteFile(fsys, "/deps/lib/include/lib/api.h", []byte("api"), 0o644)
	afero.WriteFile(fsys, "/deps/lib/include/lib/unused.h", []byte("unused"), 0o644)
	depfile := "obj/main.o: /app/src/main.c /deps/lib/include/lib/api.h /usr/include/stdio.h\n"
	afero.WriteFile(fsys, "/app/.build/obj/main.d", []byte(depfile), 0o644)

	dirs := []string{"/app/include", "/deps/lib/include"}
	got, err := HeaderClosure(fsys, "/app/.build/obj/main.d", dirs)
	if err != nil {
		t.Fatalf("HeaderClosure: %s", err)
	}
	if len(got) != 1 || got[0].Path != "i1:lib/api.h" {
		t.Fatalf("accurate closure = %+v, want only the included project header", got)
	}
	if string(got[0].Content) != "api" {
		t.Errorf("closure content = %q", got[0].Content)
	}
}

func TestHeaderClosureMissingDepfileFallsBack(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/inc/a.h", []byte("a"), 0o644)
	got, err := HeaderClosure(fsys, "/nowhere/main.d", []string{"/inc"})
	if err != nil {
		t.Fatalf("HeaderClosure: %s", err)
	}
	if len(got) != 1 {
		t.Errorf("fallback sweep should find the header, got %+v", got)
	}
}
