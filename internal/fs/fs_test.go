// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"testing"

	"github.com/spf13/afero"
)

func TestWriteFileAtomic(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := WriteFileAtomic(fsys, "a/b/c.txt", []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %s", err)
	}
	got, err := afero.ReadFile(fsys, "a/b/c.txt")
	if err != nil {
		t.Fatalf("ReadFile: %s", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q", got)
	}

	// Overwrite replaces the previous content in one step.
	if err := WriteFileAtomic(fsys, "a/b/c.txt", []byte("world"), 0o644); err != nil {
		t.Fatalf("overwrite: %s", err)
	}
	got, _ = afero.ReadFile(fsys, "a/b/c.txt")
	if string(got) != "world" {
		t.Errorf("content after overwrite = %q", got)
	}

	// No temp litter left behind.
	entries, err := afero.ReadDir(fsys, "a/b")
	if err != nil {
		t.Fatalf("ReadDir: %s", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory should hold only the target file, found %d entries", len(entries))
	}
}

func TestRenameDirIntoExisting(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("tmp/pkg", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "tmp/pkg/f.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.MkdirAll("store/pkg", 0o755); err != nil {
		t.Fatal(err)
	}

	// dst already materialized: treated as success, src cleaned up.
	if err := RenameDirInto(fsys, "tmp/pkg", "store/pkg"); err != nil {
		t.Fatalf("RenameDirInto onto existing dst: %s", err)
	}
	if ok, _ := IsDir(fsys, "tmp/pkg"); ok {
		t.Errorf("src should be removed after losing the rename race")
	}
}

func TestCopyDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, f := range []string{"src/a.c", "src/sub/b.c", "include/pkg/api.h"} {
		if err := afero.WriteFile(fsys, "in/"+f, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := CopyDir(fsys, "in", "out"); err != nil {
		t.Fatalf("CopyDir: %s", err)
	}
	for _, f := range []string{"src/a.c", "src/sub/b.c", "include/pkg/api.h"} {
		got, err := afero.ReadFile(fsys, "out/"+f)
		if err != nil {
			t.Errorf("missing copied file %s: %s", f, err)
			continue
		}
		if string(got) != f {
			t.Errorf("content of %s = %q", f, got)
		}
	}
}
