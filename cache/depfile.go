// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import "strings"

// ParseDepfile reads the make-style dependency rule GCC emits with
// -MMD: a target, a colon, and a backslash-continued list of
// prerequisites. The first prerequisite is the source file itself and
// is skipped; the rest are the headers the unit actually included.
// Escaped spaces in paths ("foo\ bar.h") are honored.
func ParseDepfile(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\\\n", " ")
	text = strings.ReplaceAll(text, "\\\r\n", " ")

	colon := strings.Index(text, ":")
	if colon < 0 {
		return nil
	}
	rest := text[colon+1:]
	// Phony targets for each header may follow the main rule; only the
	// first rule's prerequisites matter.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}

	var (
		deps []string
		cur  strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			deps = append(deps, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		switch {
		case ch == '\\' && i+1 < len(rest) && rest[i+1] == ' ':
			cur.WriteByte(' ')
			i++
		case ch == ' ' || ch == '\t':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()

	if len(deps) <= 1 {
		return nil
	}
	// deps[0] is the source translation unit.
	return deps[1:]
}
