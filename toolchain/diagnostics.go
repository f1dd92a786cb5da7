// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toolchain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// diagRx matches the GCC-compatible diagnostic prefix:
//
//	file:line:col: severity: message [-Wflag]
//
// The column and the flag suffix are optional. Nothing beyond this
// prefix shape is assumed; compilers restyle the message part freely.
var diagRx = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s+(fatal error|error|warning|note):\s+(.*?)(?:\s+\[([-\w+=.]+)\])?$`)

func severityFromWord(w string) Severity {
	switch w {
	case "note":
		return SeverityNote
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	case "fatal error":
		return SeverityFatal
	}
	return SeverityNote
}

// ParseDiagnostics extracts structured diagnostics from compiler
// stderr. Unrecognized lines that look load-bearing (non-empty, not a
// caret/context line) are preserved as location-less notes so nothing
// the compiler said is silently dropped. The result is stably sorted
// into source-file order of the locations.
func ParseDiagnostics(stderr string) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := diagRx.FindStringSubmatch(line)
		if m == nil {
			if isContextLine(line) {
				continue
			}
			out = append(out, Diagnostic{Severity: SeverityNote, Message: line})
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		colNo := 0
		if m[3] != "" {
			colNo, _ = strconv.Atoi(m[3])
		}
		out = append(out, Diagnostic{
			File:     m[1],
			Line:     lineNo,
			Column:   colNo,
			Severity: severityFromWord(m[4]),
			Message:  m[5],
			Flag:     m[6],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// isContextLine recognizes the source excerpt and caret lines GCC
// prints beneath a diagnostic, plus "In file included from" chains.
func isContextLine(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if strings.HasPrefix(trimmed, "^") || strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, "~") {
		return true
	}
	if strings.HasPrefix(line, "In file included from") || strings.HasPrefix(trimmed, "from ") {
		return true
	}
	// Numbered source excerpts: "  12 | int main(" …
	if i := strings.IndexByte(trimmed, '|'); i > 0 {
		if _, err := strconv.Atoi(strings.TrimSpace(trimmed[:i])); err == nil {
			return true
		}
	}
	return false
}
