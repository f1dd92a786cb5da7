// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"github.com/igutekunst/clydepm/manifest"
	"github.com/igutekunst/clydepm/toolchain"
)

// keyFormatVersion is the first byte of every hash input. Bump it when
// the canonical byte layout below changes in any way; keys from
// different format versions never collide meaningfully.
const keyFormatVersion byte = 0x01

// A Key addresses one cache entry: a SHA-256 over the canonical
// serialization of everything that influenced the entry's bytes.
type Key [sha256.Size]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether k is the zero (unset) key.
func (k Key) IsZero() bool { return k == Key{} }

// ParseKey decodes the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, errKeyLength
	}
	copy(k[:], b)
	return k, nil
}

// keyWriter builds the canonical serialization: every component is
// length-prefixed (uvarint) before its bytes, so no two distinct input
// sequences share an encoding. Map-shaped inputs must be sorted by the
// caller before writing.
type keyWriter struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func newKeyWriter() *keyWriter {
	w := &keyWriter{h: sha256.New()}
	w.h.Write([]byte{keyFormatVersion})
	return w
}

func (w *keyWriter) bytes(b []byte) {
	n := binary.PutUvarint(w.buf[:], uint64(len(b)))
	w.h.Write(w.buf[:n])
	w.h.Write(b)
}

func (w *keyWriter) str(s string) { w.bytes([]byte(s)) }

func (w *keyWriter) strs(ss []string) {
	n := binary.PutUvarint(w.buf[:], uint64(len(ss)))
	w.h.Write(w.buf[:n])
	for _, s := range ss {
		w.str(s)
	}
}

func (w *keyWriter) sum() Key {
	var k Key
	copy(k[:], w.h.Sum(nil))
	return k
}

// A HeaderInput is one header participating in an object key: its
// normalized path and content bytes.
type HeaderInput struct {
	Path    string
	Content []byte
}

// ObjectKeyInputs collects everything that determines the bytes of a
// compiled object.
type ObjectKeyInputs struct {
	SourceBytes []byte
	// IncludeDirs is the resolved include order, normalized.
	IncludeDirs []string
	// Headers is the transitively reachable header set within the
	// project and its dependencies, in a caller-stable order.
	Headers []HeaderInput
	Compiler toolchain.CompilerInfo
	Flags    []string
	Language manifest.Language
	// Traits holds the trait pairs relevant to this compilation.
	Traits map[string]string
}

// ObjectKey derives the object-tier cache key.
func ObjectKey(in ObjectKeyInputs) Key {
	w := newKeyWriter()
	w.str("object")
	w.bytes(in.SourceBytes)
	w.strs(in.IncludeDirs)
	hn := binary.PutUvarint(w.buf[:], uint64(len(in.Headers)))
	w.h.Write(w.buf[:hn])
	for _, h := range in.Headers {
		w.str(h.Path)
		w.bytes(h.Content)
	}
	w.str(in.Compiler.Name)
	w.str(in.Compiler.Version)
	w.str(in.Compiler.Target)
	w.strs(in.Flags)
	w.str(in.Language.String())
	keys := make([]string, 0, len(in.Traits))
	for k := range in.Traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tn := binary.PutUvarint(w.buf[:], uint64(len(keys)))
	w.h.Write(w.buf[:tn])
	for _, k := range keys {
		w.str(k)
		w.str(in.Traits[k])
	}
	return w.sum()
}

// ArtifactKeyInputs collects everything that determines a linked
// artifact: the manifest, the exact objects linked, link flags, the
// linker, and the artifacts of directly linked library dependencies.
type ArtifactKeyInputs struct {
	ManifestCanonical []byte
	ObjectKeys        []Key
	LinkFlags         []string
	Linker            toolchain.CompilerInfo
	DepArtifactKeys   []Key
}

// ArtifactKey derives the artifact-tier cache key. Object keys are
// hashed as a sorted set; dependency artifact keys in caller order
// (they are already topologically determined).
func ArtifactKey(in ArtifactKeyInputs) Key {
	w := newKeyWriter()
	w.str("artifact")
	w.bytes(in.ManifestCanonical)

	objs := make([]string, len(in.ObjectKeys))
	for i, k := range in.ObjectKeys {
		objs[i] = k.String()
	}
	sort.Strings(objs)
	w.strs(objs)

	w.strs(in.LinkFlags)
	w.str(in.Linker.Name)
	w.str(in.Linker.Version)
	w.str(in.Linker.Target)

	deps := make([]string, len(in.DepArtifactKeys))
	for i, k := range in.DepArtifactKeys {
		deps[i] = k.String()
	}
	w.strs(deps)
	return w.sum()
}
