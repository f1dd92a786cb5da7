// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"fmt"

	"github.com/pkg/errors"
)

var errKeyLength = errors.New("cache key must be 32 bytes")

// FailureClass categorizes cache errors for the recovery policy:
// read failures downgrade to misses, write failures are logged and
// non-fatal, corrupt entries are purged and treated as misses.
type FailureClass uint8

const (
	ReadFailure FailureClass = iota
	WriteFailure
	CorruptEntry
)

func (c FailureClass) String() string {
	switch c {
	case ReadFailure:
		return "read failure"
	case WriteFailure:
		return "write failure"
	case CorruptEntry:
		return "corrupt entry"
	}
	return fmt.Sprintf("FailureClass(%d)", uint8(c))
}

// A CacheError carries the failure class alongside the underlying
// cause. None of these are fatal to a build; the executor recovers
// per class.
type CacheError struct {
	Class FailureClass
	Key   Key
	cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s for %s: %s", e.Class, e.Key, e.cause)
}

func (e *CacheError) Unwrap() error { return e.cause }
