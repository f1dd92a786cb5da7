// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hooks implements the typed event bus threaded through
// resolution, planning, and execution. Subscribers are pure observers:
// they receive immutable event values and cannot alter the pipeline.
package hooks

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Point names a well-known emission site in the pipeline. The taxonomy
// is stable; instrumentation keys off these values.
type Point uint8

const (
	PreResolution Point = iota
	PackageDiscovered
	VersionSelected
	PackageFetched
	PostResolution

	PrePlan
	BuildOrderComputed
	PostPlan

	PreBuild
	PreCompile
	PostCompile
	PreLink
	PostLink
	PostBuild
)

var pointNames = [...]string{
	"PreResolution", "PackageDiscovered", "VersionSelected", "PackageFetched", "PostResolution",
	"PrePlan", "BuildOrderComputed", "PostPlan",
	"PreBuild", "PreCompile", "PostCompile", "PreLink", "PostLink", "PostBuild",
}

func (p Point) String() string {
	if int(p) < len(pointNames) {
		return pointNames[p]
	}
	return "UnknownPoint"
}

// An Event is delivered to subscribers at its Point. Every concrete
// event type is a value type; subscribers receive copies.
type Event interface {
	Point() Point
}

// A Handler observes events. Returning an error (or panicking) is
// logged and otherwise ignored unless the handler was registered as
// critical.
type Handler func(Event) error

type subscriber struct {
	fn       Handler
	points   map[Point]bool // nil means all points
	critical bool
}

// Option configures a subscription.
type Option func(*subscriber)

// Critical marks a subscriber whose failure aborts the build.
func Critical() Option {
	return func(s *subscriber) { s.critical = true }
}

// At restricts a subscription to the given points.
func At(points ...Point) Option {
	return func(s *subscriber) {
		s.points = make(map[Point]bool, len(points))
		for _, p := range points {
			s.points[p] = true
		}
	}
}

// Bus is the hook dispatcher. Publication is internally serialized, so
// subscribers observe a linearized event stream. A nil *Bus is valid
// and drops all events.
type Bus struct {
	mu     sync.Mutex
	subs   []subscriber
	frozen bool
	log    *zap.Logger
}

// NewBus returns an empty bus logging subscriber failures to log.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers fn. Registration must happen before execution
// begins; a frozen bus rejects new subscribers.
func (b *Bus) Subscribe(fn Handler, opts ...Option) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return errors.New("hook bus is frozen; subscribers must be registered before execution begins")
	}
	s := subscriber{fn: fn}
	for _, o := range opts {
		o(&s)
	}
	b.subs = append(b.subs, s)
	return nil
}

// Freeze closes the bus to further subscriptions. The executor calls
// this as its first act.
func (b *Bus) Freeze() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

// Publish delivers ev to every matching subscriber in registration
// order. The returned error is non-nil only when a critical subscriber
// failed; non-critical failures are logged and swallowed.
func (b *Bus) Publish(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		s := &b.subs[i]
		if s.points != nil && !s.points[ev.Point()] {
			continue
		}
		if err := b.dispatch(s, ev); err != nil {
			if s.critical {
				return errors.Wrapf(err, "critical hook failed at %s", ev.Point())
			}
			b.log.Warn("hook subscriber failed",
				zap.Stringer("point", ev.Point()),
				zap.Error(err))
		}
	}
	return nil
}

func (b *Bus) dispatch(s *subscriber, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("hook panicked: %v", r)
		}
	}()
	return s.fn(ev)
}
